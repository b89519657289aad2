package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL      string
	Token           string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	ReadRatio       float64
	Patients        int
	PairLimit       int
	DaysAhead       int
	PostgresDSN     string
}

var specialties = []string{"family_medicine", "dermatology", "cardiology", "pediatrics", "neurology"}

type doctorClinic struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
}

type DataPool struct {
	Pairs        []doctorClinic
	Patients     []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Transition   OperationMetrics
	ReadByID     OperationMetrics
	ListBy       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("transition", cfg.TransitionRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data loaded", zap.Int("doctor_clinic_pairs", len(dataPool.Pairs)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	violations, err := sim.Verify(context.Background())
	if err != nil {
		log.Fatal("verification failed to run", zap.Error(err))
	}
	if len(violations) > 0 {
		for _, v := range violations {
			log.Error("overlap found", zap.String("detail", v))
		}
		log.Fatal("double bookings detected", zap.Int("count", len(violations)))
	}
	log.Info("no overlapping appointments found")
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Token:           os.Getenv("SIM_TOKEN"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		Patients:        getInt("SIM_PATIENTS", 300),
		PairLimit:       getInt("SIM_PAIR_LIMIT", 200),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 7),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.PostgresDSN == "":
		return cfg, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	case cfg.Workers <= 0:
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	case cfg.Patients <= 0:
		return cfg, fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return cfg, nil
}

// loadDataPool reads doctor/clinic pairs from workshifts. Patients have no
// table of their own, so the simulator invents a fixed set of ids.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT doctor_id, clinic_id FROM workshifts LIMIT $1
	`, cfg.PairLimit)
	if err != nil {
		return nil, fmt.Errorf("load workshifts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p doctorClinic
		if err := rows.Scan(&p.DoctorID, &p.ClinicID); err != nil {
			return nil, err
		}
		dataPool.Pairs = append(dataPool.Pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Pairs) == 0 {
		return nil, fmt.Errorf("no workshifts found; run the seed first")
	}

	for i := 0; i < cfg.Patients; i++ {
		dataPool.Patients = append(dataPool.Patients, uuid.New())
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListBy(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
	return req, nil
}

// call performs the request and decodes a 2xx body into out when out is
// non-nil. It returns the status code, or 0 on transport failure.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, time.Duration) {
	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, 0
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	pair := s.pool.Pairs[rng.Intn(len(s.pool.Pairs))]
	date := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format("2006-01-02")

	var avail api.AvailabilityResponse
	status, latency := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments/available?doctor_id=%s&clinic_id=%s&date=%s", pair.DoctorID, pair.ClinicID, date),
		nil, &avail)
	s.metrics.Availability.Record(latency, status == http.StatusOK, false)
	if status != http.StatusOK || len(avail.Slots) == 0 {
		return
	}

	slot := avail.Slots[rng.Intn(len(avail.Slots))]
	duration := 15 * (1 + rng.Intn(2))

	var created api.AppointmentResponse
	status, latency = s.call(ctx, http.MethodPost, "/appointments", map[string]any{
		"patient_id":       s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"doctor_id":        pair.DoctorID.String(),
		"clinic_id":        pair.ClinicID.String(),
		"specialty":        gofakeit.RandomString(specialties),
		"appointment_date": slot.Start.Format(time.RFC3339),
		"duration":         duration,
	}, &created)

	// Overlap rejections are 400 and lock contention is 409; both are the
	// expected outcome of racing for the same slot.
	conflict := status == http.StatusBadRequest || status == http.StatusConflict
	s.metrics.Booking.Record(latency, status == http.StatusCreated, conflict)
	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	action := []string{"complete", "cancel", "noshow"}[rng.Intn(3)]
	status, latency := s.call(ctx, http.MethodPut, "/appointments/"+id.String()+"/"+action, nil, nil)
	s.metrics.Transition.Record(latency, status == http.StatusOK, status == http.StatusBadRequest)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, latency := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	s.metrics.ReadByID.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doListBy(ctx context.Context, rng *rand.Rand) {
	var path string
	if rng.Intn(2) == 0 {
		path = "/appointments/patient/" + s.pool.Patients[rng.Intn(len(s.pool.Patients))].String()
	} else {
		path = "/appointments/doctor/" + s.pool.Pairs[rng.Intn(len(s.pool.Pairs))].DoctorID.String()
	}

	status, latency := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.ListBy.Record(latency, status == http.StatusOK, false)
}

// Verify lists every doctor's and patient's appointments through the API
// and reports any two non-cancelled ones that overlap.
func (s *Simulator) Verify(ctx context.Context) ([]string, error) {
	var violations []string

	check := func(kind string, id uuid.UUID) error {
		var list []api.AppointmentResponse
		status, _ := s.call(ctx, http.MethodGet, "/appointments/"+kind+"/"+id.String(), nil, &list)
		if status != http.StatusOK {
			return fmt.Errorf("list %s %s: status %d", kind, id, status)
		}
		for _, v := range findOverlaps(list) {
			violations = append(violations, kind+" "+id.String()+": "+v)
		}
		return nil
	}

	seen := make(map[uuid.UUID]bool)
	for _, p := range s.pool.Pairs {
		if seen[p.DoctorID] {
			continue
		}
		seen[p.DoctorID] = true
		if err := check("doctor", p.DoctorID); err != nil {
			return nil, err
		}
	}
	for _, id := range s.pool.Patients {
		if err := check("patient", id); err != nil {
			return nil, err
		}
	}
	return violations, nil
}

func findOverlaps(list []api.AppointmentResponse) []string {
	active := make([]api.AppointmentResponse, 0, len(list))
	for _, a := range list {
		if a.Status != "cancelled" {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].AppointmentDate.Before(active[j].AppointmentDate) })

	var out []string
	for i := 1; i < len(active); i++ {
		// latest is the earlier appointment that ends last.
		latest := active[0]
		for _, a := range active[1:i] {
			if a.EndsAt.After(latest.EndsAt) {
				latest = a
			}
		}
		cur := active[i]
		if cur.AppointmentDate.Before(latest.EndsAt) {
			out = append(out, fmt.Sprintf("%s [%s, %s) overlaps %s [%s, %s)",
				latest.ID, latest.AppointmentDate.Format(time.RFC3339), latest.EndsAt.Format(time.RFC3339),
				cur.ID, cur.AppointmentDate.Format(time.RFC3339), cur.EndsAt.Format(time.RFC3339)))
		}
	}
	return out
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by subject", &s.metrics.ListBy)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
