// Package weather looks up the forecast at a clinic for an appointment's
// hour. Lookups are informational: callers show the error instead of failing.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

var (
	ErrNoForecast  = errors.New("no forecast available for that hour")
	ErrUnavailable = errors.New("weather service unavailable")
)

type Forecast struct {
	Time                     time.Time `json:"time"`
	TemperatureC             float64   `json:"temperature_c"`
	PrecipitationProbability int       `json:"precipitation_probability"`
	WeatherCode              int       `json:"weather_code"`
	Summary                  string    `json:"summary"`
}

// Provider returns the forecast at a coordinate for the hour containing at.
type Provider interface {
	Forecast(ctx context.Context, lat, lon float64, at time.Time) (*Forecast, error)
}

type Options struct {
	BaseURL          string
	Timeout          time.Duration
	CacheTTL         time.Duration
	FailureThreshold uint32        // consecutive upstream failures that open the breaker
	OpenTimeout      time.Duration // how long the breaker stays open
}

// Client talks to an Open-Meteo compatible forecast API.
type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*Forecast]
	cache    Cache
	cacheTTL time.Duration
	metrics  *metrics.Collector
	log      *zap.Logger
}

// NewClient builds a Client. cache may be nil to disable caching.
func NewClient(opts Options, cache Cache, m *metrics.Collector, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	threshold := opts.FailureThreshold

	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*Forecast](gobreaker.Settings{
			Name:        "weather",
			MaxRequests: 1,
			Timeout:     opts.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNoForecast)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		cache:    cache,
		cacheTTL: opts.CacheTTL,
		metrics:  m,
		log:      log,
	}
}

func cacheKey(lat, lon float64, hour time.Time) string {
	return fmt.Sprintf("weather:%.3f:%.3f:%s", lat, lon, hour.UTC().Format(time.RFC3339))
}

func (c *Client) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*Forecast, error) {
	hour := at.UTC().Truncate(time.Hour)
	key := cacheKey(lat, lon, hour)

	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, key); err != nil {
			c.log.Warn("weather cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var f Forecast
			if err := json.Unmarshal(data, &f); err == nil {
				c.metrics.ObserveWeather("cache", "hit")
				return &f, nil
			}
		}
	}

	f, err := c.breaker.Execute(func() (*Forecast, error) {
		return c.fetch(ctx, lat, lon, hour)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.ObserveWeather("upstream", "rejected")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.metrics.ObserveWeather("upstream", "error")
		return nil, err
	}
	c.metrics.ObserveWeather("upstream", "ok")

	if c.cache != nil {
		if data, err := json.Marshal(f); err == nil {
			if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
				c.log.Warn("weather cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	return f, nil
}

type hourlyResponse struct {
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature2m            []float64 `json:"temperature_2m"`
		PrecipitationProbability []int     `json:"precipitation_probability"`
		WeatherCode              []int     `json:"weather_code"`
	} `json:"hourly"`
}

const hourLayout = "2006-01-02T15:04"

func (c *Client) fetch(ctx context.Context, lat, lon float64, hour time.Time) (*Forecast, error) {
	day := hour.Format("2006-01-02")
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", "temperature_2m,precipitation_probability,weather_code")
	q.Set("timezone", "UTC")
	q.Set("start_date", day)
	q.Set("end_date", day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// Open-Meteo answers 400 for dates outside its forecast range.
		return nil, ErrNoForecast
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather request: unexpected status %d", resp.StatusCode)
	}

	var body hourlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	h := body.Hourly
	for i, raw := range h.Time {
		t, err := time.ParseInLocation(hourLayout, raw, time.UTC)
		if err != nil || !t.Equal(hour) {
			continue
		}
		f := &Forecast{Time: t}
		if i < len(h.Temperature2m) {
			f.TemperatureC = h.Temperature2m[i]
		}
		if i < len(h.PrecipitationProbability) {
			f.PrecipitationProbability = h.PrecipitationProbability[i]
		}
		if i < len(h.WeatherCode) {
			f.WeatherCode = h.WeatherCode[i]
		}
		f.Summary = Describe(f.WeatherCode)
		return f, nil
	}
	return nil, ErrNoForecast
}

// Describe maps a WMO weather interpretation code to a short label.
func Describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
