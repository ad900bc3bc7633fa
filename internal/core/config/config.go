package config

import (
	"time"

	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/infra/redisq"
	"github.com/vietddude/relay/internal/infra/storage/postgres"
	"github.com/vietddude/relay/internal/ingress/event"
	"github.com/vietddude/relay/internal/ingress/httpapi"
	"github.com/vietddude/relay/internal/ingress/queue"
	"github.com/vietddude/relay/internal/resilience"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	HTTP     httpapi.Config     `yaml:"http"`
	Runner   event.RunnerConfig `yaml:"runner"`
	Admin    AdminConfig        `yaml:"admin"`
	Dispatch DispatchConfig     `yaml:"dispatch"`
	Events   event.Config       `yaml:"events"`
	Queues   []queue.Config     `yaml:"queues"`
	Redis    redisq.Config      `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// AdminConfig holds settings for the health and metrics server.
type AdminConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DispatchConfig tunes the router timeout, retries and per-action policies.
// Durations are millisecond integers so values substitute cleanly from
// environment variables.
type DispatchConfig struct {
	TimeoutMs int            `yaml:"timeout_ms"`
	Retry     RetryConfig    `yaml:"retry"`
	Breaker   BreakerConfig  `yaml:"breaker"`
	Bulkhead  BulkheadConfig `yaml:"bulkhead"`
}

// RetryConfig holds backoff settings for failed handler calls.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	BaseDelayMs   int     `yaml:"base_delay_ms"`
	MaxDelayMs    int     `yaml:"max_delay_ms"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	JitterMs      int     `yaml:"jitter_ms"`
}

// BreakerConfig holds circuit breaker settings shared by every action key.
type BreakerConfig struct {
	WindowMs         int     `yaml:"window_ms"`
	FailureThreshold float64 `yaml:"failure_threshold"`
	MinRequests      int     `yaml:"min_requests"`
	HalfOpenAfterMs  int     `yaml:"half_open_after_ms"`
}

// BulkheadConfig holds concurrency limits shared by every action key.
type BulkheadConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxQueue      int `yaml:"max_queue"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RouterConfig converts the dispatch section into router settings. Fields
// left zero fall back to the router's own defaults.
func (d DispatchConfig) RouterConfig() dispatch.Config {
	return dispatch.Config{
		DefaultTimeout: ms(d.TimeoutMs),
		Retry: dispatch.RetryPolicy{
			MaxAttempts:   d.Retry.MaxAttempts,
			BaseDelay:     ms(d.Retry.BaseDelayMs),
			MaxDelay:      ms(d.Retry.MaxDelayMs),
			BackoffFactor: d.Retry.BackoffFactor,
			Jitter:        ms(d.Retry.JitterMs),
		},
	}
}

// ResilienceConfig converts the dispatch section into the breaker and
// bulkhead defaults applied to every action key.
func (d DispatchConfig) ResilienceConfig() resilience.Config {
	return resilience.Config{
		Breaker: resilience.BreakerConfig{
			Window:           ms(d.Breaker.WindowMs),
			FailureThreshold: d.Breaker.FailureThreshold,
			MinRequests:      d.Breaker.MinRequests,
			HalfOpenAfter:    ms(d.Breaker.HalfOpenAfterMs),
		},
		Bulkhead: resilience.BulkheadConfig{
			MaxConcurrent: d.Bulkhead.MaxConcurrent,
			MaxQueue:      d.Bulkhead.MaxQueue,
		},
	}
}
