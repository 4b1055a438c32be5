package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ErrRateLimited is returned when the local rate limiter rejects a call.
var ErrRateLimited = errors.New("rate limit exceeded")

// ResilientProvider wraps a provider with a rate limiter, a bulkhead, a
// circuit breaker and retries with exponential backoff.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	retrier        retry.Retry[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	timeout        time.Duration
	logger         *slog.Logger
}

// ResilienceConfig configures the wrapper. Zero-valued limits fall back to
// the defaults of DefaultResilienceConfig.
type ResilienceConfig struct {
	CircuitBreaker bool          `yaml:"circuit_breaker"`
	Retry          bool          `yaml:"retry"`
	Bulkhead       bool          `yaml:"bulkhead"`
	RateLimit      bool          `yaml:"rate_limit"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RatePerSecond  int           `yaml:"rate_per_second"`
	Timeout        time.Duration `yaml:"timeout"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultResilienceConfig returns the daemon defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		CircuitBreaker: true,
		Retry:          true,
		Bulkhead:       true,
		RateLimit:      true,
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxConcurrent:  8,
		RatePerSecond:  5,
		Timeout:        60 * time.Second,
	}
}

// NewResilientProvider wraps provider.
func NewResilientProvider(provider Provider, cfg ResilienceConfig) *ResilientProvider {
	def := DefaultResilienceConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rp := &ResilientProvider{
		provider: provider,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}

	if cfg.CircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				rp.logger.Warn("circuit breaker state change",
					"provider", provider.Name(),
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.Retry {
		rp.retrier = retry.New[*Response](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      20 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   IsRetryable,
		})
	}

	if cfg.Bulkhead {
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 4,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.RateLimit {
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerSecond,
			Burst:    cfg.RatePerSecond * 2,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string {
	return p.provider.Name()
}

// Generate runs the request through rate limiter, circuit breaker, retrier
// and bulkhead, in that order. Each attempt gets its own timeout.
func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.rateLimit != nil && !p.rateLimit.Allow(ctx, p.provider.Name()) {
		return nil, fmt.Errorf("%w for provider %s", ErrRateLimited, p.provider.Name())
	}

	attempt := func(ctx context.Context) (*Response, error) {
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		if p.bulkhead != nil {
			return p.bulkhead.Execute(ctx, func(ctx context.Context) (*Response, error) {
				return p.provider.Generate(ctx, req)
			})
		}
		return p.provider.Generate(ctx, req)
	}

	operation := attempt
	if p.retrier != nil {
		operation = func(ctx context.Context) (*Response, error) {
			return p.retrier.Do(ctx, attempt)
		}
	}

	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, operation)
	}
	return operation(ctx)
}

// Close releases the rate limiter.
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}

var retryableCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryable reports whether err is a transient provider failure: a
// throttling or server-side status, or a per-attempt timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return retryableCodes[StatusCode(err)]
}

var statusPattern = regexp.MustCompile(`(?i)\b(?:status|error)\W*(\d{3})\b`)

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
