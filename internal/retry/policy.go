package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
)

const (
	MinAttempts = 1
	MaxAttempts = 10
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	// RetryUnknown retries failures that match no pattern.
	RetryUnknown bool
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// FromMaxRetries returns DefaultConfig with n retries after the first attempt.
func FromMaxRetries(n int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = n + 1
	return cfg
}

// Policy is a validated, immutable Config.
type Policy struct {
	cfg Config
}

// NewPolicy validates cfg.
func NewPolicy(cfg Config) (*Policy, error) {
	if cfg.MaxAttempts < MinAttempts || cfg.MaxAttempts > MaxAttempts {
		return nil, &domain.ConfigError{Field: "max_attempts", Value: cfg.MaxAttempts, Reason: "must be between 1 and 10"}
	}
	if cfg.BaseDelay < 0 {
		return nil, &domain.ConfigError{Field: "base_delay", Value: cfg.BaseDelay, Reason: "must be >= 0"}
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		return nil, &domain.ConfigError{Field: "max_delay", Value: cfg.MaxDelay, Reason: "must be >= base_delay"}
	}
	return &Policy{cfg: cfg}, nil
}

// Config returns a copy of the validated config.
func (p *Policy) Config() Config {
	return p.cfg
}

// MaxAttempts is the total number of attempts per job.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// DelayForAttempt returns min(base*2^attempt, max), plus up to one second
// of jitter when enabled. Negative attempts count as 0.
func (p *Policy) DelayForAttempt(attempt int) time.Duration {
	attempt = max(attempt, 0)

	var d time.Duration
	if p.cfg.BaseDelay > 0 {
		d = p.cfg.MaxDelay
		if scaled := float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt)); scaled < float64(p.cfg.MaxDelay) {
			d = time.Duration(scaled)
		}
	}

	if p.cfg.Jitter {
		d += time.Duration(rand.Int64N(int64(time.Second)))
	}
	return d
}

// ShouldRetry reports whether another attempt follows attempt (0-indexed).
func (p *Policy) ShouldRetry(attempt int) bool {
	return max(attempt, 0) < p.cfg.MaxAttempts-1
}

// Retryable reports whether failures of class c may be retried.
func (p *Policy) Retryable(c Class) bool {
	switch c {
	case ClassRetryable:
		return true
	case ClassUnknown:
		return p.cfg.RetryUnknown
	default:
		return false
	}
}
