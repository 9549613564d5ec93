package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
)

func mustPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := NewPolicy(cfg)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	return p
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"one attempt", Config{MaxAttempts: 1}, false},
		{"ten attempts", Config{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Second}, false},
		{"zero attempts", Config{MaxAttempts: 0}, true},
		{"eleven attempts", Config{MaxAttempts: 11}, true},
		{"negative base", Config{MaxAttempts: 3, BaseDelay: -time.Second}, true},
		{"max below base", Config{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ce *domain.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("NewPolicy() error = %T, want *domain.ConfigError", err)
				}
			}
		})
	}
}

func TestDelayForAttempt(t *testing.T) {
	p := mustPolicy(t, Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-3, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{100, 10 * time.Second},
		{5000, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.DelayForAttempt(tt.attempt); got != tt.want {
			t.Errorf("DelayForAttempt(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayForAttempt_CappedAndMonotonic(t *testing.T) {
	configs := []Config{
		{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0},
		{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second},
		{MaxAttempts: 10, BaseDelay: 3 * time.Second, MaxDelay: 3 * time.Second},
		{MaxAttempts: 10, BaseDelay: time.Minute, MaxDelay: time.Hour},
	}
	for _, cfg := range configs {
		p := mustPolicy(t, cfg)
		prev := time.Duration(0)
		for a := 0; a < 80; a++ {
			d := p.DelayForAttempt(a)
			if d > cfg.MaxDelay {
				t.Fatalf("%+v: DelayForAttempt(%d) = %v exceeds max %v", cfg, a, d, cfg.MaxDelay)
			}
			if d < prev {
				t.Fatalf("%+v: DelayForAttempt(%d) = %v < previous %v", cfg, a, d, prev)
			}
			prev = d
		}
	}
}

func TestDelayForAttempt_Jitter(t *testing.T) {
	p := mustPolicy(t, Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Jitter: true})
	for i := 0; i < 50; i++ {
		d := p.DelayForAttempt(1)
		if d < 2*time.Second || d >= 3*time.Second {
			t.Fatalf("DelayForAttempt(1) with jitter = %v, want in [2s,3s)", d)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	for maxAttempts := MinAttempts; maxAttempts <= MaxAttempts; maxAttempts++ {
		p := mustPolicy(t, Config{MaxAttempts: maxAttempts})
		count := 0
		for a := 0; a < 20; a++ {
			if p.ShouldRetry(a) {
				count++
				if a > maxAttempts-2 {
					t.Errorf("max=%d: ShouldRetry(%d) = true, want false", maxAttempts, a)
				}
			}
		}
		if count != maxAttempts-1 {
			t.Errorf("max=%d: ShouldRetry true for %d attempts, want %d", maxAttempts, count, maxAttempts-1)
		}
	}
}

func TestRetryable(t *testing.T) {
	strict := mustPolicy(t, Config{MaxAttempts: 3})
	lenient := mustPolicy(t, Config{MaxAttempts: 3, RetryUnknown: true})

	tests := []struct {
		name   string
		policy *Policy
		class  Class
		want   bool
	}{
		{"retryable", strict, ClassRetryable, true},
		{"permanent", strict, ClassPermanent, false},
		{"unknown strict", strict, ClassUnknown, false},
		{"unknown lenient", lenient, ClassUnknown, true},
		{"permanent lenient", lenient, ClassPermanent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Retryable(tt.class); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestFromMaxRetries(t *testing.T) {
	if got := FromMaxRetries(0).MaxAttempts; got != 1 {
		t.Errorf("FromMaxRetries(0).MaxAttempts = %d, want 1", got)
	}
	if got := FromMaxRetries(3).MaxAttempts; got != 4 {
		t.Errorf("FromMaxRetries(3).MaxAttempts = %d, want 4", got)
	}
}
