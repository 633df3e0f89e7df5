package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
	Multiplier      float64
	// Jitter spreads each wait by up to this fraction in either direction
	Jitter float64
}

// DefaultPolicy suits calls made inside an interactive chat turn, where the
// user is already waiting.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		MaxRetries:      2,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// Result describes one HTTP attempt.
type Result struct {
	Status int
	// RetryAfter is the server's requested wait, zero when absent
	RetryAfter time.Duration
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// NXDOMAIN is definitive
		return !dnsErr.IsNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch {
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return true
	case statusCode >= 500 && statusCode < 600:
		return statusCode != http.StatusNotImplemented
	}
	return false
}

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Do runs fn until it succeeds, fails with something not worth retrying, or the
// policy runs out. The last error is wrapped so callers can still inspect it.
func Do(ctx context.Context, p Policy, op string, fn func(attempt int) (Result, error)) error {
	interval := p.InitialInterval

	for attempt := 0; ; attempt++ {
		res, err := fn(attempt)
		if err == nil && (res.Status == 0 || (res.Status >= 200 && res.Status < 300)) {
			return nil
		}

		retryable := IsRetryableError(err)
		if err == nil || res.Status > 0 {
			retryable = retryable || IsRetryableHTTPStatus(res.Status)
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d", res.Status)
		}

		if !retryable {
			return fmt.Errorf("%s failed on attempt %d: %w", op, attempt+1, err)
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt+1, err)
		}

		wait := p.jittered(interval)
		if res.RetryAfter > wait {
			wait = min(res.RetryAfter, p.MaxInterval)
		}

		log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Int("status", res.Status).
			Dur("wait", wait).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = min(time.Duration(float64(interval)*p.Multiplier), p.MaxInterval)
	}
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}
