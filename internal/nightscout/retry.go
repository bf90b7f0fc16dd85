package nightscout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures retries of idempotent requests
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration // first wait, doubled on every retry
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns 3 retries starting at 0.5 s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		MaxWait:    30 * time.Second,
	}
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// do runs req through the circuit breaker, retrying idempotent requests on
// 429 and transient 5xx answers. Non-retryable answers are returned as-is.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	attempts := 1
	if idempotentMethods[req.Method] {
		attempts += max(0, c.retry.MaxRetries)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open: %w", err)
		}
		if resp != nil && !retryableStatus[resp.StatusCode] {
			// 501 and friends: let the caller read the body
			return resp, nil
		}
		if req.Context().Err() != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			return nil, req.Context().Err()
		}
		if attempt == attempts-1 {
			if resp != nil {
				return resp, nil
			}
			return nil, err
		}

		wait := c.backoff(attempt, resp)
		if resp != nil {
			_ = resp.Body.Close()
		}
		c.log.Debug().Err(err).Int("attempt", attempt+1).Dur("wait", wait).Str("url", req.URL.Path).Msg("Retrying request")
		if err := c.sleepFn(req.Context(), wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoff honors Retry-After, else doubles the base wait per attempt
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				return c.capWait(time.Duration(seconds) * time.Second)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				return c.capWait(max(0, time.Until(t)))
			}
		}
	}
	return c.capWait(time.Duration(float64(c.retry.Backoff) * math.Pow(2, float64(attempt))))
}

func (c *Client) capWait(d time.Duration) time.Duration {
	if c.retry.MaxWait > 0 && d > c.retry.MaxWait {
		return c.retry.MaxWait
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
