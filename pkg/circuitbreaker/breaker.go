// Package circuitbreaker wraps sony/gobreaker for outbound HTTP calls.
package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrUpstream marks a response the breaker should count as a failure.
// The response itself is still returned to the caller.
var ErrUpstream = errors.New("upstream server error")

type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ConsecutiveFails uint32
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		ConsecutiveFails: 5,
	}
}

// HTTP guards an http.Client. 5xx responses and transport errors trip it;
// 4xx responses are answers, not failures.
type HTTP struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
}

func NewHTTP(client *http.Client, cfg Config, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &HTTP{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Do executes req through the breaker. On a 5xx the response is returned
// together with an error wrapping ErrUpstream so callers can still read
// the body.
func (h *HTTP) Do(req *http.Request) (*http.Response, error) {
	return h.cb.Execute(func() (*http.Response, error) {
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
		}
		return resp, nil
	})
}

func (h *HTTP) State() gobreaker.State {
	return h.cb.State()
}

// IsOpen reports whether err came from a breaker rejecting the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
