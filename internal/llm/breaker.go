package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// BreakerSettings configures NewBreakerProvider.
type BreakerSettings struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before half-opening.
	Timeout time.Duration
	// FailureThreshold trips the breaker once the failure ratio reaches it
	// over at least MinRequests calls.
	FailureThreshold float64
	MinRequests      uint32
}

// BreakerProvider wraps a Provider with a circuit breaker so that a failing
// upstream is not hammered by every incoming search.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps provider with a gobreaker circuit breaker.
func NewBreakerProvider(provider Provider, st BreakerSettings, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < st.MinRequests || counts.Requests == 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= st.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Cancelled callers say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerProvider{provider: provider, cb: cb}
}

func (b *BreakerProvider) Name() string {
	return b.provider.Name()
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// StateGauge exports the breaker state as namespace_llm_circuit_state:
// 0 closed, 1 half-open, 2 open.
func (b *BreakerProvider) StateGauge(namespace string) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "llm_circuit_state",
		Help:        "LLM circuit breaker state: 0 closed, 1 half-open, 2 open",
		ConstLabels: prometheus.Labels{"provider": b.provider.Name()},
	}, func() float64 {
		switch b.State() {
		case "open":
			return 2
		case "half-open":
			return 1
		default:
			return 0
		}
	})
}

func (b *BreakerProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return out.(*CompletionResponse), nil
}
