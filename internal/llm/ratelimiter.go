package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
)

// ErrRateLimited reports that the next free slot lies past the caller's
// deadline. It is joined with context.DeadlineExceeded.
var ErrRateLimited = errors.New("llm rate limit outlasts the request deadline")

// RateLimitedProvider is a token bucket in front of a Provider: bursts of up
// to rpm calls, refilled at rpm per minute. A call whose wait would outlast
// its context deadline fails at once instead of holding the stage open.
type RateLimitedProvider struct {
	provider Provider
	burst    float64
	perToken time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimitedProvider allows at most rpm completions per minute.
func NewRateLimitedProvider(provider Provider, rpm int, logger *zap.Logger) *RateLimitedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rpm <= 0 {
		rpm = 1
	}
	r := &RateLimitedProvider{
		provider: provider,
		burst:    float64(rpm),
		perToken: time.Minute / time.Duration(rpm),
		logger:   logger,
		now:      time.Now,
		tokens:   float64(rpm),
	}
	r.last = r.now()
	return r
}

func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}

// reserve takes a token, going into debt if none is left, and returns how
// long the caller must wait for it.
func (r *RateLimitedProvider) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.tokens += float64(now.Sub(r.last)) / float64(r.perToken)
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.last = now
	r.tokens--
	if r.tokens >= 0 {
		return 0
	}
	return time.Duration(-r.tokens * float64(r.perToken))
}

func (r *RateLimitedProvider) release() {
	r.mu.Lock()
	r.tokens++
	r.mu.Unlock()
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	delay := r.reserve()
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && r.now().Add(delay).After(deadline) {
		r.release()
		r.logger.Warn("llm rate limit exceeded",
			zap.String("provider", r.provider.Name()),
			zap.Duration("wait", delay),
			zap.Time("deadline", deadline),
		)
		return apperr.Wrap(apperr.KindLLM, "LLM rate limit exceeded", errors.Join(ErrRateLimited, context.DeadlineExceeded)).
			WithDetails(map[string]any{"provider": r.provider.Name(), "wait": delay.String()})
	}

	r.logger.Debug("waiting for llm rate limit", zap.Duration("wait", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.release()
		return apperr.Wrap(apperr.KindLLM, "waiting for LLM rate limit", ctx.Err())
	}
}
