package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// Observer receives resilience events, typically to export metrics.
type Observer interface {
	ObserveCall(target string, outcome Outcome)
	ObserveRetry(target string)
	ObserveState(target string, state State)
}

type noopObserver struct{}

func (noopObserver) ObserveCall(string, Outcome) {}
func (noopObserver) ObserveRetry(string)         {}
func (noopObserver) ObserveState(string, State)  {}

// Wrapper runs upstream calls through a retry loop and a per target
// circuit breaker.
type Wrapper struct {
	policy   RetryPolicy
	settings BreakerSettings
	classify Classifier
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

type Option func(w *Wrapper)

func WithClassifier(c Classifier) Option {
	return func(w *Wrapper) {
		w.classify = c
	}
}

func WithObserver(o Observer) Option {
	return func(w *Wrapper) {
		w.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = l
	}
}

func NewWrapper(policy RetryPolicy, settings BreakerSettings, opts ...Option) *Wrapper {
	w := &Wrapper{
		policy:   policy,
		settings: settings,
		classify: Classify,
		observer: noopObserver{},
		logger:   slog.Default(),
		breakers: make(map[string]*CircuitBreaker),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Breaker returns the breaker of target, creating it in the closed state.
func (w *Wrapper) Breaker(target string) *CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()

	cb, ok := w.breakers[target]
	if ok {
		return cb
	}

	settings := w.settings
	userHook := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to State) {
		w.logger.Warn("circuit breaker state changed", "target", name, "from", from.String(), "to", to.String())
		w.observer.ObserveState(name, to)
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	cb = NewCircuitBreaker(target, settings)
	w.breakers[target] = cb
	w.observer.ObserveState(target, StateClosed)

	return cb
}

func (w *Wrapper) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if w.policy.InitialBackoff > 0 {
		b.InitialInterval = w.policy.InitialBackoff
	}
	if w.policy.MaxBackoff > 0 {
		b.MaxInterval = w.policy.MaxBackoff
	}
	if w.policy.Multiplier >= 1 {
		b.Multiplier = w.policy.Multiplier
	}
	if w.policy.Jitter >= 0 && w.policy.Jitter <= 1 {
		b.RandomizationFactor = w.policy.Jitter
	}
	b.MaxElapsedTime = 0

	retries := w.policy.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Execute calls fn through the breaker of target, retrying transient
// failures. A cancelled ctx stops the loop and its error is returned.
func Execute[T any](ctx context.Context, w *Wrapper, target string, fn func(ctx context.Context) (T, error)) (T, error) {
	const op = "resilience.Execute"

	var (
		zero    T
		result  T
		attempt int
		lastErr error
	)

	cb := w.Breaker(target)

	operation := func() error {
		attempt++

		ticket, err := cb.Allow()
		if err != nil {
			// the breaker opened on this request's own retries; report
			// the upstream failure it actually saw
			if lastErr != nil {
				return backoff.Permanent(lastErr)
			}
			return backoff.Permanent(err)
		}

		res, err := fn(ctx)
		outcome := w.classify(ctx, err)
		cb.Done(ticket, outcome)
		w.observer.ObserveCall(target, outcome)

		switch outcome {
		case OutcomeSuccess:
			result = res
			return nil
		case OutcomeTransient:
			lastErr = err
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, next time.Duration) {
		w.observer.ObserveRetry(target)
		w.logger.Warn("upstream call failed, retrying",
			"target", target,
			"attempt", attempt,
			"backoff", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, w.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Wrap(ctxErr, op)
		}
		return zero, errors.Wrap(err, op)
	}

	return result, nil
}
