package resilience

import (
	"context"
	"net"
	"net/http"

	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeTransient is retried and counted by the breaker.
	OutcomeTransient
	// OutcomePermanent fails immediately without consuming retry budget.
	OutcomePermanent
	OutcomeCanceled
)

func (o Outcome) String() string {
	return [...]string{"success", "transient", "permanent", "canceled"}[o]
}

type Classifier func(ctx context.Context, err error) Outcome

// Classify treats network errors, 5xx, 408 and 429 as transient.
func Classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCanceled
	}

	var pErr *entities.ProviderError
	if errors.As(err, &pErr) {
		switch {
		case pErr.StatusCode == 0:
			return OutcomeTransient
		case pErr.StatusCode >= http.StatusInternalServerError,
			pErr.StatusCode == http.StatusRequestTimeout,
			pErr.StatusCode == http.StatusTooManyRequests:
			return OutcomeTransient
		default:
			return OutcomePermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeTransient
	}

	return OutcomePermanent
}
