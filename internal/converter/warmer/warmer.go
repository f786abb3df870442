package warmer

import (
	"context"
	"log/slog"
	"time"

	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
)

type LatestRates interface {
	GetLatestRates(ctx context.Context, base string) (entities.Rates, error)
}

// Warmer keeps the latest rates of hot base currencies in the cache by
// asking the converter for them on every tick.
type Warmer struct {
	rates    LatestRates
	bases    []string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewWarmer(rates LatestRates, bases []string, interval, timeout time.Duration, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Warmer{
		rates:    rates,
		bases:    bases,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

func (w *Warmer) Enabled() bool {
	return len(w.bases) > 0 && w.interval > 0
}

// Start warms once, then on every tick until ctx is done.
func (w *Warmer) Start(ctx context.Context) error {
	const op = "warmer.Start"

	if !w.Enabled() {
		w.logger.Info("cache warmer disabled")
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.warm(ctx)

	for {
		select {
		case <-ticker.C:
			w.warm(ctx)
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op)
		}
	}
}

func (w *Warmer) warm(ctx context.Context) {
	const op = "warmer.warm"

	for _, base := range w.bases {
		if ctx.Err() != nil {
			return
		}

		if err := w.warmBase(ctx, base); err != nil {
			w.logger.Error("failed to warm latest rates", "op", op, "base", base, "error", err)
		}
	}
}

func (w *Warmer) warmBase(ctx context.Context, base string) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	_, err := w.rates.GetLatestRates(ctx, base)
	return err
}
