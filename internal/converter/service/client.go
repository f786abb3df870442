package service

import (
	"context"
	"time"

	"github.com/langowen/converter/internal/entities"
)

type RateProvider interface {
	Latest(ctx context.Context, base string) (*entities.RateSnapshot, error)
	History(ctx context.Context, base string, start, end time.Time) (map[string]entities.Rates, error)
}
