package service

import (
	"context"
	"strings"

	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type ProviderID string

const Frankfurter ProviderID = "frankfurter"

// Converter is the contract every provider specific service satisfies.
type Converter interface {
	GetLatestRates(ctx context.Context, base string) (entities.Rates, error)
	ConvertCurrency(ctx context.Context, req entities.ConversionRequest) (decimal.Decimal, error)
	GetHistoricalRates(ctx context.Context, q entities.HistoricalQuery) (*entities.HistoricalRates, error)
}

// Factory maps provider identifiers to converters. It is filled at startup
// and only read afterwards.
type Factory struct {
	converters map[ProviderID]Converter
}

func NewFactory() *Factory {
	return &Factory{
		converters: make(map[ProviderID]Converter),
	}
}

func (f *Factory) Register(id ProviderID, c Converter) {
	f.converters[id] = c
}

func (f *Factory) Provider(id ProviderID) (Converter, error) {
	const op = "service.Factory.Provider"

	c, ok := f.converters[id]
	if !ok {
		return nil, errors.Wrapf(entities.ErrUnknownProvider, "%s: %q", op, id)
	}

	return c, nil
}

func ParseProviderID(s string) (ProviderID, error) {
	const op = "service.ParseProviderID"

	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case Frankfurter:
		return id, nil
	default:
		return "", errors.Wrapf(entities.ErrUnknownProvider, "%s: %q", op, s)
	}
}
