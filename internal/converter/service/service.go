package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/langowen/converter/internal/converter/resilience"
	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

// Recorder counts cache lookups.
type Recorder interface {
	CacheLookup(operation, result string)
}

type noopRecorder struct{}

func (noopRecorder) CacheLookup(string, string) {}

type TTL struct {
	Latest  time.Duration
	Convert time.Duration
	History time.Duration
}

type Settings struct {
	Provider string
	Excluded []string
	TTL      TTL
}

type Service struct {
	provider string
	client   RateProvider
	cache    Cache
	guard    *resilience.Wrapper
	excluded map[string]struct{}
	ttl      TTL
	recorder Recorder
	logger   *slog.Logger
}

type Option func(s *Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(client RateProvider, cache Cache, guard *resilience.Wrapper, st Settings, opts ...Option) (*Service, error) {
	const op = "service.NewService"

	if client == nil || cache == nil || guard == nil {
		return nil, errors.Wrap(errors.New("client, cache and resilience wrapper are required"), op)
	}
	if st.Provider == "" {
		return nil, errors.Wrap(errors.New("provider name is empty"), op)
	}

	excluded := make(map[string]struct{}, len(st.Excluded))
	for _, code := range st.Excluded {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		excluded[code] = struct{}{}
	}

	s := &Service{
		provider: st.Provider,
		client:   client,
		cache:    cache,
		guard:    guard,
		excluded: excluded,
		ttl:      st.TTL,
		recorder: noopRecorder{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Provider() string {
	return s.provider
}

// GetLatestRates returns the latest rates of base against every currency
// the provider knows.
func (s *Service) GetLatestRates(ctx context.Context, base string) (entities.Rates, error) {
	const op = "service.GetLatestRates"

	if err := entities.ValidateCurrencyCode(base); err != nil {
		return nil, errors.Wrap(err, op)
	}

	rates, err := s.latest(ctx, base)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return rates, nil
}

// latest is the cache-aside read of the latest rates of base, shared by
// GetLatestRates and conversion misses.
func (s *Service) latest(ctx context.Context, base string) (entities.Rates, error) {
	key := LatestKey(s.provider, base)
	if raw, ok := s.lookup(ctx, opLatest, key); ok {
		rates, err := decodeRates(raw)
		if err == nil {
			return rates, nil
		}
		s.logger.Warn("undecodable cache entry", "key", key, "error", err)
	}

	snapshot, err := resilience.Execute(ctx, s.guard, s.provider, func(ctx context.Context) (*entities.RateSnapshot, error) {
		return s.client.Latest(ctx, base)
	})
	if err != nil {
		return nil, err
	}

	if raw, err := encodeRates(snapshot.Rates); err == nil {
		s.store(ctx, key, raw, s.ttl.Latest)
	}

	return snapshot.Rates, nil
}

// ConvertCurrency converts req.Amount from req.From to req.To. A zero
// amount converts to zero without touching cache or provider, and excluded
// currencies are rejected before any lookup.
func (s *Service) ConvertCurrency(ctx context.Context, req entities.ConversionRequest) (decimal.Decimal, error) {
	const op = "service.ConvertCurrency"

	if req.Amount.IsZero() {
		return decimal.Zero, nil
	}

	if s.isExcluded(req.From) || s.isExcluded(req.To) {
		return decimal.Zero, entities.ErrExcludedCurrency
	}

	if err := req.Validate(); err != nil {
		return decimal.Zero, errors.Wrap(err, op)
	}

	if req.From == req.To {
		return req.Amount, nil
	}

	rate, err := s.rate(ctx, req.From, req.To)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, op)
	}

	return req.Amount.Mul(rate), nil
}

func (s *Service) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := ConvertKey(s.provider, from, to)
	if raw, ok := s.lookup(ctx, opConvert, key); ok {
		rate, err := decodeRate(raw)
		if err == nil {
			return rate, nil
		}
		s.logger.Warn("undecodable cache entry", "key", key, "error", err)
	}

	rates, err := s.latest(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}

	rate, ok := rates[to]
	if !ok {
		return decimal.Zero, entities.NewValidationError("currency %s is not supported by provider %s", to, s.provider)
	}

	s.store(ctx, key, encodeRate(rate), s.ttl.Convert)

	return rate, nil
}

// GetHistoricalRates returns one page of daily rates of q.Base between
// q.StartDate and q.EndDate, ordered by date ascending. The whole range is
// fetched and cached; paging happens after the cache.
func (s *Service) GetHistoricalRates(ctx context.Context, q entities.HistoricalQuery) (*entities.HistoricalRates, error) {
	const op = "service.GetHistoricalRates"

	if err := q.Validate(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	daily, err := s.history(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return &entities.HistoricalRates{
		Base:      q.Base,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Total:     len(daily),
		Entries:   Paginate(daily, q.Page, q.PageSize),
	}, nil
}

func (s *Service) history(ctx context.Context, q entities.HistoricalQuery) ([]entities.DailyRates, error) {
	key := HistoryKey(s.provider, q.Base, q.StartDate, q.EndDate)
	if raw, ok := s.lookup(ctx, opHistory, key); ok {
		daily, err := decodeHistory(raw)
		if err == nil {
			return daily, nil
		}
		s.logger.Warn("undecodable cache entry", "key", key, "error", err)
	}

	byDate, err := resilience.Execute(ctx, s.guard, s.provider, func(ctx context.Context) (map[string]entities.Rates, error) {
		return s.client.History(ctx, q.Base, q.StartDate, q.EndDate)
	})
	if err != nil {
		return nil, err
	}

	daily, err := entities.SortDaily(byDate)
	if err != nil {
		return nil, &entities.ProviderError{Provider: s.provider, Err: err}
	}

	if raw, err := encodeHistory(byDate); err == nil {
		s.store(ctx, key, raw, s.ttl.History)
	}

	return daily, nil
}

// lookup reads key from the cache. Cache failures degrade to a miss.
func (s *Service) lookup(ctx context.Context, operation, key string) ([]byte, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.recorder.CacheLookup(operation, lookupError)
		s.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	case !found:
		s.recorder.CacheLookup(operation, lookupMiss)
		return nil, false
	default:
		s.recorder.CacheLookup(operation, lookupHit)
		return raw, true
	}
}

func (s *Service) store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (s *Service) isExcluded(code string) bool {
	_, ok := s.excluded[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
