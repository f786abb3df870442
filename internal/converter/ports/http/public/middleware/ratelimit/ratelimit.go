package ratelimit

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// NewStore builds the limiter store. client is only used by the redis store.
func NewStore(kind, prefix string, client redis.UniversalClient) (limiter.Store, error) {
	const op = "ratelimit.NewStore"

	switch kind {
	case "", StoreMemory:
		return memory.NewStore(), nil
	case StoreRedis:
		if client == nil {
			return nil, errors.Errorf("%s: redis store requires a client", op)
		}
		store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix + "limiter"})
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		return store, nil
	default:
		return nil, errors.Errorf("%s: unknown store %q", op, kind)
	}
}

// PerIP limits requests per client IP to the formatted rate, e.g. "100-M".
func PerIP(formatted string, store limiter.Store, onLimit http.HandlerFunc) (func(next http.Handler) http.Handler, error) {
	const op = "ratelimit.PerIP"

	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	mw := stdlib.NewMiddleware(
		limiter.New(store, rate, limiter.WithTrustForwardHeader(true)),
		stdlib.WithLimitReachedHandler(stdlib.LimitReachedHandler(onLimit)),
	)

	return mw.Handler, nil
}
