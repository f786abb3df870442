package app

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/langowen/converter/deploy/config"
	"github.com/langowen/converter/internal/converter/adapter/api_client/frankfurter"
	"github.com/langowen/converter/internal/converter/adapter/storage/redis"
	"github.com/langowen/converter/internal/converter/auth"
	"github.com/langowen/converter/internal/converter/metrics"
	"github.com/langowen/converter/internal/converter/ports/http/public"
	"github.com/langowen/converter/internal/converter/ports/http/public/middleware/ratelimit"
	"github.com/langowen/converter/internal/converter/resilience"
	"github.com/langowen/converter/internal/converter/service"
	"github.com/langowen/converter/internal/converter/warmer"
	"github.com/prometheus/client_golang/prometheus"
	redisPack "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ConverterApp struct {
	cfg     *config.Config
	logFile io.Closer
}

func NewConverterApp(cfg *config.Config) *ConverterApp {
	return &ConverterApp{cfg: cfg}
}

func (a *ConverterApp) Start(ctx context.Context) <-chan struct{} {
	a.initLogger()
	slog.Info("Logger initialized")

	m := metrics.New(prometheus.DefaultRegisterer)

	providerID, err := service.ParseProviderID(a.cfg.Provider.Name)
	if err != nil {
		log.Fatalln("Unsupported rate provider", "error", err)
	}

	rdStorage := a.initRedis(ctx)
	slog.Info("Redis client initialized")

	client := a.initClient(providerID)
	slog.Info("HTTP client initialized", "provider", providerID)

	guard := a.initResilience(m)

	converter := a.initService(providerID, client, rdStorage, guard, m)
	slog.Info("Service initialized")

	factory := service.NewFactory()
	factory.Register(providerID, converter)

	authenticator := a.initAuth()

	warmerDone := a.initWarmer(ctx, converter)

	serverDone := a.StartServer(ctx, public.Deps{
		Providers:  factory,
		Provider:   providerID,
		Auth:       authenticator,
		Metrics:    m,
		LimitStore: a.initLimitStore(rdStorage),
		Logger:     slog.Default(),
	})
	slog.Info("server started", "port", a.cfg.HTTPServer.Port)

	closers := []io.Closer{rdStorage}
	if a.logFile != nil {
		closers = append(closers, a.logFile)
	}

	return shutdown([]<-chan struct{}{serverDone, warmerDone}, closers...)
}

func (a *ConverterApp) initLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.cfg.Log.Level)); err != nil {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if a.cfg.Log.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   a.cfg.Log.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		a.logFile = fileLogger
		out = io.MultiWriter(os.Stdout, fileLogger)
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	}))
	slog.SetDefault(logger)
}

func (a *ConverterApp) initRedis(ctx context.Context) *redis.Storage {
	options := &redisPack.Options{
		Addr:     a.cfg.Redis.Host,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}

	rdStorage, err := redis.InitStorage(ctx, options, a.cfg.Redis.Prefix)
	if err != nil {
		log.Fatalln("Failed to initialize Redis storage", "error", err)
	}

	return rdStorage
}

func (a *ConverterApp) initClient(id service.ProviderID) service.RateProvider {
	switch id {
	case service.Frankfurter:
		return frankfurter.NewHTTPClient(a.cfg.Provider.URL, a.cfg.Provider.Timeout)
	default:
		log.Fatalln("No client for rate provider", "provider", id)
		return nil
	}
}

func (a *ConverterApp) initResilience(m *metrics.Metrics) *resilience.Wrapper {
	rc := a.cfg.Resilience

	return resilience.NewWrapper(
		resilience.RetryPolicy{
			MaxRetries:     rc.MaxRetries,
			InitialBackoff: rc.InitialBackoff,
			MaxBackoff:     rc.MaxBackoff,
			Multiplier:     rc.Multiplier,
			Jitter:         rc.Jitter,
		},
		resilience.BreakerSettings{
			FailureThreshold: rc.FailureThreshold,
			Cooldown:         rc.Cooldown,
		},
		resilience.WithObserver(m),
		resilience.WithLogger(slog.Default()),
	)
}

func (a *ConverterApp) initService(id service.ProviderID, client service.RateProvider, cache service.Cache, guard *resilience.Wrapper, m *metrics.Metrics) *service.Service {
	svc, err := service.NewService(client, cache, guard, service.Settings{
		Provider: string(id),
		Excluded: a.cfg.ExcludedCurrencies(),
		TTL: service.TTL{
			Latest:  a.cfg.Cache.LatestTTL,
			Convert: a.cfg.Cache.ConvertTTL,
			History: a.cfg.Cache.HistoryTTL,
		},
	}, service.WithRecorder(m), service.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalln("Failed to initialize converter service", "error", err)
	}

	return svc
}

func (a *ConverterApp) initAuth() public.Authenticator {
	if !a.cfg.Auth.Enabled {
		slog.Warn("Authentication disabled")
		return nil
	}

	users, err := auth.ParseUsers(config.Split(a.cfg.Auth.Users))
	if err != nil {
		log.Fatalln("Failed to parse users", "error", err)
	}
	if len(users) == 0 {
		slog.Warn("Authentication enabled without configured users, login will always fail")
	}

	authenticator, err := auth.NewAuthenticator(a.cfg.Auth.Secret, a.cfg.Auth.Issuer, a.cfg.Auth.Expiry, users)
	if err != nil {
		log.Fatalln("Failed to initialize authenticator", "error", err)
	}

	return authenticator
}

func (a *ConverterApp) initLimitStore(rdStorage *redis.Storage) limiter.Store {
	kind := strings.ToLower(a.cfg.RateLimit.Store)

	store, err := ratelimit.NewStore(kind, a.cfg.Redis.Prefix, rdStorage.Client())
	if err != nil {
		log.Fatalln("Failed to initialize rate limit store", "error", err)
	}

	return store
}

// initWarmer runs the cache warmer in the background. The returned channel
// is closed once it has stopped using the service.
func (a *ConverterApp) initWarmer(ctx context.Context, converter *service.Service) <-chan struct{} {
	w := warmer.NewWarmer(converter, a.cfg.WarmerBases(), a.cfg.Warmer.Interval, a.cfg.Provider.Timeout, slog.Default())

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)

		if err := w.Start(ctx); err != nil {
			slog.Info("Cache warmer stopped", "error", err)
		}
	}()

	return doneChan
}

// shutdown waits for every channel in waits, then closes closers in order.
// The returned channel is closed when all of that is done.
func shutdown(waits []<-chan struct{}, closers ...io.Closer) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		for _, w := range waits {
			<-w
		}

		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Error("Failed to close resource", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func (a *ConverterApp) StartServer(ctx context.Context, deps public.Deps) <-chan struct{} {
	server, err := public.NewServer(a.cfg, deps)
	if err != nil {
		log.Fatalln("Failed to initialize http server", "error", err)
	}

	return public.StartServer(ctx, server)
}
