package public

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/langowen/converter/deploy/config"
	"github.com/langowen/converter/internal/converter/auth"
	"github.com/langowen/converter/internal/converter/metrics"
	"github.com/langowen/converter/internal/converter/ports/http/public/middleware/authz"
	"github.com/langowen/converter/internal/converter/ports/http/public/middleware/clientid"
	mwLogger "github.com/langowen/converter/internal/converter/ports/http/public/middleware/logger"
	"github.com/langowen/converter/internal/converter/ports/http/public/middleware/ratelimit"
	"github.com/langowen/converter/internal/converter/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
)

type Deps struct {
	Providers Providers
	Provider  service.ProviderID
	// Auth is nil when authentication is disabled.
	Auth       Authenticator
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	LimitStore limiter.Store
	Logger     *slog.Logger
}

type Server struct {
	Server    *http.Server
	cfg       *config.Config
	providers Providers
	provider  service.ProviderID
	auth      Authenticator
	metrics   *metrics.Metrics
	validate  *validator.Validate
	log       *slog.Logger
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		providers: deps.Providers,
		provider:  deps.Provider,
		auth:      deps.Auth,
		metrics:   deps.Metrics,
		validate:  newValidator(),
		log:       log,
	}

	router, err := s.routes(deps)
	if err != nil {
		return nil, err
	}

	s.Server = &http.Server{
		Addr:         ":" + cfg.HTTPServer.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return s, nil
}

func (s *Server) routes(deps Deps) (http.Handler, error) {
	store := deps.LimitStore
	if store == nil {
		store, _ = ratelimit.NewStore(ratelimit.StoreMemory, "", nil)
	}

	limit, err := ratelimit.PerIP(s.cfg.RateLimit.Rate, store, func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, http.StatusTooManyRequests, "Too many requests")
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwLogger.New(s.log))
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(limit)
		r.Use(clientid.Require(func(w http.ResponseWriter, r *http.Request) {
			RespondWithError(w, http.StatusBadRequest, "clientid header is required")
		}))

		if s.auth != nil {
			r.Post("/auth/login", s.Login)
		}

		r.Route("/v1/converter", func(r chi.Router) {
			if s.auth != nil {
				r.Use(authz.Authenticate(s.auth, RespondWithError))
				r.Use(authz.RequireRoles(RespondWithError, auth.RoleAdmin, auth.RoleGuest))
			}

			r.Get("/latest", s.GetLatestRates)
			r.Post("/convert", s.ConvertCurrency)
			r.Get("/history", s.GetHistoricalRates)
		})
	})

	return r, nil
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

func StartServer(ctx context.Context, server *Server) <-chan struct{} {
	doneChan := make(chan struct{})

	go func() {
		if err := server.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop server", "error", err)
		}

		close(doneChan)
	}()

	return doneChan
}
