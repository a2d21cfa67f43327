// Package app wires the authgate server runtime: config, logging, the account
// store, the session authority and the HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	authapi "authgate/cmd/internal/auth/api"
	"authgate/cmd/internal/auth/credential"
	"authgate/cmd/internal/auth/flows"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/internal/metrics"
	"authgate/cmd/security/password"
)

// App is the authgate server runtime: it owns the store and the HTTP server wiring.
type App struct {
	cfg Config
	log Logger

	store   storeHandle
	metrics *metrics.Metrics
	auth    *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
// Secrets and auth policy are read from the environment once, here.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(sessCfg); err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	flowsCfg := flows.LoadConfigFromEnv()
	if flowsCfg.AdminSecret == "" {
		log.Warn("auth.admin_register.disabled", "reason", "AUTHGATE_ADMIN_SECRET is not set")
	}

	codec, err := credential.NewCodec(sessCfg.CodecConfig())
	if err != nil {
		return nil, err
	}

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	sessOpts := []session.Option{session.WithLogger(log)}
	flowOpts := []flows.Option{flows.WithLogger(log)}
	if cfg.MetricsEnabled {
		m = metrics.New(true)
		sessOpts = append(sessOpts, session.WithRecorder(m))
		flowOpts = append(flowOpts, flows.WithRecorder(m))
	}

	authority, err := session.NewAuthority(codec, st.store, sessOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	svc, err := flows.NewService(flowsCfg, st.store, authority, pwCfg, flowOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	authHandler, err := authapi.NewHandler(log, svc, authority, authapi.LoadConfigFromEnv())
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: m,
		auth:    authHandler,
	}, nil
}

// Handler returns the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.store, a.metrics, a.auth)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	return WithRequestID(h)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.store.kind, "metrics", a.metrics != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
