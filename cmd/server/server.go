// cmd/server/server.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api"
	"github.com/codr1/Kickabout/internal/api/admin"
	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/auth"
	"github.com/codr1/Kickabout/internal/api/bot"
	"github.com/codr1/Kickabout/internal/api/games"
	"github.com/codr1/Kickabout/internal/api/me"
	"github.com/codr1/Kickabout/internal/api/users"
	"github.com/codr1/Kickabout/internal/api/verifysms"
	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/cognito"
	"github.com/codr1/Kickabout/internal/config"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/email"
	"github.com/codr1/Kickabout/internal/league"
	"github.com/codr1/Kickabout/internal/notify"
	"github.com/codr1/Kickabout/internal/ratelimit"
	"github.com/codr1/Kickabout/internal/scheduler"
	"github.com/codr1/Kickabout/internal/verify"
)

const (
	devVerificationCode = "123456"
	botSendTimeout      = 10 * time.Second
	healthTimeout       = 2 * time.Second
)

// app owns everything that has to be released on shutdown.
type app struct {
	server     *http.Server
	store      db.Store
	dispatcher *notify.Dispatcher
}

// routes collects the dependencies the HTTP handlers are built from.
type routes struct {
	store      db.Store
	league     *league.Service
	auth       *auth.Handler
	tokens     *auth.Tokens
	verifier   verify.Verifier
	limiter    *ratelimit.Limiter
	trustProxy bool
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sender, err := newBotSender(ctx, cfg.Bot)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}
	dispatcher := notify.NewDispatcher(sender, store, notify.DispatcherConfig{
		Workers:       cfg.Bot.Workers,
		QueueSize:     cfg.Bot.QueueSize,
		RatePerSecond: cfg.Bot.RatePerSecond,
		SendTimeout:   botSendTimeout,
	})

	a := &app{store: store, dispatcher: dispatcher}
	fail := func(err error) (*app, error) {
		a.shutdown(ctx)
		return nil, err
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	svc := league.NewService(store, dispatcher, clock.RealClock{}, loc)
	tokens := auth.NewTokens(cfg.App.SecretKey, cfg.Auth, clock.RealClock{})
	cookies := auth.Cookies{Secure: !cfg.IsDevelopment()}
	limiter := ratelimit.New(ratelimit.DefaultConfig())

	if err := startScheduler(ctx, cfg, loc, svc, store, limiter); err != nil {
		return fail(err)
	}

	handler := newHandler(routes{
		store:      store,
		league:     svc,
		auth:       auth.NewHandler(store, tokens, cookies, cfg.Auth.RequirePhoneVerification),
		tokens:     tokens,
		verifier:   verifier,
		limiter:    limiter,
		trustProxy: cfg.Auth.TrustProxy,
	})

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func newBotSender(ctx context.Context, cfg config.BotConfig) (notify.Sender, error) {
	if !cfg.Enabled() {
		log.Warn().Msg("Bot API not configured, messages will only be logged")
		return notify.LogSender{}, nil
	}
	client, err := notify.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create bot client: %w", err)
	}
	return client, nil
}

func newVerifier(ctx context.Context, cfg *config.Config) (verify.Verifier, error) {
	if cfg.Cognito.PoolID != "" {
		client, err := cognito.NewClient(ctx, cfg.Cognito.PoolID, cfg.Cognito.ClientID)
		if err != nil {
			return nil, fmt.Errorf("create cognito client: %w", err)
		}
		return verify.NewCognitoVerifier(client), nil
	}
	if !cfg.IsDevelopment() {
		return nil, errors.New("cognito is required outside development")
	}
	log.Warn().Str("code", devVerificationCode).Msg("Using development SMS verifier")
	return verify.DevVerifier{Code: devVerificationCode}, nil
}

func startScheduler(ctx context.Context, cfg *config.Config, loc *time.Location, svc *league.Service, store db.Store, limiter *ratelimit.Limiter) error {
	if err := scheduler.Init(loc); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	jobs := scheduler.LeagueJobs{
		Config:          cfg.Scheduler,
		LeagueName:      cfg.App.Name,
		Games:           svc,
		Store:           store,
		DigestRecipient: cfg.Email.DigestRecipient,
		Limiter:         limiter,
	}
	if cfg.Email.Enabled() {
		ses, err := email.NewSESClient(ctx, cfg.Email)
		if err != nil {
			return fmt.Errorf("create ses client: %w", err)
		}
		jobs.Email = ses
	}

	if err := scheduler.RegisterLeagueJobs(jobs); err != nil {
		return fmt.Errorf("register scheduler jobs: %w", err)
	}
	return scheduler.Start()
}

func newHandler(deps routes) http.Handler {
	router := http.NewServeMux()
	registerRoutes(router, deps)

	// Setup middleware chain
	return api.ChainMiddleware(
		router,
		api.WithAuth(deps.auth),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)
}

func registerRoutes(mux *http.ServeMux, deps routes) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := deps.store.Ping(ctx); err != nil {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusServiceUnavailable,
				Message: "Database unavailable",
				Err:     err,
			})
			return
		}
		apiutil.WriteData(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	deps.auth.Register(mux)
	verifysms.NewHandler(deps.verifier, deps.limiter, deps.tokens, deps.store, deps.trustProxy).Register(mux)

	games.NewHandler(deps.league).Register(mux)
	users.NewHandler(deps.store, deps.league).Register(mux)
	admin.NewHandler(deps.league).Register(mux)
	me.NewHandler(deps.store, deps.league).Register(mux)
	bot.NewHandler(deps.store, deps.league).Register(mux)
}

// shutdown stops background work before closing the store it writes to.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown error: %w", err))
		}
	}
	if err := scheduler.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotInitialized) {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain bot queue: %w", err))
		}
	}
	if err := a.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
