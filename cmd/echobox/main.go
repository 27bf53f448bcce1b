package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/echobox/internal/adapter/email"
	cfhttp "github.com/Strob0t/echobox/internal/adapter/http"
	cfnats "github.com/Strob0t/echobox/internal/adapter/nats"
	cfotel "github.com/Strob0t/echobox/internal/adapter/otel"
	"github.com/Strob0t/echobox/internal/adapter/ristretto"
	"github.com/Strob0t/echobox/internal/adapter/slack"
	"github.com/Strob0t/echobox/internal/adapter/sse"
	"github.com/Strob0t/echobox/internal/adapter/webhook"
	"github.com/Strob0t/echobox/internal/adapter/ws"
	"github.com/Strob0t/echobox/internal/config"
	"github.com/Strob0t/echobox/internal/logger"
	"github.com/Strob0t/echobox/internal/middleware"
	"github.com/Strob0t/echobox/internal/port/broadcast"
	"github.com/Strob0t/echobox/internal/port/notifier"
	"github.com/Strob0t/echobox/internal/resilience"
	"github.com/Strob0t/echobox/internal/secrets"
	"github.com/Strob0t/echobox/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "migrate":
		err = runMigrate(os.Args[2:])
	case len(os.Args) > 1 && os.Args[1] == "channels":
		err = runChannels(os.Args[2:])
	case len(os.Args) > 1 && os.Args[1] != "serve":
		printHelp()
		err = fmt.Errorf("unknown command: %s", os.Args[1])
	default:
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: echobox [command]

Commands:
  serve      Run the HTTP server (default)
  migrate    Apply or inspect schema migrations
  channels   Manage notification channels
`)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownOtel, err := cfotel.Setup(ctx, cfotel.Config{
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	if err := be.migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied", "store", cfg.Store.Driver)

	vault, err := secrets.NewVault(secrets.DotEnvLoader(config.DefaultEnvFile, map[string]string{
		envAdminToken:   cfg.Server.AdminToken,
		envSMTPPassword: cfg.SMTP.Password,
	}))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	go reloadOnHangup(ctx, vault)
	if vault.Get(envAdminToken) == "" {
		slog.Warn("admin token not configured, developer routes are unauthenticated")
	}

	c, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()

	// --- Delivery ---

	channels := service.NewCachedChannelStore(be.store, c, cfg.Cache.ChannelTTL)
	mailer := email.NewSMTPMailer(email.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		From: cfg.SMTP.From,
	})
	mailer.SetPasswordSource(vault.Getter(envSMTPPassword))
	registry := notifier.NewRegistry(
		webhook.NewSender(webhook.WithTimeout(cfg.Delivery.SenderTimeout)),
		email.NewSender(mailer, cfg.Delivery.SenderTimeout),
		slack.NewSender(slack.WithTimeout(cfg.Delivery.SenderTimeout)),
	)
	slog.Info("channel senders registered", "types", registry.Available())

	router := service.NewChannelRouter(channels, registry)
	router.SetMaxParallel(cfg.Delivery.MaxParallel)
	router.SetMetrics(metrics)
	if b := cfg.Delivery.Breaker; b.MaxFailures > 0 {
		router.SetBreakers(resilience.NewBreakerSet[int64](b.MaxFailures, b.Timeout))
	}

	// --- Session streams ---

	bus := service.NewSessionBus()
	bus.SetMetrics(metrics)

	var publisher broadcast.Publisher = bus
	var relay *cfnats.Relay
	if cfg.NATS.URL != "" {
		relay, err = cfnats.Connect(cfg.NATS.URL, cfg.NATS.Subject, bus)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = relay.Close() }()
		publisher = relay
	}

	stream := sse.NewEndpoint(bus,
		sse.WithHeartbeat(cfg.Stream.HeartbeatInterval),
		sse.WithBufferSize(cfg.Stream.BufferSize),
		sse.WithRetryHint(cfg.Stream.RetryHint),
	)
	stream.SetMetrics(metrics)
	wsHandler := ws.NewHandler(bus, cfg.Stream.HeartbeatInterval, cfg.Stream.BufferSize)
	wsHandler.SetMetrics(metrics)
	wsHandler.SetAllowedOrigin(cfg.Server.CORSOrigin)

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Feedback:     service.NewFeedbackService(router),
		Replies:      service.NewReplyService(be.store, publisher),
		ChannelTests: service.NewChannelTestService(channels, registry),
		Stream:       stream,
		WS:           wsHandler,
	}

	routeOpts := cfhttp.RouteOptions{AdminToken: vault.Getter(envAdminToken)}
	if cfg.Rate.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
		go limiter.Run(ctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
		routeOpts.RateLimit = limiter.Handler
	}
	if cfg.Cache.IdempotencyTTL > 0 {
		routeOpts.Idempotency = middleware.Idempotency(c, cfg.Cache.IdempotencyTTL, func(r *http.Request) string {
			return r.Header.Get(cfhttp.HeaderAPIKey)
		})
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/health", cfhttp.Health(healthChecks(be, relay)...))
	cfhttp.MountRoutes(r, handlers, routeOpts)

	addr := ":" + cfg.Server.Port

	// Streams end when the base context is cancelled on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      60 * time.Second, // stream handlers clear their own deadline
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// Secrets that can be rotated by editing the dotenv file and sending SIGHUP.
const (
	envAdminToken   = "ECHOBOX_ADMIN_TOKEN"
	envSMTPPassword = "ECHOBOX_SMTP_PASSWORD" //nolint:gosec // variable name, not a credential
)

func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed, keeping previous values", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", vault.Keys())
		}
	}
}

func healthChecks(be *backend, relay *cfnats.Relay) []cfhttp.HealthCheck {
	checks := []cfhttp.HealthCheck{{Name: be.name, Check: be.store.Ping}}
	if relay != nil {
		checks = append(checks, cfhttp.HealthCheck{
			Name:     "nats",
			Optional: true,
			Check: func(context.Context) error {
				if !relay.Connected() {
					return errors.New("disconnected")
				}
				return nil
			},
		})
	}
	return checks
}
