package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"wellness-hub-go/internal/config"
	"wellness-hub-go/internal/dispatch"
	"wellness-hub-go/internal/handlers"
	"wellness-hub-go/internal/llm"
	"wellness-hub-go/internal/logger"
	"wellness-hub-go/internal/store"
	"wellness-hub-go/internal/ticker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis holds the ephemeral in-app notification feed.
	feedStore := store.NewRedisStore(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// PostgreSQL holds everything durable.
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to PostgreSQL", "error", err)
	}
	defer pgStore.Close()

	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatalw("failed to run migrations", "error", err)
	}
	log.Info("database migrations completed")

	handlers.InitSessions(cfg.SessionSecret)

	vapidPub, vapidPriv, err := handlers.InitVAPID(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, log)
	if err != nil {
		log.Fatalw("failed to initialize VAPID keys", "error", err)
	}

	// Delivery channels. Push is always on; email only with a configured
	// sender address.
	registry := &dispatch.Registry{}
	registry.Register(&dispatch.WebPushChannel{
		VAPIDPublicKey:  vapidPub,
		VAPIDPrivateKey: vapidPriv,
		Subscriber:      cfg.VAPIDSubscriber,
		Pruner:          pgStore,
		Log:             log,
	})
	if cfg.SESEmail != "" {
		emailCh, err := dispatch.NewEmailChannel(ctx, cfg.AWSRegion, cfg.SESEmail)
		if err != nil {
			log.Fatalw("failed to initialize email channel", "error", err)
		}
		registry.Register(emailCh)
		log.Infow("email channel enabled", "sender", cfg.SESEmail)
	} else {
		log.Info("SES_EMAIL not set, email channel disabled")
	}

	dispatcher := dispatch.NewDispatcher(pgStore, registry, log, cfg.DispatchBatch)
	llmClient := llm.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout)

	h := handlers.NewHandler(pgStore, feedStore, llmClient, dispatcher, log)
	h.DispatchSecret = cfg.DispatchSecret

	// Server-side sweep, every DISPATCH_INTERVAL.
	go func() {
		tk := time.NewTicker(cfg.DispatchInterval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if _, err := dispatcher.Run(ctx); err != nil {
					log.Errorw("scheduled dispatch failed", "error", err)
				}
			}
		}
	}()

	// In-app toast loop, every TICK_INTERVAL, independent of the sweep.
	appTicker := ticker.New(pgStore, feedStore, log, cfg.TickInterval, cfg.DueWindow)
	go appTicker.Run(ctx)

	// Auth
	http.HandleFunc("/api/register", h.RegisterHandler)
	http.HandleFunc("/api/login", h.LoginHandler)
	http.HandleFunc("/api/logout", h.LogoutHandler)
	http.HandleFunc("/api/me", handlers.AuthMiddleware(h.MeHandler))

	// 2FA
	http.HandleFunc("/api/2fa/setup", handlers.AuthMiddleware(h.Setup2FAHandler))
	http.HandleFunc("/api/2fa/verify", handlers.AuthMiddleware(h.Enable2FAHandler))
	http.HandleFunc("/api/2fa/disable", handlers.AuthMiddleware(h.Disable2FAHandler))
	http.HandleFunc("/api/2fa/login", h.Verify2FALoginHandler)

	// Reminders
	http.HandleFunc("/api/reminders", handlers.AuthMiddleware(h.RemindersHandler))
	http.HandleFunc("/api/reminders/", handlers.AuthMiddleware(h.ReminderItemHandler))

	// Push subscriptions
	http.HandleFunc("/api/push/key", h.GetVAPIDKeyHandler)
	http.HandleFunc("/api/push/subscribe", handlers.AuthMiddleware(h.SubscribePushHandler))
	http.HandleFunc("/api/push/unsubscribe", handlers.AuthMiddleware(h.UnsubscribePushHandler))

	// Domain snapshots
	http.HandleFunc("/api/snapshots/", handlers.AuthMiddleware(h.SnapshotHandler))

	// Assistant proxy
	http.HandleFunc("/api/assistant/", handlers.AuthMiddleware(h.AssistantHandler))

	// In-app notification feed
	http.HandleFunc("/events", h.SSEHandler)
	http.HandleFunc("/api/notifications", handlers.AuthMiddleware(h.NotificationsHandler))

	// Ops
	http.HandleFunc("/internal/dispatch", h.DispatchHandler)
	http.HandleFunc("/healthz", h.HealthzHandler)
	http.Handle("/metrics", promhttp.Handler())

	// Static SPA assets
	fs := http.FileServer(http.Dir("web/static"))
	http.Handle("/", fs)

	srv := &http.Server{Addr: ":" + cfg.Port}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("listening", "port", cfg.Port, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalw("server failed", "error", err)
	}
}
