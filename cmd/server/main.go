package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"blogshop/internal/auth"
	"blogshop/internal/checkout"
	"blogshop/internal/config"
	"blogshop/internal/db"
	"blogshop/internal/engagement"
	"blogshop/internal/handlers"
	"blogshop/internal/jobs"
	"blogshop/internal/logging"
	"blogshop/internal/media"
	"blogshop/internal/messaging"
	"blogshop/internal/payment"
)

func main() {
	configPath := flag.String("config", os.Getenv("BLOGSHOP_CONFIG"), "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.JSON, os.Stderr)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	// Create data dir for DB
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	dbc, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer dbc.Close()
	if err := db.Migrate(dbc); err != nil {
		return err
	}
	store := db.New(dbc)

	storage, err := media.NewStorage(cfg.Media.Root, cfg.Media.MaxBytes)
	if err != nil {
		return err
	}

	deps := handlers.Deps{
		Store:      store,
		Sessions:   auth.NewManager(store, cfg.Session.TTL, cfg.Server.CookieSecure),
		Engagement: engagement.New(store, log.WithField("component", "engagement")),
		Messages:   messaging.New(store, log.WithField("component", "messaging")),
		Media:      storage,
		Log:        log.WithField("component", "http"),
		RateLimit:  rate.Limit(cfg.Server.RateLimit),
		RateBurst:  cfg.Server.RateBurst,
		MaxUpload:  cfg.Media.MaxBytes + 1<<20,
	}
	if cfg.PaymentsEnabled() {
		gw := payment.NewStripe(payment.StripeConfig{
			SecretKey:  cfg.Payment.StripeKey,
			APIURL:     cfg.Payment.StripeAPIURL,
			Timeout:    cfg.Payment.GatewayTimeout,
			MaxRetries: cfg.Payment.StripeRetries,
		}, log.WithField("component", "stripe"))
		deps.Orchestrator = checkout.New(store, gw, checkout.Config{
			Currency:       cfg.Payment.Currency,
			BaseURL:        cfg.Server.BaseURL,
			TokenSecret:    cfg.Payment.TokenSecret,
			GatewayTimeout: cfg.Payment.GatewayTimeout,
			MaxAttempts:    cfg.Payment.MaxAttempts,
			RetryBackoff:   cfg.Payment.RetryBackoff,
		}, log.WithField("component", "checkout"))
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, checkout is disabled")
	}

	sched := jobs.New(store, log.WithField("component", "jobs"), cfg.Jobs.StaleAfter)
	if err := sched.Register(cfg.Jobs.SessionPurge, cfg.Jobs.OrderSweep); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handlers.New(deps).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
