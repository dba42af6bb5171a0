package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	sa "github.com/panyam/sessionauth"
	"github.com/panyam/sessionauth/cache"
	"github.com/panyam/sessionauth/config"
	"github.com/panyam/sessionauth/mail"
	"github.com/panyam/sessionauth/oauth2"
	"github.com/panyam/sessionauth/queue"
	gormstore "github.com/panyam/sessionauth/stores/gorm"
)

const sessionSweepInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(mysql.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("database handle failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := gormstore.AutoMigrate(db); err != nil {
		logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := gormstore.NewStore(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jobs, err := queue.NewClientWithRedis(rdb)
	if err != nil {
		logger.Error("init queue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	jobs.WithKeyPrefix(cfg.Queue.KeyPrefix).WithMaxAttempts(cfg.Queue.MaxAttempts)
	if n, err := jobs.Recover(ctx); err != nil {
		logger.Warn("recover in-flight jobs failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("recovered in-flight jobs", slog.Int("count", n))
	}

	var sender mail.Sender
	mailCfg := mail.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.From,
		BaseURL:  cfg.App.BaseURL,
	}
	if mailCfg.Enabled() {
		sender = mail.NewSMTPSender(mailCfg, logger)
	} else {
		logger.Warn("smtp not configured, emails are logged only")
		sender = &mail.ConsoleSender{BaseURL: cfg.App.BaseURL, Logger: logger}
	}

	var providers []oauth2.Provider
	if gh := cfg.OAuth.Github; gh.Enabled() {
		p := oauth2.NewGithubOAuth2(gh.ClientID, gh.ClientSecret, gh.CallbackURL)
		p.CookieSecure = cfg.IsProduction()
		providers = append(providers, p)
	}
	if g := cfg.OAuth.Google; g.Enabled() {
		p := oauth2.NewGoogleOAuth2(g.ClientID, g.ClientSecret, g.CallbackURL)
		p.CookieSecure = cfg.IsProduction()
		providers = append(providers, p)
	}

	app := sa.NewApp(store, jobs, sa.SessionConfig{
		ActivePeriod:             cfg.Session.ActivePeriod,
		IdlePeriod:               cfg.Session.IdlePeriod,
		CookieName:               cfg.Session.CookieName,
		CookieSecure:             cfg.Session.CookieSecure,
		RequireEmailVerification: cfg.Session.RequireEmailVerification,
	}, logger, providers...)
	if cfg.Cache.Enabled {
		app.Cache = cache.New(rdb, cfg.Cache.TTL, logger)
	}

	var wg sync.WaitGroup
	worker := queue.NewWorker(jobs, mail.Processors(sender), logger).WithConcurrency(cfg.Queue.Concurrency)
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweepSessions(ctx, app.Sessions, logger)
	}()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	wg.Wait()
	if err := rdb.Close(); err != nil {
		logger.Error("redis close failed", slog.String("error", err.Error()))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("database close failed", slog.String("error", err.Error()))
	}
}

// sweepSessions deletes dead sessions that were never touched again
func sweepSessions(ctx context.Context, sessions *sa.SessionManager, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("session sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				logger.Info("swept expired sessions", slog.Int64("count", n))
			}
		}
	}
}
