package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"

	"github.com/cntech/bitalert/internal/api"
	"github.com/cntech/bitalert/internal/bot"
	"github.com/cntech/bitalert/internal/config"
	"github.com/cntech/bitalert/internal/domain"
	"github.com/cntech/bitalert/internal/infrastructure/badgerdb"
	"github.com/cntech/bitalert/internal/infrastructure/crypto"
	"github.com/cntech/bitalert/internal/infrastructure/database"
	"github.com/cntech/bitalert/internal/infrastructure/memory"
	"github.com/cntech/bitalert/internal/infrastructure/notify"
	"github.com/cntech/bitalert/internal/infrastructure/redis"
	"github.com/cntech/bitalert/internal/infrastructure/stream"
	"github.com/cntech/bitalert/internal/logging"
	"github.com/cntech/bitalert/internal/store"
	"github.com/cntech/bitalert/internal/usecase"
	"github.com/cntech/bitalert/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(start(os.Args[1:]))
}

// start returns the process exit code so deferred cleanup runs before exit.
func start(args []string) int {
	flags := flag.NewFlagSet("bitalert", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		slog.Error("failed to init logger", slog.String("error", err.Error()))
		return 1
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("bitalert stopped with error", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("bitalert stopped gracefully")
	return 0
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pair, err := domain.ParsePair(cfg.Feed.Pair)
	if err != nil {
		return err
	}

	// Persistence
	cipher, err := crypto.NewCipher(cfg.Storage.EncryptionKey)
	if err != nil {
		return err
	}
	repo, closeRepo, err := openRepository(ctx, cfg, cipher, logger)
	if err != nil {
		return err
	}
	defer closeRepo.Close()

	candidates, err := openCandidates(ctx, cfg)
	if err != nil {
		return err
	}

	// Notifications
	var tgBot *tgbotapi.BotAPI
	if cfg.Telegram.BotToken != "" {
		tgBot, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		tgBot.Debug = false
		logger.Info("Telegram bot authorized", slog.String("username", tgBot.Self.UserName))
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	var mirrors []domain.Notifier
	if tgBot != nil {
		mirrors = append(mirrors, notify.NewTelegramNotifier(tgBot, cfg.Telegram.AdminID))
	}
	if cfg.Webhook.URL != "" {
		mirrors = append(mirrors, notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout))
	}
	alerts := notify.NewMulti(mailer, logger, mirrors...)

	// Core
	thresholds := store.New()
	subscriptions := usecase.NewSubscriptionService(thresholds, candidates, repo, mailer, usecase.SubscriptionConfig{
		BaseURL:       cfg.BaseURL,
		ActivationTTL: cfg.Activation.TTL,
	}, logger)
	if err := subscriptions.Restore(ctx); err != nil {
		return err
	}

	currency := cfg.Dispatch.Currency
	if currency == "" {
		currency = pair.Quote
	}
	dispatcher := worker.NewDispatcher(alerts, worker.DispatcherConfig{
		Timeout:     cfg.Dispatch.Timeout,
		Concurrency: cfg.Dispatch.Concurrency,
		Currency:    currency,
	}, logger)
	engine := worker.NewEngine(thresholds, dispatcher, logger)

	var venue stream.Venue
	switch cfg.Feed.Exchange {
	case "bybit":
		venue = stream.NewBybit(pair, cfg.Feed.Testnet)
	default:
		venue = stream.NewBitstamp(pair)
	}
	feed := stream.NewMarketStream(venue, logger)

	// HTTP
	handler := api.NewHandler(subscriptions, engine, logger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           api.NewRouter(handler, cfg.HTTP.StaticDir, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting bitalert",
		slog.String("env", cfg.Env),
		slog.String("exchange", venue.Name()),
		slog.String("pair", pair.String()),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("addr", srv.Addr))

	errCh := make(chan error, 2)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if tgBot != nil {
		botHandler := bot.NewHandler(tgBot, thresholds, engine, dispatcher, pair.String(), cfg.Telegram.AdminID, logger)
		go botHandler.Start(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	logger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", slog.String("error", err.Error()))
	}
	feed.Close()
	// the last tick may still be handing matches to the dispatcher
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logger.Warn("Match engine did not stop in time")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Dispatcher did not drain", slog.String("error", err.Error()))
	}

	stats := dispatcher.Stats()
	logger.Info("Dispatch totals",
		slog.Int64("attempted", stats.Attempted),
		slog.Int64("delivered", stats.Delivered),
		slog.Int64("failed", stats.Failed))
	return runErr
}

func openRepository(ctx context.Context, cfg *config.Config, cipher crypto.Cipher, logger *slog.Logger) (domain.SubscriberRepository, io.Closer, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,

			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return database.NewSubscriberRepository(db, cipher, logger), db, nil
	case "badger":
		repo, err := badgerdb.Open(badgerdb.Options{Path: cfg.Storage.BadgerPath}, cipher, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		return memory.NewSubscriberRepository(), closerFunc(func() error { return nil }), nil
	}
}

func openCandidates(ctx context.Context, cfg *config.Config) (domain.CandidateStore, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewCandidateStore(), nil
	}
	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	return redis.NewCandidateStore(client, cfg.Redis.Prefix), nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (domain.Notifier, error) {
	if cfg.SMTP.Username == "" {
		logger.Warn("SMTP username not set, notifications are only logged")
		return notify.NewLogNotifier(logger), nil
	}
	mailer, err := notify.NewEmailNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		StartTLS: cfg.SMTP.StartTLS,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
