package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bituzin/stacksend/internal/api"
	"github.com/bituzin/stacksend/internal/bot"
	"github.com/bituzin/stacksend/internal/config"
	"github.com/bituzin/stacksend/internal/events"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
	"github.com/bituzin/stacksend/internal/notify"
	"github.com/bituzin/stacksend/internal/pipeline"
	"github.com/bituzin/stacksend/internal/tracing"
	"github.com/bituzin/stacksend/internal/webhook"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "stacksend", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		return err
	}

	store, err := connectStore(ctx, cfg.PGDSN, cfg.DBConnectRetries, cfg.DBConnectBackoff, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if cfg.AutoMigrate {
		if _, err := store.Migrate(ctx, logger); err != nil {
			return err
		}
	}

	var (
		sender   notify.Sender
		telegram *notify.TelegramSender
		notifier pipeline.Notifier
	)
	if cfg.TelegramToken != "" {
		telegram, err = notify.NewTelegramSender(notify.TelegramConfig{
			Token:       cfg.TelegramToken,
			APIEndpoint: cfg.TelegramAPIEndpoint,
			RatePerSec:  cfg.NotifyRate,
			Timeout:     cfg.NotifyTimeout,
		})
		if err != nil {
			return err
		}
		sender = telegram
		notifier = notify.NewDispatcher(telegram, store, cfg.ExplorerURL, logger)
	} else {
		logger.Warn("telegram token not set, notifications disabled")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		publisher = nc
	}
	defer publisher.Close()

	stxDetector, err := normalizer.DetectorByName(cfg.STXDialect)
	if err != nil {
		return err
	}
	contracts := map[model.Network]string{
		model.NetworkMainnet: cfg.ContractMainnet,
		model.NetworkTestnet: cfg.ContractTestnet,
	}
	deps := pipeline.Deps{
		Store:             store,
		Notifier:          notifier,
		Publisher:         publisher,
		NotifyConcurrency: cfg.NotifyConcurrency,
		SideEffectTimeout: cfg.ProcessingTimeout,
		Logger:            logger,
	}
	stxProcessor := pipeline.New(normalizer.New(stxDetector, contracts), deps)
	ftProcessor := pipeline.New(normalizer.New(normalizer.DecodedFTDetector{}, contracts), deps)

	runner := webhook.NewRunner(cfg.ProcessingTimeout, webhook.LogSink(logger))
	hooks := webhook.NewHandler(stxProcessor, ftProcessor, runner, webhook.Options{
		AckMode:           cfg.AckMode,
		AuthToken:         cfg.WebhookToken,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		ProcessingTimeout: cfg.ProcessingTimeout,
	}, logger)

	router := mux.NewRouter()
	hooks.Register(router)
	api.NewServer(store, sender, version, logger).Register(router)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Wrap(router, cfg.CORSOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serve start",
			zap.String("listen", cfg.Listen),
			zap.String("ack_mode", cfg.AckMode),
			zap.String("stx_dialect", stxDetector.Name()),
			zap.Bool("notifications", notifier != nil),
			zap.Bool("nats", cfg.NATSURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var botAPI *tgbotapi.BotAPI
	if telegram != nil && cfg.BotEnabled {
		botAPI = telegram.API()
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates := botAPI.GetUpdatesChan(u)
		service := bot.NewService(store, logger.Named("bot"))
		g.Go(func() error {
			if err := service.Run(gctx, updates, telegram); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bot: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if botAPI != nil {
			botAPI.StopReceivingUpdates()
		}
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
