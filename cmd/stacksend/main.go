package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bituzin/stacksend/internal/retry"
	"github.com/bituzin/stacksend/internal/storage/postgres"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "stacksend",
		Short:        "StackSend multi-send webhook ledger",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks, the user API and the Telegram bot",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":3001", "HTTP listen address")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("ack-mode", "validate-first", "webhook ack policy (validate-first, ack-first)")
	serveCmd.Flags().String("stx-dialect", "decoded-args", "STX endpoint dialect (decoded-args, legacy)")
	serveCmd.Flags().String("webhook-token", "", "shared bearer token required on webhook requests")
	serveCmd.Flags().Int64("max-body-bytes", 10<<20, "maximum webhook body size")
	serveCmd.Flags().Duration("processing-timeout", time.Minute, "per delivery processing timeout")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().String("explorer-url", "https://explorer.hiro.so", "block explorer base URL")
	serveCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().String("telegram-token", "", "Telegram bot token")
	serveCmd.Flags().Bool("bot-enabled", true, "answer Telegram bot commands")
	serveCmd.Flags().Int("notify-concurrency", 4, "parallel notifications per transfer")
	serveCmd.Flags().Float64("notify-rate", 25, "Telegram messages per second")
	serveCmd.Flags().Duration("notify-timeout", 10*time.Second, "Telegram request timeout")
	serveCmd.Flags().String("contract-mainnet", "", "accepted multi-send contract on mainnet")
	serveCmd.Flags().String("contract-testnet", "", "accepted multi-send contract on testnet")
	serveCmd.Flags().String("nats-url", "", "NATS URL for transfer events")
	serveCmd.Flags().String("nats-subject", "stacksend.transfers.recorded", "NATS subject for transfer events")
	serveCmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	serveCmd.Flags().Bool("auto-migrate", false, "apply migrations on start")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded webhook payloads through the pipeline",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input JSONL, one webhook body per line")
	replayCmd.Flags().String("endpoint", "stx", "endpoint the payloads were sent to (stx, ft)")
	replayCmd.Flags().String("stx-dialect", "decoded-args", "STX dialect (decoded-args, legacy)")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().Bool("dry-run", false, "normalize into a JSONL file instead of the database")
	replayCmd.Flags().String("out", "./data/normalized.jsonl", "dry-run output JSONL path")
	replayCmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().String("contract-mainnet", "", "accepted multi-send contract on mainnet")
	replayCmd.Flags().String("contract-testnet", "", "accepted multi-send contract on testnet")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func connectStore(ctx context.Context, dsn string, retries int, backoff time.Duration, logger *zap.Logger) (*postgres.Store, error) {
	var store *postgres.Store
	err := retry.Do(ctx, retry.Policy{
		MaxRetries: retries,
		BaseDelay:  backoff,
		MaxDelay:   10 * time.Second,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("postgres connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) error {
		s, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return err
		}
		store = s
		return nil
	})
	return store, err
}
