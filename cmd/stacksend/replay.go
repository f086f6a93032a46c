package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/config"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
	"github.com/bituzin/stacksend/internal/pipeline"
	"github.com/bituzin/stacksend/internal/replay"
	"github.com/bituzin/stacksend/internal/storage"
	"github.com/bituzin/stacksend/internal/storage/memory"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
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

	var detector normalizer.Detector = normalizer.DecodedFTDetector{}
	if cfg.Endpoint == "stx" {
		detector, err = normalizer.DetectorByName(cfg.STXDialect)
		if err != nil {
			return err
		}
	}
	n := normalizer.New(detector, map[model.Network]string{
		model.NetworkMainnet: cfg.ContractMainnet,
		model.NetworkTestnet: cfg.ContractTestnet,
	})

	checkpoints := replay.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	cp, resuming, err := checkpoints.Load()
	if err != nil {
		return err
	}
	resuming = resuming && cp.Input == cfg.In

	var (
		store pipeline.Store
		sink  storage.TransferSink
	)
	if cfg.DryRun {
		store = memory.New()
		jsonl, err := storage.NewJsonlStorage(cfg.Out, !resuming)
		if err != nil {
			return err
		}
		sink = jsonl
	} else {
		pg, err := connectStore(ctx, cfg.PGDSN, 3, 0, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	// Replays never notify: recipients were notified on the original delivery.
	proc := pipeline.New(n, pipeline.Deps{Store: store, Logger: logger})

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("dialect", detector.Name()),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	var total pipeline.Summary
	stats, err := replay.New(cfg.In, checkpoints, logger).Run(ctx, inputFile,
		func(ctx context.Context, line int, payload model.WebhookPayload) error {
			if sink != nil {
				if err := sink.PutTransfers(proc.Normalize(payload).Transfers); err != nil {
					return err
				}
			}
			sum := proc.Process(ctx, payload)
			addSummary(&total, sum)
			if sum.Failed > 0 {
				return fmt.Errorf("%d transfers failed to store", sum.Failed)
			}
			return nil
		})

	logger.Info("replay complete",
		zap.Int("lines", stats.Lines),
		zap.Int("resumed_past", stats.Skipped),
		zap.Int("replayed", stats.Replayed),
		zap.Int("invalid", stats.Invalid),
		zap.Int("transfers", total.Transfers),
		zap.Int("recorded", total.Recorded),
		zap.Int("duplicates", total.Duplicates),
		zap.Int("skipped_txs", total.Skipped),
		zap.Int("faults", total.Faults),
	)
	return err
}

func addSummary(total *pipeline.Summary, s pipeline.Summary) {
	total.Transfers += s.Transfers
	total.Recorded += s.Recorded
	total.Duplicates += s.Duplicates
	total.Skipped += s.Skipped
	total.Faults += s.Faults
	total.Failed += s.Failed
	total.UnparsableAmount += s.UnparsableAmount
}
