package replay

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
)

const maxLineBytes = 10 * 1024 * 1024

// Handler processes one decoded delivery read from the input.
type Handler func(ctx context.Context, line int, payload model.WebhookPayload) error

type Stats struct {
	Lines    int
	Skipped  int
	Replayed int
	Invalid  int
}

// Replayer feeds recorded webhook bodies, one JSON document per line, through
// a Handler and checkpoints the last handled line.
type Replayer struct {
	input      string
	checkpoint *CheckpointStore
	logger     *zap.Logger
}

func New(input string, checkpoint *CheckpointStore, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkpoint == nil {
		checkpoint = NewCheckpointStore("", false)
	}
	return &Replayer{input: input, checkpoint: checkpoint, logger: logger}
}

// Run reads src to the end. A Handler error stops the run; the checkpoint
// then points at the last line that succeeded. Resuming fails with
// ErrInputChanged when the already replayed lines differ from the checkpoint.
func (r *Replayer) Run(ctx context.Context, src io.Reader, handle Handler) (Stats, error) {
	var stats Stats

	var resume Position
	pos, ok, err := r.checkpoint.Load()
	if err != nil {
		return stats, err
	}
	if ok {
		if pos.Input == r.input {
			resume = pos
			r.logger.Info("resume from checkpoint", zap.Int("last_line", pos.Line))
		} else {
			r.logger.Warn("checkpoint belongs to another input, starting over",
				zap.String("checkpoint_input", pos.Input))
		}
	}

	scanner := bufio.NewScanner(src)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)
	digest := sha256.New()

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		digest.Write(scanner.Bytes())
		digest.Write([]byte{'\n'})

		if line <= resume.Line {
			stats.Skipped++
			if line == resume.Line && hex.EncodeToString(digest.Sum(nil)) != resume.Digest {
				return stats, fmt.Errorf("%w: line %d", ErrInputChanged, line)
			}
			continue
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		stats.Lines++

		payload, err := normalizer.DecodePayload(raw)
		if err != nil {
			stats.Invalid++
			r.logger.Warn("invalid payload line", zap.Int("line", line), zap.Error(err))
		} else {
			if err := handle(ctx, line, payload); err != nil {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Replayed++
		}

		if err := r.checkpoint.Save(Position{
			Input:  r.input,
			Line:   line,
			Digest: hex.EncodeToString(digest.Sum(nil)),
		}); err != nil {
			return stats, err
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	if line < resume.Line {
		return stats, fmt.Errorf("%w: %d lines, checkpoint at %d", ErrInputChanged, line, resume.Line)
	}
	return stats, nil
}
