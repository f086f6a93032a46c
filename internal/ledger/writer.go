package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/metrics"
	"github.com/bituzin/stacksend/internal/model"
)

// ErrInconsistentTransfer is returned for transfers whose totals or positions
// do not match their recipients. Nothing is written for them.
var ErrInconsistentTransfer = errors.New("inconsistent transfer")

// TransferStore persists a transfer and its recipients atomically, skipping
// the write when the tx id is already recorded.
type TransferStore interface {
	CreateTransfer(ctx context.Context, t model.NormalizedTransfer) (model.LedgerWrite, error)
}

// Writer records normalized transfers at most once per tx id.
type Writer struct {
	store  TransferStore
	logger *zap.Logger
}

func NewWriter(store TransferStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// Write returns a LedgerWrite with Duplicate set when the transfer already
// exists. Storage faults are returned wrapped and are safe to retry.
func (w *Writer) Write(ctx context.Context, t model.NormalizedTransfer) (model.LedgerWrite, error) {
	if err := Validate(t); err != nil {
		return model.LedgerWrite{}, err
	}

	res, err := w.store.CreateTransfer(ctx, t)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("transfer").Inc()
		return model.LedgerWrite{}, fmt.Errorf("write transfer %s: %w", t.Event.TxID, err)
	}

	labels := []string{string(t.Event.Network), string(t.Event.TransferType)}
	if res.Duplicate {
		metrics.TransfersDuplicate.WithLabelValues(labels...).Inc()
		w.logger.Info("transfer already recorded", zap.String("tx_id", t.Event.TxID))
		return res, nil
	}
	if len(res.RecipientIDs) != len(t.Recipients) {
		return model.LedgerWrite{}, fmt.Errorf("write transfer %s: stored %d of %d recipients", t.Event.TxID, len(res.RecipientIDs), len(t.Recipients))
	}

	metrics.TransfersRecorded.WithLabelValues(labels...).Inc()
	w.logger.Info("transfer recorded",
		zap.String("tx_id", t.Event.TxID),
		zap.Int64("transfer_id", res.TransferID),
		zap.String("type", string(t.Event.TransferType)),
		zap.Int("recipients", len(t.Recipients)),
		zap.Int64("total_amount", t.Event.TotalAmount),
	)
	return res, nil
}

// Validate checks the amount conservation and position invariants.
func Validate(t model.NormalizedTransfer) error {
	ev := t.Event
	if ev.TxID == "" || ev.SenderAddress == "" {
		return fmt.Errorf("%w: missing tx id or sender", ErrInconsistentTransfer)
	}
	if ev.RecipientCount != len(t.Recipients) || len(t.Recipients) == 0 {
		return fmt.Errorf("%w: recipient count %d for %d recipients", ErrInconsistentTransfer, ev.RecipientCount, len(t.Recipients))
	}
	if (ev.TransferType == model.TransferSTX) != (ev.TokenContract == nil) {
		return fmt.Errorf("%w: token contract must be set iff FT", ErrInconsistentTransfer)
	}

	var total int64
	for i, r := range t.Recipients {
		if r.PositionInList != i {
			return fmt.Errorf("%w: position %d at index %d", ErrInconsistentTransfer, r.PositionInList, i)
		}
		total += r.Amount
	}
	if total != ev.TotalAmount {
		return fmt.Errorf("%w: total %d != sum %d", ErrInconsistentTransfer, ev.TotalAmount, total)
	}
	return nil
}
