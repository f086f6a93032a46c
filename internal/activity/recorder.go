package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/model"
)

// Store appends feed entries.
type Store interface {
	InsertActivityEntries(ctx context.Context, entries []model.ActivityEntry) error
}

// Recorder writes the sent/received feed entries of a recorded transfer.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends one received entry per recipient and one sent entry for the
// sender. recipientIDs are matched to t.Recipients by index.
func (r *Recorder) Record(ctx context.Context, transferID int64, t model.NormalizedTransfer, recipientIDs []int64) error {
	entries, err := Entries(transferID, t, recipientIDs)
	if err != nil {
		return err
	}
	if err := r.store.InsertActivityEntries(ctx, entries); err != nil {
		return fmt.Errorf("insert activity for %s: %w", t.Event.TxID, err)
	}
	r.logger.Debug("activity recorded",
		zap.String("tx_id", t.Event.TxID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Entries builds the feed entries without writing them.
func Entries(transferID int64, t model.NormalizedTransfer, recipientIDs []int64) ([]model.ActivityEntry, error) {
	if len(recipientIDs) != len(t.Recipients) {
		return nil, fmt.Errorf("activity for %s: %d recipient ids for %d recipients", t.Event.TxID, len(recipientIDs), len(t.Recipients))
	}

	ev := t.Event
	entries := make([]model.ActivityEntry, 0, len(t.Recipients)+1)
	for i, rcpt := range t.Recipients {
		id := recipientIDs[i]
		meta := map[string]any{
			"amount": rcpt.AmountDecimals.StringFixed(t.Asset.Decimals),
			"token":  t.Asset.Symbol,
			"from":   ev.SenderAddress,
		}
		if ev.TokenContract != nil {
			meta["token_contract"] = *ev.TokenContract
		}
		entries = append(entries, model.ActivityEntry{
			UserAddress: rcpt.Address,
			EventType:   model.ActivityReceived,
			TransferID:  transferID,
			RecipientID: &id,
			Metadata:    meta,
		})
	}

	sent := map[string]any{
		"recipient_count": ev.RecipientCount,
		"total_amount":    model.ScaleAmount(ev.TotalAmount, t.Asset.Decimals).StringFixed(t.Asset.Decimals),
		"token":           t.Asset.Symbol,
	}
	if ev.TokenContract != nil {
		sent["token_contract"] = *ev.TokenContract
	}
	entries = append(entries, model.ActivityEntry{
		UserAddress: ev.SenderAddress,
		EventType:   model.ActivitySent,
		TransferID:  transferID,
		Metadata:    sent,
	})
	return entries, nil
}
