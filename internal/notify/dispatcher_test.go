package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/storage/memory"
)

type stubSender struct {
	id   string
	err  error
	sent []string
}

func (s *stubSender) SendMessage(_ context.Context, channelID, text string) (string, error) {
	s.sent = append(s.sent, channelID)
	return s.id, s.err
}

func seedRecipient(t *testing.T, store *memory.Store) int64 {
	t.Helper()
	w, err := store.CreateTransfer(context.Background(), model.NormalizedTransfer{
		Event:      model.TransferEvent{TxID: "tx-1", SenderAddress: "SP_X", TransferType: model.TransferSTX, TotalAmount: 1, RecipientCount: 1},
		Recipients: []model.Recipient{{Address: "SP_A", Amount: 1}},
	})
	require.NoError(t, err)
	return w.RecipientIDs[0]
}

func request(recipientID int64) Request {
	return Request{
		RecipientID:      recipientID,
		ChannelID:        "42",
		RecipientAddress: "SP_A",
		Amount:           decimal.New(1, -6),
		Asset:            model.STXAsset,
		TxID:             "tx-1",
		SenderAddress:    "SP_X",
		Network:          model.NetworkMainnet,
	}
}

func TestNotifyDelivered(t *testing.T) {
	store := memory.New()
	rid := seedRecipient(t, store)
	sender := &stubSender{id: "77"}

	id, ok := NewDispatcher(sender, store, "", nil).Notify(context.Background(), request(rid))
	assert.True(t, ok)
	assert.Equal(t, "77", id)
	assert.True(t, store.RecipientNotified(rid))

	recs := store.Notifications()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Delivered)
	require.NotNil(t, recs[0].SentAt)
	require.NotNil(t, recs[0].ChannelMessageID)
	assert.Equal(t, "77", *recs[0].ChannelMessageID)
	assert.Nil(t, recs[0].ErrorMessage)
}

func TestNotifyFailureIsRecordedNotReturned(t *testing.T) {
	store := memory.New()
	rid := seedRecipient(t, store)
	sender := &stubSender{err: errors.New("Forbidden: bot was blocked by the user")}

	id, ok := NewDispatcher(sender, store, "", nil).Notify(context.Background(), request(rid))
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.False(t, store.RecipientNotified(rid))

	recs := store.Notifications()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Delivered)
	assert.Nil(t, recs[0].SentAt)
	require.NotNil(t, recs[0].ErrorMessage)
	assert.Contains(t, *recs[0].ErrorMessage, "blocked")
}
