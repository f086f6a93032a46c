package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/storage/memory"
)

type failingStore struct{ err error }

func (f failingStore) CreateTransfer(context.Context, model.NormalizedTransfer) (model.LedgerWrite, error) {
	return model.LedgerWrite{}, f.err
}

func stxTransfer(txID string) model.NormalizedTransfer {
	return model.NormalizedTransfer{
		Event: model.TransferEvent{
			TxID: txID, SenderAddress: "SP_X", TransferType: model.TransferSTX,
			TotalAmount: 3000000, RecipientCount: 2, Network: model.NetworkMainnet,
		},
		Recipients: []model.Recipient{
			{Address: "SP_A", Amount: 1000000, PositionInList: 0},
			{Address: "SP_B", Amount: 2000000, PositionInList: 1},
		},
		Asset: model.STXAsset,
	}
}

func TestWriteThenDuplicate(t *testing.T) {
	store := memory.New()
	w := NewWriter(store, nil)

	first, err := w.Write(context.Background(), stxTransfer("tx-1"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Len(t, first.RecipientIDs, 2)

	second, err := w.Write(context.Background(), stxTransfer("tx-1"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Len(t, store.Transfers(), 1)
}

func TestWriteWrapsStorageError(t *testing.T) {
	boom := errors.New("connection reset")
	w := NewWriter(failingStore{err: boom}, nil)

	_, err := w.Write(context.Background(), stxTransfer("tx-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestValidateRejectsBrokenInvariants(t *testing.T) {
	badTotal := stxTransfer("tx")
	badTotal.Event.TotalAmount = 1

	badPosition := stxTransfer("tx")
	badPosition.Recipients[1].PositionInList = 5

	badCount := stxTransfer("tx")
	badCount.Event.RecipientCount = 3

	token := "SP.token"
	stxWithToken := stxTransfer("tx")
	stxWithToken.Event.TokenContract = &token

	for name, tr := range map[string]model.NormalizedTransfer{
		"total":    badTotal,
		"position": badPosition,
		"count":    badCount,
		"token":    stxWithToken,
	} {
		assert.ErrorIs(t, Validate(tr), ErrInconsistentTransfer, name)
	}
	assert.NoError(t, Validate(stxTransfer("tx")))
}
