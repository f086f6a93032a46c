package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bituzin/stacksend/internal/model"
)

func readLines(t *testing.T, path string) []model.NormalizedTransfer {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []model.NormalizedTransfer
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var nt model.NormalizedTransfer
		require.NoError(t, json.Unmarshal(sc.Bytes(), &nt))
		out = append(out, nt)
	}
	require.NoError(t, sc.Err())
	return out
}

func transfer(txID string) model.NormalizedTransfer {
	return model.NormalizedTransfer{
		Event:      model.TransferEvent{TxID: txID, TransferType: model.TransferSTX, TotalAmount: 7, RecipientCount: 1},
		Recipients: []model.Recipient{{Address: "SP_A", Amount: 7, AmountDecimals: model.ScaleAmount(7, 6)}},
		Asset:      model.STXAsset,
	}
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	sink, err := NewJsonlStorage(path, true)
	require.NoError(t, err)

	require.NoError(t, sink.PutTransfers([]model.NormalizedTransfer{transfer("a")}))
	require.NoError(t, sink.PutTransfers(nil))
	require.NoError(t, sink.PutTransfers([]model.NormalizedTransfer{transfer("b")}))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].Event.TxID)
	assert.Equal(t, "0.000007", lines[1].Recipients[0].AmountDecimals.String())
}

func TestJsonlStorageTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	sink, err := NewJsonlStorage(path, false)
	require.NoError(t, err)
	require.NoError(t, sink.PutTransfers([]model.NormalizedTransfer{transfer("a")}))

	sink, err = NewJsonlStorage(path, true)
	require.NoError(t, err)
	require.NoError(t, sink.PutTransfers([]model.NormalizedTransfer{transfer("b")}))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0].Event.TxID)
}
