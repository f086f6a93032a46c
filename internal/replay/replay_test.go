package replay

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bituzin/stacksend/internal/model"
)

const (
	okLine  = `{"apply":[],"chainhook":{"network":"mainnet"}}`
	ftLine  = `{"event":{"apply":[],"network":"testnet"}}`
	badLine = `{"nope":true}`
)

func TestRunReplaysAndCountsInvalid(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	r := New("in.jsonl", cp, nil)

	var networks []model.Network
	src := strings.NewReader(strings.Join([]string{okLine, "", badLine, ftLine}, "\n"))
	stats, err := r.Run(context.Background(), src, func(_ context.Context, _ int, p model.WebhookPayload) error {
		networks = append(networks, p.Network)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 3, Replayed: 2, Invalid: 1}, stats)
	assert.Equal(t, []model.Network{model.NetworkMainnet, model.NetworkTestnet}, networks)

	saved, ok, err := cp.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, saved.Line)
	assert.Len(t, saved.Digest, 64)
}

func TestRunResumesAfterFailure(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	input := strings.Join([]string{okLine, okLine, okLine}, "\n")

	calls := 0
	_, err := New("in.jsonl", cp, nil).Run(context.Background(), strings.NewReader(input),
		func(_ context.Context, line int, _ model.WebhookPayload) error {
			calls++
			if line == 2 {
				return errors.New("db down")
			}
			return nil
		})
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	var lines []int
	stats, err := New("in.jsonl", cp, nil).Run(context.Background(), strings.NewReader(input),
		func(_ context.Context, line int, _ model.WebhookPayload) error {
			lines = append(lines, line)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, lines)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRunIgnoresCheckpointOfOtherInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	cp := NewCheckpointStore(path, true)
	require.NoError(t, cp.Save(Position{Input: "other.jsonl", Line: 10}))

	stats, err := New("in.jsonl", cp, nil).Run(context.Background(), strings.NewReader(okLine),
		func(context.Context, int, model.WebhookPayload) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replayed)
}

func TestCheckpointDisabled(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), false)
	require.NoError(t, cp.Save(Position{Input: "in", Line: 3}))
	_, ok, err := cp.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunRefusesEditedInput(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	noop := func(context.Context, int, model.WebhookPayload) error { return nil }

	_, err := New("in.jsonl", cp, nil).Run(context.Background(),
		strings.NewReader(strings.Join([]string{okLine, ftLine}, "\n")), noop)
	require.NoError(t, err)

	edited := strings.Join([]string{ftLine, okLine, okLine}, "\n")
	_, err = New("in.jsonl", cp, nil).Run(context.Background(), strings.NewReader(edited), noop)
	assert.ErrorIs(t, err, ErrInputChanged)

	_, err = New("in.jsonl", cp, nil).Run(context.Background(), strings.NewReader(okLine), noop)
	assert.ErrorIs(t, err, ErrInputChanged)
}

func TestRunResumesAppendedInput(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	noop := func(context.Context, int, model.WebhookPayload) error { return nil }

	_, err := New("in.jsonl", cp, nil).Run(context.Background(),
		strings.NewReader(strings.Join([]string{okLine, ftLine}, "\n")), noop)
	require.NoError(t, err)

	stats, err := New("in.jsonl", cp, nil).Run(context.Background(),
		strings.NewReader(strings.Join([]string{okLine, ftLine, okLine}, "\n")), noop)
	require.NoError(t, err)
	assert.Equal(t, Stats{Lines: 1, Skipped: 2, Replayed: 1}, stats)
}
