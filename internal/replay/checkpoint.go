package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrInputChanged means the input no longer starts with the lines a
// checkpoint was taken over.
var ErrInputChanged = errors.New("input changed since checkpoint")

// Position is how far a replay got through one input. Digest is the hex
// SHA-256 of every input line up to and including Line, newline terminated.
type Position struct {
	Input   string    `json:"input"`
	Line    int       `json:"line"`
	Digest  string    `json:"digest"`
	SavedAt time.Time `json:"saved_at"`
}

// CheckpointStore keeps one Position in a JSON file. A disabled store loads
// nothing and drops saves.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	if !enabled {
		path = ""
	}
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Load() (Position, bool, error) {
	if c.path == "" {
		return Position{}, false, nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return Position{}, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return pos, true, nil
}

// Save replaces the checkpoint file atomically.
func (c *CheckpointStore) Save(pos Position) error {
	if c.path == "" {
		return nil
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint tmp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if pos.SavedAt.IsZero() {
		pos.SavedAt = time.Now().UTC()
	}
	if err := json.NewEncoder(tmp).Encode(pos); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}
