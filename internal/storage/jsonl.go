package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bituzin/stacksend/internal/model"
)

// JsonlStorage appends normalized transfers to a JSONL file, one per line.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

// NewJsonlStorage returns a sink writing to path. When truncate is set the
// file is emptied first, otherwise lines are appended.
func NewJsonlStorage(path string, truncate bool) (*JsonlStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if truncate {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("truncate output file: %w", err)
		}
	}
	return &JsonlStorage{path: path}, nil
}

func (s *JsonlStorage) Path() string {
	return s.path
}

// PutTransfers appends a batch of transfers as JSON lines.
func (s *JsonlStorage) PutTransfers(transfers []model.NormalizedTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, t := range transfers {
		line, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal transfer %s: %w", t.Event.TxID, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write transfer: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
