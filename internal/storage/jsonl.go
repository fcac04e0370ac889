package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// Sink receives what the watchers deliver.
type Sink interface {
	PutBlock(block model.ComposedBlock) error
	PutTxs(txs []model.IndexedTx) error
}

// JsonlStorage appends delivered blocks or txs to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// PutBlock appends one composed block as a JSON line.
func (s *JsonlStorage) PutBlock(block model.ComposedBlock) error {
	return s.writeLines([]interface{}{block})
}

// PutTxs appends each tx as a JSON line.
func (s *JsonlStorage) PutTxs(txs []model.IndexedTx) error {
	if len(txs) == 0 {
		return nil
	}
	lines := make([]interface{}, 0, len(txs))
	for _, tx := range txs {
		lines = append(lines, tx)
	}
	return s.writeLines(lines)
}

func (s *JsonlStorage) writeLines(records []interface{}) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
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
