package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StateStore persists the last delivered height per watcher name.
type StateStore interface {
	LoadState(ctx context.Context, name string) (int64, bool, error)
	SaveState(ctx context.Context, name string, height int64) error
}

// Checkpoint tracks the last delivered height.
type Checkpoint struct {
	LastDeliveredHeight int64  `json:"last_delivered_height"`
	UpdatedAt           string `json:"updated_at"`
}

// CheckpointStore persists checkpoints as one JSON file per name under dir.
type CheckpointStore struct {
	dir     string
	enabled bool
}

func NewCheckpointStore(dir string, enabled bool) *CheckpointStore {
	return &CheckpointStore{dir: dir, enabled: enabled}
}

func (c *CheckpointStore) path(name string) string {
	safe := strings.NewReplacer("/", "_", ":", "_", string(os.PathSeparator), "_").Replace(name)
	return filepath.Join(c.dir, safe+".checkpoint.json")
}

func (c *CheckpointStore) LoadState(_ context.Context, name string) (int64, bool, error) {
	if !c.enabled {
		return 0, false, nil
	}

	path := c.path(name)
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return 0, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return cp.LastDeliveredHeight, true, nil
}

func (c *CheckpointStore) SaveState(_ context.Context, name string, height int64) error {
	if !c.enabled {
		return nil
	}

	if c.dir != "" && c.dir != "." {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp := Checkpoint{
		LastDeliveredHeight: height,
		UpdatedAt:           time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := c.path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}
