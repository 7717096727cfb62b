package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/pkg/types"
)

// ErrNoSnapshot is returned when a display/dump mode runs before the first
// collection has written a snapshot.
var ErrNoSnapshot = errors.New("no snapshot collected yet")

// Store persists the collector's outputs: the JSON snapshot and the
// exposition document are overwritten whole on every cycle, the alert log
// only ever grows.
type Store struct {
	cfg config.Metrics
}

func NewStore(cfg config.Metrics) *Store { return &Store{cfg: cfg} }

func (s *Store) Alerts() AlertLog { return AlertLog{Path: s.cfg.AlertLogPath} }

// WriteSnapshot overwrites the snapshot file and the exposition file from
// the same snapshot, so the two can never disagree for longer than one
// cycle.
func (s *Store) WriteSnapshot(snap types.MetricsSnapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.cfg.SnapshotPath, append(b, '\n'), 0o644); err != nil {
		return err
	}
	expo, err := RenderExposition(snap)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.cfg.PrometheusPath, expo, 0o644)
}

// LoadSnapshot reads the last written snapshot.
func (s *Store) LoadSnapshot() (types.MetricsSnapshot, error) {
	var snap types.MetricsSnapshot
	b, err := os.ReadFile(s.cfg.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, ErrNoSnapshot
		}
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// LoadExposition reads the last written exposition document.
func (s *Store) LoadExposition() ([]byte, error) {
	b, err := os.ReadFile(s.cfg.PrometheusPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read exposition file: %w", err)
	}
	return b, nil
}
