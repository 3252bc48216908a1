package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/entropic-void/voidsim/sim"
)

// ErrNotFound is returned when no snapshot matches the requested key.
var ErrNotFound = errors.New("store: snapshot not found")

// Entry describes a stored snapshot without its lattice.
type Entry struct {
	RunID       string
	Step        int64
	Time        float64
	TotalEnergy float64
}

// SnapshotStore saves and loads snapshots by (run id, step).
type SnapshotStore interface {
	Save(ctx context.Context, snap *sim.Snapshot) error
	Load(ctx context.Context, runID string, step int64) (*sim.Snapshot, error)
	// Latest returns the snapshot with the highest step for the run.
	Latest(ctx context.Context, runID string) (*sim.Snapshot, error)
	// List returns the run's entries ordered by step ascending.
	List(ctx context.Context, runID string) ([]Entry, error)
	// Runs returns every stored run id in ascending order.
	Runs(ctx context.Context) ([]string, error)
	Close() error
}

// Kind names a backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// IsValidKind returns true if the name is a recognized backend.
func IsValidKind(name string) bool {
	switch Kind(name) {
	case KindFile, KindSQLite:
		return true
	}
	return false
}

// Open opens the backend of the given kind at path: a directory for file,
// a database file for sqlite.
func Open(kind Kind, path string) (SnapshotStore, error) {
	switch kind {
	case KindFile:
		return NewFileStore(path)
	case KindSQLite:
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown store kind %q; valid: file, sqlite", kind)
}

func entryOf(snap *sim.Snapshot) Entry {
	total := 0.0
	for i := range snap.Cells {
		total += snap.Cells[i].Total()
	}
	return Entry{RunID: snap.RunID, Step: snap.Step, Time: snap.Time, TotalEnergy: total}
}

func checkSavable(snap *sim.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if snap.RunID == "" {
		return fmt.Errorf("save snapshot: empty run id")
	}
	return nil
}
