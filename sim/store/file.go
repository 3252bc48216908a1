package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/entropic-void/voidsim/sim"
)

const (
	filePrefix = "step-"
	fileSuffix = ".yaml"
)

// FileStore keeps one YAML file per snapshot under <dir>/<run id>/.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) runDir(runID string) (string, error) {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID), nil
}

func fileName(step int64) string {
	return fmt.Sprintf("%s%012d%s", filePrefix, step, fileSuffix)
}

// Save writes the snapshot atomically (temp file, then rename).
func (s *FileStore) Save(ctx context.Context, snap *sim.Snapshot) error {
	if err := checkSavable(snap); err != nil {
		return err
	}
	dir, err := s.runDir(snap.RunID)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := sim.EncodeSnapshot(tmp, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, fileName(snap.Step))); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for (run id, step).
func (s *FileStore) Load(ctx context.Context, runID string, step int64) (*sim.Snapshot, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return readSnapshotFile(filepath.Join(dir, fileName(step)), runID)
}

// Latest reads the run's snapshot with the highest step.
func (s *FileStore) Latest(ctx context.Context, runID string) (*sim.Snapshot, error) {
	steps, err := s.steps(runID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return s.Load(ctx, runID, steps[len(steps)-1])
}

// List decodes every snapshot of the run to report its entry. Returns an
// empty slice (not nil) if the run has no snapshots.
func (s *FileStore) List(ctx context.Context, runID string) ([]Entry, error) {
	steps, err := s.steps(runID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.Load(ctx, runID, step)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entryOf(snap))
	}
	return entries, nil
}

// Runs returns the run directories that hold at least one snapshot.
func (s *FileStore) Runs(ctx context.Context) ([]string, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	ids := []string{}
	for _, de := range des {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		steps, err := s.steps(de.Name())
		if err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			ids = append(ids, de.Name())
		}
	}
	return ids, nil
}

// steps returns the run's stored steps in ascending order.
func (s *FileStore) steps(runID string) ([]int64, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var steps []int64
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		steps = append(steps, n)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps, nil
}

func readSnapshotFile(path, runID string) (*sim.Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer f.Close()
	snap, err := sim.DecodeSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return snap, nil
}

// ReadSnapshotFile decodes a single snapshot file written by FileStore or by
// sim.EncodeSnapshot.
func ReadSnapshotFile(path string) (*sim.Snapshot, error) {
	return readSnapshotFile(path, filepath.Base(path))
}
