// sim/checkpoint.go
package sim

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SnapshotVersion is bumped whenever the Snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is a complete, self-contained copy of a simulation's state. It
// depends only on the state (never on map order or wall clock), so encoding
// the same state twice yields identical bytes.
type Snapshot struct {
	Version     int             `yaml:"version"`
	RunID       string          `yaml:"run_id"`
	Step        int64           `yaml:"step"`
	Time        float64         `yaml:"time"`
	Size        Size            `yaml:"size"`
	Cells       []Cell          `yaml:"cells"`
	Matrix      []float64       `yaml:"matrix"`
	Coupling    CouplingField   `yaml:"coupling"`
	Constraints ConstraintSet   `yaml:"constraints"`
	Reference   Reference       `yaml:"reference"`
	Options     SnapshotOptions `yaml:"options"`
}

// SnapshotOptions are the numerical options that shape the trajectory.
// Workers, trace and logging are not part of the state.
type SnapshotOptions struct {
	Method                ExponentialMethod `yaml:"method"`
	Transport             TransportMode     `yaml:"transport"`
	Spacing               float64           `yaml:"spacing"`
	Volume                float64           `yaml:"volume"`
	ClipTolerance         float64           `yaml:"clip_tolerance"`
	ConservationTolerance float64           `yaml:"conservation_tolerance"`
	CheckInterval         int64             `yaml:"check_interval"`
	MaxKappaDt            float64           `yaml:"max_kappa_dt,omitempty"`
}

// Checkpoint captures the committed state. A Running simulation moves to
// the Checkpointed state and the next committed step moves it back; a
// Created simulation has nothing to resume and stays Created.
func (s *Simulation) Checkpoint() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return nil, ErrTerminated
	}
	snap := &Snapshot{
		Version:     SnapshotVersion,
		RunID:       s.runID,
		Step:        s.step,
		Time:        s.time,
		Size:        s.lattice.Size(),
		Cells:       append([]Cell(nil), s.lattice.cells...),
		Matrix:      s.matrix.Flat(),
		Coupling:    s.coupling,
		Constraints: s.constraints,
		Reference:   s.ref,
		Options: SnapshotOptions{
			Method:                s.redist.Method(),
			Transport:             s.transport.Mode,
			Spacing:               s.opts.spacing,
			Volume:                s.opts.volume,
			ClipTolerance:         s.opts.clipTolerance,
			ConservationTolerance: s.opts.conservationTolerance,
			CheckInterval:         s.opts.checkInterval,
			MaxKappaDt:            s.opts.maxKappaDt,
		},
	}
	if len(s.coupling.PerEdge) > 0 {
		snap.Coupling.PerEdge = append([]float64(nil), s.coupling.PerEdge...)
	}
	if s.state == StateRunning {
		logrus.Infof("simulation %s: %s -> checkpointed at step %d", s.runID, s.state, s.step)
		s.state = StateCheckpointed
	}
	return snap, nil
}

// Restore rebuilds a simulation from a snapshot. The snapshot's numerical
// options apply first, then opts (typically workers and trace). The result
// is in the Checkpointed state with the snapshot's run id, time and step.
func Restore(snap *Snapshot, opts ...Option) (*Simulation, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	l, err := NewLattice(snap.Size)
	if err != nil {
		return nil, err
	}
	copy(l.cells, snap.Cells)
	r, err := NewRedistributionMatrix(snap.Matrix, DefaultTolerance)
	if err != nil {
		return nil, err
	}

	so := snap.Options
	all := append([]Option{
		WithExponentialMethod(so.Method),
		WithTransportMode(so.Transport),
		WithSpacing(so.Spacing),
		WithCellVolume(so.Volume),
		WithClipTolerance(so.ClipTolerance),
		WithConservationTolerance(so.ConservationTolerance),
		WithCheckInterval(so.CheckInterval),
		WithAdaptive(so.MaxKappaDt),
	}, opts...)
	s, err := NewSimulation(l, r, snap.Coupling, snap.Constraints, all...)
	if err != nil {
		return nil, fmt.Errorf("restoring %s: %w", snap.RunID, err)
	}
	s.runID = snap.RunID
	s.step = snap.Step
	s.time = snap.Time
	s.ref = snap.Reference
	s.state = StateCheckpointed
	logrus.Infof("simulation %s restored at step %d (t=%g)", s.runID, s.step, s.time)
	return s, nil
}

// Validate checks the snapshot's shape. Value checks happen in Restore.
func (snap *Snapshot) Validate() error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d (want %d)", snap.Version, SnapshotVersion)
	}
	if snap.Size.X <= 0 || snap.Size.Y <= 0 || snap.Size.Z <= 0 {
		return fmt.Errorf("%w: snapshot size %dx%dx%d", ErrInvalidMatrix, snap.Size.X, snap.Size.Y, snap.Size.Z)
	}
	if len(snap.Cells) != snap.Size.Cells() {
		return fmt.Errorf("snapshot has %d cells, size %dx%dx%d needs %d",
			len(snap.Cells), snap.Size.X, snap.Size.Y, snap.Size.Z, snap.Size.Cells())
	}
	if len(snap.Matrix) != N*N {
		return fmt.Errorf("%w: snapshot matrix has %d entries, want %d", ErrInvalidMatrix, len(snap.Matrix), N*N)
	}
	if snap.Step < 0 {
		return fmt.Errorf("snapshot step must be >= 0, got %d", snap.Step)
	}
	return nil
}

// EncodeSnapshot writes the snapshot as YAML. Floats are written in their
// shortest exact form, so decoding restores every bit.
func EncodeSnapshot(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}

// DecodeSnapshot reads a YAML snapshot, rejecting unknown fields.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}
