// sim/lattice.go
package sim

import (
	"fmt"
	"iter"
)

// Axis identifies one of the three lattice directions.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Coord is a position on the lattice.
type Coord struct {
	X, Y, Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Size holds the lattice dimensions.
type Size struct {
	X, Y, Z int
}

// Cells returns the number of cells of a lattice with these dimensions.
func (s Size) Cells() int {
	return s.X * s.Y * s.Z
}

// Edge is one link of the 6-neighbour graph, from cell A to its +Axis
// neighbour B. ID is A*3+Axis and is stable for a given lattice size.
type Edge struct {
	ID   int
	A, B int
	Axis Axis
}

// Lattice is a periodic 3D grid of cells stored in a flat slice.
type Lattice struct {
	size  Size
	cells []Cell
}

// NewLattice creates a lattice of zero-energy cells.
func NewLattice(size Size) (*Lattice, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("%w: lattice dimensions must be positive, got %dx%dx%d",
			ErrInvalidMatrix, size.X, size.Y, size.Z)
	}
	return &Lattice{size: size, cells: make([]Cell, size.Cells())}, nil
}

// Size returns the lattice dimensions.
func (l *Lattice) Size() Size { return l.size }

// Len returns the number of cells.
func (l *Lattice) Len() int { return len(l.cells) }

// Index converts a coordinate to a flat index, wrapping periodically.
func (l *Lattice) Index(c Coord) int {
	c = l.Wrap(c)
	return c.X + c.Y*l.size.X + c.Z*l.size.X*l.size.Y
}

// Coord converts a flat index back to a coordinate.
func (l *Lattice) Coord(i int) Coord {
	sx, sy := l.size.X, l.size.Y
	return Coord{X: i % sx, Y: (i / sx) % sy, Z: i / (sx * sy)}
}

// Wrap applies periodic boundary conditions.
func (l *Lattice) Wrap(c Coord) Coord {
	return Coord{X: wrap(c.X, l.size.X), Y: wrap(c.Y, l.size.Y), Z: wrap(c.Z, l.size.Z)}
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// At returns the cell at a (wrapped) coordinate.
func (l *Lattice) At(c Coord) Cell { return l.cells[l.Index(c)] }

// Set replaces the cell at a (wrapped) coordinate.
func (l *Lattice) Set(c Coord, cell Cell) { l.cells[l.Index(c)] = cell }

// Cell returns a pointer to the cell at flat index i.
func (l *Lattice) Cell(i int) *Cell { return &l.cells[i] }

// Cells iterates over all cells in index order.
func (l *Lattice) Cells() iter.Seq2[int, *Cell] {
	return func(yield func(int, *Cell) bool) {
		for i := range l.cells {
			if !yield(i, &l.cells[i]) {
				return
			}
		}
	}
}

// Neighbor returns the flat index of the cell one step along axis in the
// given direction (+1 or -1).
func (l *Lattice) Neighbor(i int, axis Axis, dir int) int {
	c := l.Coord(i)
	switch axis {
	case AxisX:
		c.X += dir
	case AxisY:
		c.Y += dir
	case AxisZ:
		c.Z += dir
	}
	return l.Index(c)
}

// Neighbors6 returns the six face neighbours of cell i in the order
// +x, -x, +y, -y, +z, -z. On axes of length 1 or 2 neighbours repeat.
func (l *Lattice) Neighbors6(i int) [6]int {
	return [6]int{
		l.Neighbor(i, AxisX, 1), l.Neighbor(i, AxisX, -1),
		l.Neighbor(i, AxisY, 1), l.Neighbor(i, AxisY, -1),
		l.Neighbor(i, AxisZ, 1), l.Neighbor(i, AxisZ, -1),
	}
}

// EdgeCount returns the number of edges yielded by Edges, including the
// self-loops it skips (used for sizing per-edge coupling tables).
func (l *Lattice) EdgeCount() int { return 3 * len(l.cells) }

// Edges iterates over every unique +x/+y/+z edge once. Axes of length 1 only
// produce self-loops and are skipped; on axes of length 2 the two periodic
// links between a pair of cells are distinct edges.
func (l *Lattice) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for i := range l.cells {
			for axis := AxisX; axis <= AxisZ; axis++ {
				j := l.Neighbor(i, axis, 1)
				if j == i {
					continue
				}
				if !yield(Edge{ID: i*3 + int(axis), A: i, B: j, Axis: axis}) {
					return
				}
			}
		}
	}
}

// IncidentEdges returns the edges touching cell i, as seen from i: the
// returned Edge has A == i and B the neighbour. Self-loops are omitted.
func (l *Lattice) IncidentEdges(i int) []Edge {
	out := make([]Edge, 0, 6)
	for axis := AxisX; axis <= AxisZ; axis++ {
		fwd := l.Neighbor(i, axis, 1)
		if fwd == i {
			continue
		}
		back := l.Neighbor(i, axis, -1)
		out = append(out,
			Edge{ID: i*3 + int(axis), A: i, B: fwd, Axis: axis},
			Edge{ID: back*3 + int(axis), A: i, B: back, Axis: axis},
		)
	}
	return out
}

// Clone returns a deep copy.
func (l *Lattice) Clone() *Lattice {
	out := &Lattice{size: l.size, cells: make([]Cell, len(l.cells))}
	copy(out.cells, l.cells)
	return out
}

// CopyFrom overwrites l with src. Sizes must match.
func (l *Lattice) CopyFrom(src *Lattice) {
	copy(l.cells, src.cells)
}

// Validate checks the cell invariant on every cell.
func (l *Lattice) Validate(tol float64) error {
	for i := range l.cells {
		if err := l.cells[i].Validate(tol); err != nil {
			return fmt.Errorf("cell %v: %w", l.Coord(i), err)
		}
	}
	return nil
}

// Field extracts one scalar per cell using pick.
func (l *Lattice) Field(pick func(*Cell) float64) []float64 {
	out := make([]float64, len(l.cells))
	for i := range l.cells {
		out[i] = pick(&l.cells[i])
	}
	return out
}
