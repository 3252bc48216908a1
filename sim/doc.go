// Package sim provides the core of the voidsim energy-transport simulator.
//
// # Reading Guide
//
// Start with these files to understand the model:
//   - cell.go: the per-cell energy table (5 variables × 4 forces)
//   - lattice.go: the periodic 3D grid and its 6-neighbour edges
//   - simulator.go: the Strang-split step and the run lifecycle
//
// # Architecture
//
// A step moves energy twice. Inside each cell, ds/dt = R·s with an
// antisymmetric R (redistribution.go); the propagator exp(R·dt) is built once
// per dt from the eigendecomposition of RᵀR and shared by all cells. Between
// cells, every lattice edge exchanges energy with the closed-form pairwise
// solution (transport.go). Both phases run on a bounded worker pool over
// disjoint cell ranges (workers.go), reading a committed snapshot and writing
// a separate buffer that is swapped in only when the whole step succeeded.
// Constraints are projected after each step (constraint.go).
//
// Analysis never mutates state: conservation.go reports drift, pattern.go
// classifies density into voids, walls and filaments, spectral.go computes
// spatial Fourier modes, oscillation.go tracks mode amplitudes.
//
// Sub-packages:
//   - sim/trace/: per-step and periodic-check diagnostics records
//   - sim/store/: snapshot persistence (YAML files, SQLite)
package sim
