package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the seed of an initial condition. Two lattices built from
// the same key and config are bit-for-bit identical.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

const (
	// SubsystemDistribution draws the variable and force splits from the
	// master seed itself.
	SubsystemDistribution = "distribution"

	// SubsystemNoise draws the per-cell amplitude noise.
	SubsystemNoise = "noise"
)

// PartitionedRNG hands each initialization subsystem its own stream, so
// adding or resizing noise never changes the split drawn for the same seed.
// The distribution stream uses the seed directly; every other stream uses
// seed XOR fnv1a64(name). Not safe for concurrent use.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemDistribution {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the seed the streams derive from.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
