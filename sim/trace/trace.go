package trace

// TraceLevel controls the verbosity of diagnostics tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelChecks captures only the periodic conservation checks.
	TraceLevelChecks TraceLevel = "checks"
	// TraceLevelSteps captures every committed step plus the periodic checks.
	TraceLevelSteps TraceLevel = "steps"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelChecks: true,
	TraceLevelSteps:  true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxSteps caps the number of retained step records (0 = unbounded).
	// Once reached, the oldest records are dropped.
	MaxSteps int
}

// SimulationTrace collects diagnostics records during a run.
type SimulationTrace struct {
	Config TraceConfig
	Steps  []StepRecord
	Checks []CheckRecord
	// DroppedSteps counts step records evicted by MaxSteps.
	DroppedSteps int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Steps:  make([]StepRecord, 0),
		Checks: make([]CheckRecord, 0),
	}
}

// RecordStep appends a step record. It is a no-op unless the level is steps.
func (st *SimulationTrace) RecordStep(record StepRecord) {
	if st.Config.Level != TraceLevelSteps {
		return
	}
	if st.Config.MaxSteps > 0 && len(st.Steps) >= st.Config.MaxSteps {
		st.Steps = append(st.Steps[:0], st.Steps[1:]...)
		st.DroppedSteps++
	}
	st.Steps = append(st.Steps, record)
}

// RecordCheck appends a conservation check record. It is a no-op when
// tracing is disabled.
func (st *SimulationTrace) RecordCheck(record CheckRecord) {
	if st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	st.Checks = append(st.Checks, record)
}
