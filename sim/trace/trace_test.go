package trace

import (
	"testing"
)

func TestSimulationTrace_RecordStep_AppendsRecordAtStepsLevel(t *testing.T) {
	// GIVEN a trace configured for steps
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelSteps})

	// WHEN a step record is recorded
	st.RecordStep(StepRecord{Step: 1, Time: 0.01, TotalEnergy: 64, RelativeDrift: 1e-15})

	// THEN the trace contains one step record with correct data
	if len(st.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(st.Steps))
	}
	if st.Steps[0].Step != 1 || st.Steps[0].TotalEnergy != 64 {
		t.Errorf("unexpected record %+v", st.Steps[0])
	}
}

func TestSimulationTrace_RecordStep_IgnoredAtChecksLevel(t *testing.T) {
	// GIVEN a trace configured for checks only
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelChecks})

	// WHEN a step and a check are recorded
	st.RecordStep(StepRecord{Step: 1})
	st.RecordCheck(CheckRecord{Step: 1})

	// THEN only the check is kept
	if len(st.Steps) != 0 {
		t.Errorf("expected 0 steps, got %d", len(st.Steps))
	}
	if len(st.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(st.Checks))
	}
}

func TestSimulationTrace_NoneLevel_RecordsNothing(t *testing.T) {
	// GIVEN a disabled trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN records are offered
	st.RecordStep(StepRecord{Step: 1})
	st.RecordCheck(CheckRecord{Step: 1})

	// THEN nothing is kept
	if len(st.Steps) != 0 || len(st.Checks) != 0 {
		t.Errorf("expected empty trace, got %d steps and %d checks", len(st.Steps), len(st.Checks))
	}
}

func TestSimulationTrace_MaxSteps_DropsOldest(t *testing.T) {
	// GIVEN a trace capped at 2 step records
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelSteps, MaxSteps: 2})

	// WHEN three steps are recorded
	for i := int64(1); i <= 3; i++ {
		st.RecordStep(StepRecord{Step: i})
	}

	// THEN the two newest remain and one is counted as dropped
	if len(st.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(st.Steps))
	}
	if st.Steps[0].Step != 2 || st.Steps[1].Step != 3 {
		t.Errorf("expected steps 2,3, got %d,%d", st.Steps[0].Step, st.Steps[1].Step)
	}
	if st.DroppedSteps != 1 {
		t.Errorf("expected 1 dropped, got %d", st.DroppedSteps)
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"checks", true},
		{"steps", true},
		{"", true}, // empty defaults to none
		{"decisions", false},
		{"foobar", false},
		{"STEPS", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
