package model

import "time"

// Stage names a pipeline stage.
type Stage string

// Pipeline stages in execution order.
const (
	StageIngestion      Stage = "ingestion"
	StageValidation     Stage = "validation"
	StageTransformation Stage = "transformation"
	StageTraining       Stage = "training"
	StageEvaluation     Stage = "evaluation"
	StageRegistration   Stage = "registration"
)

// Stages lists the stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageIngestion,
		StageValidation,
		StageTransformation,
		StageTraining,
		StageEvaluation,
		StageRegistration,
	}
}

// RunState is a state of the pipeline state machine.
type RunState string

// Run states. SUCCEEDED and FAILED are terminal.
const (
	StatePending      RunState = "PENDING"
	StateIngesting    RunState = "INGESTING"
	StateValidating   RunState = "VALIDATING"
	StateTransforming RunState = "TRANSFORMING"
	StateTraining     RunState = "TRAINING"
	StateEvaluating   RunState = "EVALUATING"
	StateRegistering  RunState = "REGISTERING"
	StateSucceeded    RunState = "SUCCEEDED"
	StateFailed       RunState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StateFor returns the working state of a stage.
func StateFor(stage Stage) RunState {
	switch stage {
	case StageIngestion:
		return StateIngesting
	case StageValidation:
		return StateValidating
	case StageTransformation:
		return StateTransforming
	case StageTraining:
		return StateTraining
	case StageEvaluation:
		return StateEvaluating
	case StageRegistration:
		return StateRegistering
	default:
		return StatePending
	}
}

// Transition is one recorded state change.
type Transition struct {
	From RunState  `json:"from"`
	To   RunState  `json:"to"`
	At   time.Time `json:"at"`
}

// RunRecord is the externally visible outcome of one pipeline run.
type RunRecord struct {
	ID          string             `json:"run_id"`
	Trigger     string             `json:"trigger,omitempty"`
	State       RunState           `json:"status"`
	FailedStage Stage              `json:"failed_stage,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Promoted    bool               `json:"promoted"`
	Version     string             `json:"version,omitempty"`
	Verdict     *EvaluationVerdict `json:"verdict,omitempty"`
	Reports     []ValidationReport `json:"reports,omitempty"`
	Transitions []Transition       `json:"transitions,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares no mutable slices with r.
func (r RunRecord) Clone() RunRecord {
	out := r
	if r.Verdict != nil {
		v := *r.Verdict
		out.Verdict = &v
	}
	out.Reports = append([]ValidationReport(nil), r.Reports...)
	out.Transitions = append([]Transition(nil), r.Transitions...)
	return out
}

// RunRequest asks for one pipeline run.
type RunRequest struct {
	ID         string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
