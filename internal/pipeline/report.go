package pipeline

import (
	"time"

	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
)

// State is the lifecycle state of a stage within one run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// StageReport is the outcome of one stage.
type StageReport struct {
	Target   string
	Kind     config.TargetKind
	Builder  string
	State    State
	Duration time.Duration
	Artifact *builder.BuildArtifact
	Err      error
}

// Report is the outcome of a run, with stages in execution order.
type Report struct {
	Pipeline string
	Stages   []*StageReport
	Duration time.Duration
}

// Stage returns the report of the named stage, or nil.
func (r *Report) Stage(target string) *StageReport {
	for _, s := range r.Stages {
		if s.Target == target {
			return s
		}
	}
	return nil
}

// Failed returns the failed stage, or nil when no stage failed.
func (r *Report) Failed() *StageReport {
	for _, s := range r.Stages {
		if s.State == StateFailed {
			return s
		}
	}
	return nil
}

// Succeeded reports whether every stage succeeded.
func (r *Report) Succeeded() bool {
	for _, s := range r.Stages {
		if s.State != StateSucceeded {
			return false
		}
	}
	return true
}

// skipRemaining marks every stage after index i that has not run as skipped.
func (r *Report) skipRemaining(i int) {
	for _, s := range r.Stages[i+1:] {
		if s.State == StatePending {
			s.State = StateSkipped
		}
	}
}
