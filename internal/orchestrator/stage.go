package orchestrator

import "fmt"

// Stage is a step of the per-submission state machine:
// PENDING → CLONING → DEADLINE_RESOLVING → RESET → GRADING → PUBLISHING → DONE,
// with FAILED reachable from every step.
type Stage int

const (
	StagePending Stage = iota
	StageCloning
	StageDeadlineResolving
	StageReset
	StageGrading
	StagePublishing
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StagePending:           "PENDING",
	StageCloning:           "CLONING",
	StageDeadlineResolving: "DEADLINE_RESOLVING",
	StageReset:             "RESET",
	StageGrading:           "GRADING",
	StagePublishing:        "PUBLISHING",
	StageDone:              "DONE",
	StageFailed:            "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// canEnter enforces forward-only movement; FAILED is always allowed from a
// non-terminal stage.
func (s Stage) canEnter(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return next > s
}
