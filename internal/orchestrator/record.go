package orchestrator

import (
	"github.com/kingrea/marker/internal/grading"
	"github.com/kingrea/marker/internal/report"
)

// Grade column markers.
const (
	MarkerError   = "ERROR SEE LOG"
	MarkerTimeout = "TIMED OUT"

	noSubmissionGrade = "0.0"
)

// Feedback column messages for unsuccessful outcomes.
const (
	FeedbackNoSubmission   = "No submission before deadline"
	FeedbackCloneFailed    = "Clone failed"
	FeedbackLookupFailed   = "Deadline lookup failed"
	FeedbackResetFailed    = "Reset failed"
	FeedbackNoScore        = "No score found in output"
	FeedbackScriptFailed   = "Script could not be run"
	FeedbackPublishFailed  = "Feedback publish failed"
	FeedbackWorkspace      = "Workspace unavailable"
	FeedbackInterrupted    = "Run interrupted"
	FeedbackInternalError  = "Internal error"
	feedbackExitCodeFormat = "Script exited with code %d"
	feedbackTimeoutFormat  = "Timed out after %s"
)

// Outcome classifies a finished submission.
type Outcome string

const (
	OutcomeGraded       Outcome = "graded"
	OutcomeNoSubmission Outcome = "no-submission"
	OutcomeTimedOut     Outcome = "timed-out"
	OutcomeError        Outcome = "error"
)

// Record is the single result every roster entry produces.
type Record struct {
	Index   int
	ID      string
	Repo    string
	Outcome Outcome
	// Score is meaningful only for OutcomeGraded.
	Score float64
	// Marker replaces the score in the grade column for failures.
	Marker   string
	Feedback string
	// Stage is DONE or FAILED; FailedAt names the step that failed.
	Stage    Stage
	FailedAt Stage
	// Err keeps the underlying error for logging. Publish failures set Err on
	// an otherwise graded record.
	Err error
}

// Grade renders the grade column: the two-decimal score, 0.0 when nothing was
// submitted in time, or the failure marker.
func (r Record) Grade() string {
	switch r.Outcome {
	case OutcomeGraded:
		return grading.FormatScore(r.Score)
	case OutcomeNoSubmission:
		return noSubmissionGrade
	}
	if r.Marker != "" {
		return r.Marker
	}
	return MarkerError
}

// Row converts the record to its report line.
func (r Record) Row() report.Row {
	return report.Row{ID: r.ID, Grade: r.Grade(), Feedback: r.Feedback}
}

// Rows converts records in order.
func Rows(records []Record) []report.Row {
	rows := make([]report.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return rows
}

// Summary counts outcomes across a run.
type Summary struct {
	Total         int
	Graded        int
	NoSubmission  int
	TimedOut      int
	Failed        int
	PublishFailed int
}

// Summarize tallies records.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, rec := range records {
		switch rec.Outcome {
		case OutcomeGraded:
			s.Graded++
			if rec.Err != nil {
				s.PublishFailed++
			}
		case OutcomeNoSubmission:
			s.NoSubmission++
		case OutcomeTimedOut:
			s.TimedOut++
		default:
			s.Failed++
		}
	}
	return s
}
