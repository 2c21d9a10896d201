// Package orchestrator drives every roster entry through clone, deadline
// reset, grading and feedback publishing, with a bounded number of
// submissions in flight. A failing submission only ever affects its own
// record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kingrea/marker/internal/config"
	"github.com/kingrea/marker/internal/deadline"
	"github.com/kingrea/marker/internal/feedback"
	"github.com/kingrea/marker/internal/git"
	"github.com/kingrea/marker/internal/grading"
	"github.com/kingrea/marker/internal/logbook"
	"github.com/kingrea/marker/internal/roster"
	"github.com/kingrea/marker/internal/workspace"
)

// Workspace is the scratch checkout one submission owns.
type Workspace interface {
	Dir() string
	Git() git.Runner
	Clone(ctx context.Context, url string) error
	ResetTo(ctx context.Context, commit string) error
	Release() error
}

// AcquireFunc hands out a fresh workspace for a submission id.
type AcquireFunc func(id string) (Workspace, error)

// CommitResolver finds the commit to grade inside a clone.
type CommitResolver interface {
	Resolve(ctx context.Context, runner git.Runner, dir string) (string, error)
}

// Publisher pushes grading output back to the student repository.
type Publisher interface {
	Publish(ctx context.Context, runner git.Runner, dir, repoURL, stdout string) (string, error)
}

// Observer is told about every stage transition and every finished record.
// Calls arrive from worker goroutines concurrently.
type Observer interface {
	StageChanged(entry roster.Entry, stage Stage)
	Finished(rec Record)
}

type nopObserver struct{}

func (nopObserver) StageChanged(roster.Entry, Stage) {}
func (nopObserver) Finished(Record)                  {}

// Orchestrator grades a roster.
type Orchestrator struct {
	config     *config.Config
	slots      *semaphore.Weighted
	workspaces AcquireFunc
	resolver   CommitResolver
	executor   grading.Executor
	scorer     grading.Scorer
	publisher  Publisher
	observer   Observer
	logger     logbook.Logger
}

// Option customizes orchestrator construction, mostly for tests.
type Option func(*Orchestrator)

// WithSlots injects the semaphore bounding concurrent submissions.
func WithSlots(slots *semaphore.Weighted) Option {
	return func(o *Orchestrator) { o.slots = slots }
}

// WithWorkspaces overrides how workspaces are acquired.
func WithWorkspaces(acquire AcquireFunc) Option {
	return func(o *Orchestrator) { o.workspaces = acquire }
}

// WithResolver overrides the deadline commit resolver.
func WithResolver(r CommitResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithExecutor overrides the grading executor.
func WithExecutor(e grading.Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithScorer overrides how script output becomes a score.
func WithScorer(s grading.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithPublisher overrides the feedback publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger used by the orchestrator and its default
// collaborators.
func WithLogger(l logbook.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// ManagerWorkspaces adapts a workspace.Manager to AcquireFunc.
func ManagerWorkspaces(m *workspace.Manager) AcquireFunc {
	return func(id string) (Workspace, error) {
		ws, err := m.Acquire(id)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
}

// New builds an orchestrator for a finalized configuration. Collaborators not
// supplied through options are built from cfg.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	o := &Orchestrator{config: cfg}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logbook.OrDiscard(o.logger)
	if o.slots == nil {
		limit := cfg.Concurrency
		if limit < 1 {
			limit = 1
		}
		o.slots = semaphore.NewWeighted(int64(limit))
	}
	if o.workspaces == nil {
		o.workspaces = ManagerWorkspaces(workspace.NewManager(cfg.WorkspaceRoot, git.NewCLI(o.logger), o.logger))
	}
	if o.resolver == nil {
		o.resolver = deadline.Resolver{Branch: cfg.Branch, Cutoff: cfg.Cutoff}
	}
	if o.executor == nil {
		o.executor = grading.NewScriptExecutor(cfg.Timeout, o.logger)
	}
	if o.scorer == nil {
		scorer, err := newScorer(cfg)
		if err != nil {
			return nil, err
		}
		o.scorer = scorer
	}
	if o.publisher == nil {
		o.publisher = feedback.Publisher{
			Branch:      cfg.FeedbackBranch,
			File:        cfg.FeedbackFile,
			AuthorName:  cfg.GitUserName,
			AuthorEmail: cfg.GitUserEmail,
			Logger:      o.logger,
		}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o, nil
}

func newScorer(cfg *config.Config) (grading.Scorer, error) {
	if cfg.ScorePlugin == "" {
		return grading.TotalScorer{MaxPoints: cfg.MaxPoints}, nil
	}
	plugin, err := grading.LoadPlugin(cfg.ScorePlugin, cfg.MaxPoints)
	if err != nil {
		return nil, &config.Error{Field: "score plugin", Err: err}
	}
	return plugin, nil
}

type placed struct {
	pos int
	rec Record
}

// Run grades every entry and returns one record per entry, in entry order,
// regardless of completion order. Cancelling ctx stops pending work; entries
// that never ran are reported as interrupted.
func (o *Orchestrator) Run(ctx context.Context, entries []roster.Entry) []Record {
	done := make(chan placed, len(entries))
	var g errgroup.Group
	for pos, entry := range entries {
		pos, entry := pos, entry
		g.Go(func() error {
			if err := o.slots.Acquire(ctx, 1); err != nil {
				rec := newRun(entry, o.observer).fail(MarkerError, FeedbackInterrupted, err)
				o.observer.Finished(rec)
				done <- placed{pos: pos, rec: rec}
				return nil
			}
			defer o.slots.Release(1)
			done <- placed{pos: pos, rec: o.Grade(ctx, entry)}
			return nil
		})
	}
	_ = g.Wait()
	close(done)

	records := make([]Record, len(entries))
	for p := range done {
		records[p.pos] = p.rec
	}
	return records
}

// Grade runs one submission's full state machine. It never panics and always
// returns a record.
func (o *Orchestrator) Grade(ctx context.Context, entry roster.Entry) (rec Record) {
	run := newRun(entry, o.observer)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Grading %s panicked during %s: %v\n%s", entry.ID, run.stage, r, debug.Stack())
			rec = run.fail(MarkerError, FeedbackInternalError, fmt.Errorf("panic: %v", r))
		}
		o.logRecord(rec)
		o.observer.Finished(rec)
	}()
	return o.process(ctx, run)
}

func (o *Orchestrator) process(ctx context.Context, run *submissionRun) Record {
	entry := run.entry
	o.logger.Infof("Grading %s...", entry.ID)

	ws, err := o.workspaces(entry.ID)
	if err != nil {
		return run.fail(MarkerError, FeedbackWorkspace, err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			o.logger.Warnf("Workspace for %s not fully removed: %v", entry.ID, err)
		}
	}()

	run.enter(StageCloning)
	if err := ws.Clone(ctx, entry.Repo); err != nil {
		return run.fail(MarkerError, o.reason(ctx, FeedbackCloneFailed), err)
	}

	run.enter(StageDeadlineResolving)
	commit, err := o.resolver.Resolve(ctx, ws.Git(), ws.Dir())
	if errors.Is(err, deadline.ErrNoCommit) {
		return run.noSubmission()
	}
	if err != nil {
		return run.fail(MarkerError, o.reason(ctx, FeedbackLookupFailed), err)
	}
	o.logger.Debugf("Grading %s at commit %s", entry.ID, commit)

	run.enter(StageReset)
	if err := ws.ResetTo(ctx, commit); err != nil {
		return run.fail(MarkerError, o.reason(ctx, FeedbackResetFailed), err)
	}

	run.enter(StageGrading)
	result, err := o.executor.Execute(ctx, o.config.ScriptPath, ws.Dir())
	if err != nil {
		return o.gradingFailure(ctx, run, err)
	}
	score, err := o.scorer.Score(result.Stdout)
	if err != nil {
		return run.fail(MarkerError, FeedbackNoScore, err)
	}
	rec := run.graded(score)

	if o.config.Publish {
		run.enter(StagePublishing)
		ref, err := o.publisher.Publish(ctx, ws.Git(), ws.Dir(), entry.Repo, result.Stdout)
		if err != nil {
			// The score stands; only the feedback column degrades.
			rec.Feedback = FeedbackPublishFailed
			rec.Err = err
		} else {
			rec.Feedback = ref
		}
	}
	run.enter(StageDone)
	rec.Stage = StageDone
	return rec
}

func (o *Orchestrator) gradingFailure(ctx context.Context, run *submissionRun, err error) Record {
	var timeoutErr *grading.TimeoutError
	if errors.As(err, &timeoutErr) {
		rec := run.fail(MarkerTimeout, fmt.Sprintf(feedbackTimeoutFormat, timeoutErr.Timeout), err)
		rec.Outcome = OutcomeTimedOut
		return rec
	}
	if ctx.Err() != nil {
		return run.fail(MarkerError, FeedbackInterrupted, err)
	}
	var scriptErr *grading.ScriptError
	if errors.As(err, &scriptErr) && !scriptErr.NotStarted {
		return run.fail(MarkerError, fmt.Sprintf(feedbackExitCodeFormat, scriptErr.ExitCode), err)
	}
	return run.fail(MarkerError, FeedbackScriptFailed, err)
}

func (o *Orchestrator) reason(ctx context.Context, fallback string) string {
	if ctx.Err() != nil {
		return FeedbackInterrupted
	}
	return fallback
}

func (o *Orchestrator) logRecord(rec Record) {
	switch {
	case rec.Outcome == OutcomeGraded && rec.Err != nil:
		o.logger.Errorf("Graded %s: %s, but publishing failed: %v", rec.ID, rec.Grade(), rec.Err)
	case rec.Outcome == OutcomeGraded:
		o.logger.Infof("Graded %s: %s", rec.ID, rec.Grade())
	case rec.Outcome == OutcomeNoSubmission:
		o.logger.Infof("Graded %s: %s (%s)", rec.ID, rec.Grade(), rec.Feedback)
	default:
		o.logger.Errorf("Failed %s during %s: %v", rec.ID, rec.FailedAt, rec.Err)
	}
}

// submissionRun tracks one entry through the state machine.
type submissionRun struct {
	entry    roster.Entry
	stage    Stage
	observer Observer
}

func newRun(entry roster.Entry, observer Observer) *submissionRun {
	if observer == nil {
		observer = nopObserver{}
	}
	return &submissionRun{entry: entry, stage: StagePending, observer: observer}
}

func (r *submissionRun) enter(next Stage) {
	if !r.stage.canEnter(next) {
		return
	}
	r.stage = next
	r.observer.StageChanged(r.entry, next)
}

func (r *submissionRun) base() Record {
	return Record{Index: r.entry.Index, ID: r.entry.ID, Repo: r.entry.Repo}
}

func (r *submissionRun) fail(marker, feedbackMsg string, err error) Record {
	failedAt := r.stage
	r.enter(StageFailed)
	rec := r.base()
	rec.Outcome = OutcomeError
	rec.Marker = marker
	rec.Feedback = feedbackMsg
	rec.Stage = StageFailed
	rec.FailedAt = failedAt
	rec.Err = err
	return rec
}

func (r *submissionRun) noSubmission() Record {
	rec := r.fail("", FeedbackNoSubmission, nil)
	rec.Outcome = OutcomeNoSubmission
	return rec
}

func (r *submissionRun) graded(score float64) Record {
	rec := r.base()
	rec.Outcome = OutcomeGraded
	rec.Score = score
	return rec
}
