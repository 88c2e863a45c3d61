// Package orchestrator drives a scraping session end to end: navigation,
// per-page retries, humanized pacing, cooperative pause/cancel at page
// boundaries, and finalization with partial results preserved.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
	"github.com/adityawiguna/jobscout-api/internal/export"
	"github.com/adityawiguna/jobscout-api/internal/job"
	"github.com/adityawiguna/jobscout-api/internal/scraper"
	"github.com/adityawiguna/jobscout-api/internal/scraper/linkedin"
	"github.com/adityawiguna/jobscout-api/internal/session"
)

// NavigatorFactory opens a fresh browser page bound to the session's
// anti-detection engine. The cleanup func releases the page.
type NavigatorFactory func(ctx context.Context, engine *antidetect.Engine) (scraper.Navigator, func(), error)

// Config bounds a single session run.
type Config struct {
	// MaxPages caps how many result pages one session will visit.
	MaxPages int
	// MaxRetries is how many times a failed page action is retried before
	// the page is skipped.
	MaxRetries int
	// PriorityCities feed the match-score heuristic.
	PriorityCities []string
	// PageDelayMin/Max bound the humanized inter-action delay window.
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	// ExportEnabled gates spreadsheet export of completed sessions.
	ExportEnabled bool
}

// Result is the terminal summary of one session run.
type Result struct {
	Success          bool     `json:"success"`
	SessionID        string   `json:"sessionId"`
	JobsFound        int      `json:"jobsFound"`
	TotalJobsScraped int      `json:"totalJobsScraped"`
	SheetURL         string   `json:"sheetUrl,omitempty"`
	ExportError      string   `json:"exportError,omitempty"`
	Errors           []string `json:"errors,omitempty"`
	DurationMillis   int64    `json:"durationMs"`
}

type Orchestrator struct {
	sessions     session.Repository
	jobs         job.Repository
	newNavigator NavigatorFactory
	cfg          Config

	sink      export.Sink
	newEngine func() *antidetect.Engine
	buildURL  func(session.SearchParams) string
	sleep     func(ctx context.Context, d time.Duration) error
	pausePoll time.Duration
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the spreadsheet backend completed sessions export to.
func WithSink(s export.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithEngineFactory overrides how per-session anti-detection engines are
// built.
func WithEngineFactory(fn func() *antidetect.Engine) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newEngine = fn
		}
	}
}

// WithURLBuilder overrides the search-URL builder.
func WithURLBuilder(fn func(session.SearchParams) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.buildURL = fn
		}
	}
}

// WithSleep overrides the pacing sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithPausePoll overrides how often a paused session is re-checked.
func WithPausePoll(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pausePoll = d
		}
	}
}

func New(sessions session.Repository, jobs job.Repository, newNavigator NavigatorFactory, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	o := &Orchestrator{
		sessions:     sessions,
		jobs:         jobs,
		newNavigator: newNavigator,
		cfg:          cfg,
		buildURL:     linkedin.SearchURL,
		sleep:        sleepCtx,
		pausePoll:    2 * time.Second,
		now:          time.Now,
	}
	o.newEngine = func() *antidetect.Engine {
		return antidetect.New(antidetect.WithDelayWindow(cfg.PageDelayMin, cfg.PageDelayMax))
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs a session the worker pool has already claimed (status
// running). It satisfies the session.Processor interface.
func (o *Orchestrator) Process(ctx context.Context, sess *session.Session) error {
	res := o.run(ctx, sess)
	if !res.Success {
		return fmt.Errorf("session %s did not complete: %v", sess.ID, res.Errors)
	}
	return nil
}

// ScrapeJobs runs a search synchronously: create the session, run it to a
// terminal state, and summarize. It never returns an error; failures are
// reported inside the Result.
func (o *Orchestrator) ScrapeJobs(ctx context.Context, userID, cvID string, params session.SearchParams) *Result {
	if err := params.Validate(); err != nil {
		return &Result{Errors: []string{err.Error()}}
	}

	sess := session.New(userID, cvID, params)
	if err := o.sessions.Create(ctx, sess); err != nil {
		return &Result{Errors: []string{fmt.Sprintf("create session: %v", err)}}
	}
	if ok, err := o.sessions.Transition(ctx, sess.ID, sess.UserID,
		[]session.Status{session.StatusPending}, session.StatusRunning, ""); err != nil || !ok {
		return &Result{SessionID: sess.ID, Errors: []string{"session could not be started"}}
	}
	sess.Status = session.StatusRunning
	now := o.now().UTC()
	sess.StartedAt = &now

	return o.run(ctx, sess)
}

// run drives one claimed session to a terminal state.
func (o *Orchestrator) run(ctx context.Context, sess *session.Session) (res *Result) {
	start := o.now()
	res = &Result{SessionID: sess.ID}
	defer func() { res.DurationMillis = o.now().Sub(start).Milliseconds() }()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panicked", "session", sess.ID, "panic", r)
			o.failSession(sess, fmt.Sprintf("internal error: %v", r))
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("internal error: %v", r))
		}
	}()

	engine := o.newEngine()
	nav, cleanup, err := o.newNavigator(ctx, engine)
	if err != nil {
		msg := fmt.Sprintf("open browser page: %v", err)
		o.failSession(sess, msg)
		res.Errors = append(res.Errors, msg)
		return res
	}
	defer cleanup()

	sess.Progress = session.Progress{Stage: session.StageSearching, StartedAt: start.UTC()}
	o.saveProgress(ctx, sess)

	searchURL := o.buildURL(sess.SearchParams)
	if err := o.withRetry(ctx, engine, func() error {
		return nav.NavigateToSearch(ctx, searchURL)
	}); err != nil {
		msg := fmt.Sprintf("reach search results: %v", err)
		o.failSession(sess, msg)
		res.Errors = append(res.Errors, msg)
		return res
	}

	totalPages := nav.DiscoverTotalPages(ctx)
	if totalPages > o.cfg.MaxPages {
		totalPages = o.cfg.MaxPages
	}
	sess.Progress.TotalPages = totalPages
	sess.Progress.Stage = session.StageExtracting
	o.saveProgress(ctx, sess)

	var (
		collected      []job.Job
		seen           = map[string]bool{}
		cardsSeen      int
		pagesSucceeded int
		criticalMsg    string
		cancelled      bool
	)

pages:
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		// Cooperative control point: pause and cancel are only observed
		// between pages, never mid-page.
		switch proceed, err := o.waitWhilePaused(ctx, sess); {
		case err != nil:
			return o.interrupted(ctx, sess, res, collected, cardsSeen)
		case !proceed:
			cancelled = true
			break pages
		}

		if engine.ShouldRotateSession() {
			slog.Info("rotating session identity", "session", sess.ID, "requests", engine.RequestCount())
			engine.Reset()
			if err := nav.RotateFingerprint(ctx); err != nil {
				sess.Progress.RecordError(err.Error())
			}
		}

		if pageNum > 1 {
			if err := o.withRetry(ctx, engine, func() error {
				return nav.GoToPage(ctx, pageNum)
			}); err != nil {
				if ctx.Err() != nil {
					return o.interrupted(ctx, sess, res, collected, cardsSeen)
				}
				sess.Progress.RecordError(err.Error())
				res.Errors = append(res.Errors, err.Error())
				if scraper.IsCritical(err) {
					criticalMsg = err.Error()
					break pages
				}
				slog.Warn("skipping page", "session", sess.ID, "page", pageNum, "error", err)
				o.saveProgress(ctx, sess)
				continue
			}
		}

		cards, err := func() (cards []scraper.JobCard, err error) {
			err = o.withRetry(ctx, engine, func() error {
				cards, err = nav.ExtractJobCards(ctx)
				return err
			})
			return cards, err
		}()
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupted(ctx, sess, res, collected, cardsSeen)
			}
			sess.Progress.RecordError(err.Error())
			res.Errors = append(res.Errors, err.Error())
			if scraper.IsCritical(err) {
				criticalMsg = err.Error()
				break pages
			}
			slog.Warn("page yielded no cards", "session", sess.ID, "page", pageNum, "error", err)
			o.saveProgress(ctx, sess)
			continue
		}

		cardsSeen += len(cards)
		for _, card := range cards {
			if seen[card.DetailURL] {
				continue
			}
			seen[card.DetailURL] = true
			collected = append(collected, job.FromCard(card, sess.ID, sess.UserID, o.cfg.PriorityCities))
		}
		pagesSucceeded++

		sess.Progress.CurrentPage = pageNum
		sess.Progress.JobsFound = cardsSeen
		sess.Progress.JobsProcessed = len(collected)
		o.saveProgress(ctx, sess)

		if pageNum < totalPages {
			if err := o.sleep(ctx, engine.AdaptiveDelay()); err != nil {
				return o.interrupted(ctx, sess, res, collected, cardsSeen)
			}
		}
	}

	return o.finalize(ctx, sess, res, collected, cardsSeen, pagesSucceeded, criticalMsg, cancelled)
}

// waitWhilePaused blocks while the session is paused. It reports false when
// the session has been cancelled out from under the run.
func (o *Orchestrator) waitWhilePaused(ctx context.Context, sess *session.Session) (bool, error) {
	for {
		cur, err := o.sessions.Get(ctx, sess.ID, sess.UserID)
		if err != nil {
			return false, err
		}
		switch cur.Status {
		case session.StatusRunning:
			return true, nil
		case session.StatusPaused:
			slog.Debug("session paused, waiting", "session", sess.ID)
			if err := o.sleep(ctx, o.pausePoll); err != nil {
				return false, err
			}
		default:
			// Cancelled (or otherwise finalized) externally.
			return false, nil
		}
	}
}

// withRetry runs fn, retrying retryable scrape errors with exponential
// backoff. Non-retryable errors surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, engine *antidetect.Engine, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !scraper.IsRetryable(err) || attempt >= o.cfg.MaxRetries {
			return err
		}
		delay := engine.BackoffDelay(attempt)
		slog.Debug("retrying after backoff", "attempt", attempt+1, "delay", delay, "error", err)
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

func (o *Orchestrator) finalize(ctx context.Context, sess *session.Session, res *Result, collected []job.Job, cardsSeen, pagesSucceeded int, criticalMsg string, cancelled bool) *Result {
	res.JobsFound = cardsSeen
	res.TotalJobsScraped = len(collected)

	inserted, err := o.jobs.BulkInsert(ctx, collected)
	if err != nil {
		slog.Error("persist scraped jobs", "session", sess.ID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("persist jobs: %v", err))
	} else {
		slog.Info("scraped jobs persisted", "session", sess.ID, "inserted", inserted)
	}

	switch {
	case cancelled:
		// The cancel command already failed the session; keep the partial
		// progress snapshot truthful.
		sess.Progress.Message = fmt.Sprintf("cancelled after %d pages, %d jobs kept", pagesSucceeded, len(collected))
		_ = o.sessions.UpdateProgress(ctx, sess.ID, sess.Progress)
		return res

	case pagesSucceeded == 0:
		msg := "no pages could be scraped"
		if criticalMsg != "" {
			msg = criticalMsg
		}
		o.failSession(sess, msg)
		return res
	}

	if criticalMsg != "" {
		slog.Warn("session aborted early, keeping partial results",
			"session", sess.ID, "pages", pagesSucceeded, "jobs", len(collected), "reason", criticalMsg)
		sess.Progress.Message = fmt.Sprintf("aborted early: %s", criticalMsg)
	}

	if o.cfg.ExportEnabled && o.sink != nil && len(collected) > 0 {
		sess.Progress.Stage = session.StageExporting
		o.saveProgress(ctx, sess)

		if url, err := o.export(ctx, sess, collected); err != nil {
			// Export failure never fails the session; jobs are already
			// persisted.
			slog.Error("export failed", "session", sess.ID, "error", err)
			res.ExportError = err.Error()
			sess.Progress.RecordError(fmt.Sprintf("export: %v", err))
		} else {
			sess.SheetURL = url
			res.SheetURL = url
		}
	}

	// Completion goes through the atomic transition so a cancel landing
	// during finalization is not overwritten.
	ok, err := o.sessions.Transition(ctx, sess.ID, sess.UserID,
		[]session.Status{session.StatusRunning}, session.StatusCompleted, "")
	if err != nil {
		slog.Error("finalize session", "session", sess.ID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("finalize session: %v", err))
		return res
	}
	if !ok {
		slog.Warn("session finalized externally during completion", "session", sess.ID)
		_ = o.sessions.UpdateProgress(ctx, sess.ID, sess.Progress)
		return res
	}

	now := o.now().UTC()
	sess.Status = session.StatusCompleted
	sess.TotalJobsFound = len(collected)
	sess.CompletedAt = &now
	sess.Progress.Stage = session.StageCompleted
	if err := o.sessions.Update(ctx, sess); err != nil {
		slog.Error("finalize session", "session", sess.ID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("finalize session: %v", err))
		return res
	}

	res.Success = true
	slog.Info("session completed", "session", sess.ID,
		"pages", pagesSucceeded, "jobs", len(collected), "sheet", sess.SheetURL)
	return res
}

func (o *Orchestrator) export(ctx context.Context, sess *session.Session, jobs []job.Job) (string, error) {
	ref, err := o.sink.CreateSheet(ctx, export.SheetConfig{
		Title:     "Job Search Results",
		UserID:    sess.UserID,
		SessionID: sess.ID,
	})
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	if err := o.sink.AppendRows(ctx, ref.ID, export.RowsFromJobs(jobs)); err != nil {
		return "", fmt.Errorf("append rows: %w", err)
	}
	return ref.URL, nil
}

// interrupted handles process shutdown mid-run: partial jobs are persisted
// and the session is left running for startup recovery to fail.
func (o *Orchestrator) interrupted(ctx context.Context, sess *session.Session, res *Result, collected []job.Job, cardsSeen int) *Result {
	slog.Warn("session interrupted by shutdown", "session", sess.ID, "jobs", len(collected))
	res.JobsFound = cardsSeen
	res.TotalJobsScraped = len(collected)
	res.Errors = append(res.Errors, "interrupted by shutdown")

	// Best effort with a fresh deadline; the run context is gone.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := o.jobs.BulkInsert(saveCtx, collected); err != nil {
		slog.Error("persist partial jobs", "session", sess.ID, "error", err)
	}
	_ = o.sessions.UpdateProgress(saveCtx, sess.ID, sess.Progress)
	return res
}

func (o *Orchestrator) failSession(sess *session.Session, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := o.sessions.Transition(ctx, sess.ID, sess.UserID,
		[]session.Status{session.StatusPending, session.StatusRunning, session.StatusPaused},
		session.StatusFailed, msg)
	if err != nil {
		slog.Error("mark session failed", "session", sess.ID, "error", err)
		return
	}
	if ok {
		sess.Status = session.StatusFailed
		sess.ErrorMessage = msg
		_ = o.sessions.UpdateProgress(ctx, sess.ID, sess.Progress)
		slog.Info("session failed", "session", sess.ID, "reason", msg)
	}
}

func (o *Orchestrator) saveProgress(ctx context.Context, sess *session.Session) {
	if err := o.sessions.UpdateProgress(ctx, sess.ID, sess.Progress); err != nil {
		slog.Error("save progress", "session", sess.ID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
