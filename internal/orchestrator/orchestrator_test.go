package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
	"github.com/adityawiguna/jobscout-api/internal/apperror"
	"github.com/adityawiguna/jobscout-api/internal/export"
	"github.com/adityawiguna/jobscout-api/internal/job"
	"github.com/adityawiguna/jobscout-api/internal/scraper"
	"github.com/adityawiguna/jobscout-api/internal/session"
)

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: map[string]*session.Session{}}
}

func (m *mockSessionRepo) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) Get(_ context.Context, id, userID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, apperror.New(apperror.NotFound, "session not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) ListForUser(_ context.Context, userID string) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) Update(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) UpdateProgress(_ context.Context, id string, p session.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Progress = p
	}
	return nil
}

func (m *mockSessionRepo) Transition(_ context.Context, id, userID string, from []session.Status, to session.Status, errorMessage string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			if to == session.StatusFailed {
				s.ErrorMessage = errorMessage
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepo) ClaimPending(_ context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Status == session.StatusPending {
			s.Status = session.StatusRunning
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSessionRepo) RecoverInterrupted(_ context.Context) (int64, error) { return 0, nil }

func (m *mockSessionRepo) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type mockJobRepo struct {
	mu   sync.Mutex
	jobs []job.Job
}

func (m *mockJobRepo) BulkInsert(_ context.Context, jobs []job.Job) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, jobs...)
	return int64(len(jobs)), nil
}

func (m *mockJobRepo) ListBySession(_ context.Context, sessionID, userID string) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.Job
	for _, j := range m.jobs {
		if j.SessionID == sessionID && j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockJobRepo) UpdateApplicationStatus(_ context.Context, jobID, userID string, status job.ApplicationStatus) error {
	return nil
}

func (m *mockJobRepo) DeleteBySession(_ context.Context, sessionID string) error { return nil }

type fakeSink struct {
	mu     sync.Mutex
	sheets int
	rows   int
	fail   bool
}

func (f *fakeSink) CreateSheet(_ context.Context, cfg export.SheetConfig) (*export.SheetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("sheet backend unavailable")
	}
	f.sheets++
	return &export.SheetRef{ID: "sheet-1", URL: "http://sheets.local/sheet-1"}, nil
}

func (f *fakeSink) AppendRows(_ context.Context, sheetID string, rows []export.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows += len(rows)
	return nil
}

// fakeNav scripts per-page behavior: cards returned, and errors that fire a
// limited number of times before the page starts working.
type fakeNav struct {
	totalPages  int
	cards       map[int][]scraper.JobCard
	extractErrs map[int]*countdownErr
	gotoErrs    map[int]*countdownErr
	navErr      error

	cur       int
	gotoCalls []int
}

type countdownErr struct {
	err   error
	times int // <0 means always
}

func (c *countdownErr) next() error {
	if c == nil {
		return nil
	}
	if c.times < 0 {
		return c.err
	}
	if c.times == 0 {
		return nil
	}
	c.times--
	return c.err
}

func cardsFor(page, n int) []scraper.JobCard {
	cards := make([]scraper.JobCard, n)
	for i := range cards {
		cards[i] = scraper.JobCard{
			Title:     fmt.Sprintf("Job %d-%d", page, i),
			Company:   "Acme",
			Location:  "Jakarta",
			DetailURL: fmt.Sprintf("https://example.com/jobs/%d-%d", page, i),
		}
	}
	return cards
}

func (f *fakeNav) NavigateToSearch(ctx context.Context, url string) error {
	f.cur = 1
	return f.navErr
}

func (f *fakeNav) DiscoverTotalPages(ctx context.Context) int { return f.totalPages }

func (f *fakeNav) GoToPage(ctx context.Context, n int) error {
	f.gotoCalls = append(f.gotoCalls, n)
	if err := f.gotoErrs[n].next(); err != nil {
		return err
	}
	f.cur = n
	return nil
}

func (f *fakeNav) HasNextPage(ctx context.Context) bool { return f.cur < f.totalPages }

func (f *fakeNav) AdvanceToNextPage(ctx context.Context) (bool, error) {
	if f.cur >= f.totalPages {
		return false, nil
	}
	return true, f.GoToPage(ctx, f.cur+1)
}

func (f *fakeNav) ExtractJobCards(ctx context.Context) ([]scraper.JobCard, error) {
	if err := f.extractErrs[f.cur].next(); err != nil {
		return nil, err
	}
	return f.cards[f.cur], nil
}

func (f *fakeNav) RotateFingerprint(ctx context.Context) error { return nil }

func newTestOrchestrator(t *testing.T, nav *fakeNav, opts ...Option) (*Orchestrator, *mockSessionRepo, *mockJobRepo) {
	t.Helper()
	sessions := newMockSessionRepo()
	jobs := &mockJobRepo{}
	factory := func(ctx context.Context, engine *antidetect.Engine) (scraper.Navigator, func(), error) {
		return nav, func() {}, nil
	}
	cfg := Config{
		MaxPages:       10,
		MaxRetries:     3,
		PriorityCities: []string{"Jakarta"},
		PageDelayMin:   time.Millisecond,
		PageDelayMax:   2 * time.Millisecond,
	}
	base := []Option{
		WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		WithEngineFactory(func() *antidetect.Engine {
			return antidetect.New(antidetect.WithDelayWindow(time.Millisecond, 2*time.Millisecond))
		}),
	}
	o := New(sessions, jobs, factory, cfg, append(base, opts...)...)
	return o, sessions, jobs
}

func params() session.SearchParams {
	return session.SearchParams{Keywords: []string{"Backend"}, Locations: []string{"Jakarta"}}
}

func TestScrapeJobs_CompletesAndPersists(t *testing.T) {
	nav := &fakeNav{
		totalPages: 2,
		cards:      map[int][]scraper.JobCard{1: cardsFor(1, 25), 2: cardsFor(2, 20)},
	}
	sink := &fakeSink{}
	o, sessions, jobs := newTestOrchestrator(t, nav, WithSink(sink))
	o.cfg.ExportEnabled = true

	res := o.ScrapeJobs(context.Background(), "user-1", "cv-1", params())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TotalJobsScraped != 45 {
		t.Errorf("expected 45 jobs, got %d", res.TotalJobsScraped)
	}
	if res.SheetURL != "http://sheets.local/sheet-1" {
		t.Errorf("sheet url = %q", res.SheetURL)
	}

	sess, err := sessions.Get(context.Background(), res.SessionID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("session status = %s", sess.Status)
	}
	if sess.TotalJobsFound != 45 || sess.SheetURL == "" {
		t.Errorf("finalized session = %+v", sess)
	}
	if sess.Progress.Stage != session.StageCompleted || sess.Progress.CurrentPage != 2 {
		t.Errorf("final progress = %+v", sess.Progress)
	}

	stored, _ := jobs.ListBySession(context.Background(), res.SessionID, "user-1")
	if len(stored) != 45 {
		t.Errorf("expected 45 persisted jobs, got %d", len(stored))
	}
	if sink.rows != 45 {
		t.Errorf("expected 45 exported rows, got %d", sink.rows)
	}
}

func TestScrapeJobs_InvalidParams(t *testing.T) {
	o, sessions, _ := newTestOrchestrator(t, &fakeNav{totalPages: 1})

	res := o.ScrapeJobs(context.Background(), "user-1", "", session.SearchParams{})
	if res.Success || res.SessionID != "" {
		t.Errorf("invalid params must not create a session: %+v", res)
	}
	if len(sessions.sessions) != 0 {
		t.Errorf("expected no records, got %d", len(sessions.sessions))
	}
}

func TestScrapeJobs_RetriesThenSucceeds(t *testing.T) {
	transient := scraper.NewError(scraper.KindNavigation, 2, true, "results did not reappear", nil)
	nav := &fakeNav{
		totalPages: 2,
		cards:      map[int][]scraper.JobCard{1: cardsFor(1, 5), 2: cardsFor(2, 5)},
		gotoErrs:   map[int]*countdownErr{2: {err: transient, times: 2}},
	}
	o, _, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if res.TotalJobsScraped != 10 {
		t.Errorf("expected 10 jobs, got %d", res.TotalJobsScraped)
	}
	if len(nav.gotoCalls) != 3 {
		t.Errorf("expected 3 attempts at page 2, got %v", nav.gotoCalls)
	}
}

func TestScrapeJobs_SkipsPageAfterRetriesExhausted(t *testing.T) {
	transient := scraper.NewError(scraper.KindExtraction, 2, true, "cards never appeared", nil)
	nav := &fakeNav{
		totalPages:  3,
		cards:       map[int][]scraper.JobCard{1: cardsFor(1, 5), 3: cardsFor(3, 5)},
		extractErrs: map[int]*countdownErr{2: {err: transient, times: -1}},
	}
	o, _, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatalf("a bad page must be skipped, not fatal: %+v", res)
	}
	if res.TotalJobsScraped != 10 {
		t.Errorf("expected pages 1 and 3 only (10 jobs), got %d", res.TotalJobsScraped)
	}
	if len(res.Errors) == 0 {
		t.Error("the skipped page should be reported")
	}
}

func TestScrapeJobs_CriticalAbortKeepsPartialResults(t *testing.T) {
	blocked := scraper.NewError(scraper.KindBlocked, 2, false, "captcha challenge presented", nil)
	nav := &fakeNav{
		totalPages:  5,
		cards:       map[int][]scraper.JobCard{1: cardsFor(1, 20)},
		extractErrs: map[int]*countdownErr{2: {err: blocked, times: -1}},
	}
	o, sessions, jobs := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatalf("partial results should still complete the session: %+v", res)
	}
	if res.TotalJobsScraped != 20 {
		t.Errorf("expected the 20 page-1 jobs, got %d", res.TotalJobsScraped)
	}
	for _, n := range nav.gotoCalls {
		if n > 2 {
			t.Errorf("no page beyond the blocked one should be visited, got %v", nav.gotoCalls)
		}
	}

	sess, _ := sessions.Get(context.Background(), res.SessionID, "user-1")
	if sess.Status != session.StatusCompleted {
		t.Errorf("session status = %s", sess.Status)
	}
	stored, _ := jobs.ListBySession(context.Background(), res.SessionID, "user-1")
	if len(stored) != 20 {
		t.Errorf("partial jobs must be persisted, got %d", len(stored))
	}
}

func TestScrapeJobs_CriticalOnFirstPageFails(t *testing.T) {
	blocked := scraper.NewError(scraper.KindBlocked, 1, false, "login wall presented", nil)
	nav := &fakeNav{
		totalPages:  3,
		extractErrs: map[int]*countdownErr{1: {err: blocked, times: -1}},
	}
	o, sessions, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if res.Success {
		t.Fatal("zero scraped pages cannot be a success")
	}

	sess, _ := sessions.Get(context.Background(), res.SessionID, "user-1")
	if sess.Status != session.StatusFailed {
		t.Errorf("session status = %s", sess.Status)
	}
	if !strings.Contains(sess.ErrorMessage, "login wall") {
		t.Errorf("error message = %q", sess.ErrorMessage)
	}
}

func TestScrapeJobs_NavigateFailureFailsSession(t *testing.T) {
	nav := &fakeNav{
		totalPages: 1,
		navErr:     scraper.NewError(scraper.KindNavigation, 0, false, "landed page is not a job-search results page", nil),
	}
	o, sessions, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if res.Success {
		t.Fatal("expected failure")
	}
	sess, _ := sessions.Get(context.Background(), res.SessionID, "user-1")
	if sess.Status != session.StatusFailed {
		t.Errorf("session status = %s", sess.Status)
	}
}

func TestScrapeJobs_CancelObservedAtPageBoundary(t *testing.T) {
	nav := &fakeNav{
		totalPages: 5,
		cards:      map[int][]scraper.JobCard{1: cardsFor(1, 10), 2: cardsFor(2, 10)},
	}
	o, sessions, jobs := newTestOrchestrator(t, nav)

	// Cancel the session after page 1 by flipping it during the inter-page
	// sleep.
	var once sync.Once
	var sessID string
	o.sleep = func(ctx context.Context, d time.Duration) error {
		once.Do(func() {
			_, _ = sessions.Transition(ctx, sessID, "user-1",
				[]session.Status{session.StatusRunning}, session.StatusFailed, "cancelled by user")
		})
		return ctx.Err()
	}

	// The session id is only known after creation; capture it via a wrapper
	// repo is overkill, so pre-create and run the worker path instead.
	sess := session.New("user-1", "", params())
	if err := sessions.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	sessID = sess.ID
	if _, err := sessions.Transition(context.Background(), sess.ID, "user-1",
		[]session.Status{session.StatusPending}, session.StatusRunning, ""); err != nil {
		t.Fatal(err)
	}
	sess.Status = session.StatusRunning

	if err := o.Process(context.Background(), sess); err == nil {
		t.Fatal("a cancelled session is not a successful run")
	}

	got, _ := sessions.Get(context.Background(), sess.ID, "user-1")
	if got.Status != session.StatusFailed || got.ErrorMessage != "cancelled by user" {
		t.Errorf("cancelled session = %+v", got)
	}
	stored, _ := jobs.ListBySession(context.Background(), sess.ID, "user-1")
	if len(stored) != 10 {
		t.Errorf("partial jobs from page 1 must survive cancellation, got %d", len(stored))
	}
}

func TestScrapeJobs_DeduplicatesAcrossPages(t *testing.T) {
	dup := cardsFor(1, 5)
	nav := &fakeNav{
		totalPages: 2,
		cards:      map[int][]scraper.JobCard{1: dup, 2: dup},
	}
	o, _, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatal(res.Errors)
	}
	if res.JobsFound != 10 {
		t.Errorf("expected 10 cards seen, got %d", res.JobsFound)
	}
	if res.TotalJobsScraped != 5 {
		t.Errorf("expected 5 unique jobs, got %d", res.TotalJobsScraped)
	}
}

func TestScrapeJobs_ExportFailureDoesNotFailSession(t *testing.T) {
	nav := &fakeNav{
		totalPages: 1,
		cards:      map[int][]scraper.JobCard{1: cardsFor(1, 5)},
	}
	sink := &fakeSink{fail: true}
	o, sessions, _ := newTestOrchestrator(t, nav, WithSink(sink))
	o.cfg.ExportEnabled = true

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatalf("export failure must not fail the session: %+v", res)
	}
	if res.ExportError == "" {
		t.Error("export error should be reported")
	}
	sess, _ := sessions.Get(context.Background(), res.SessionID, "user-1")
	if sess.Status != session.StatusCompleted || sess.SheetURL != "" {
		t.Errorf("session after failed export = %+v", sess)
	}
}

func TestScrapeJobs_RespectsMaxPages(t *testing.T) {
	cards := map[int][]scraper.JobCard{}
	for p := 1; p <= 12; p++ {
		cards[p] = cardsFor(p, 1)
	}
	nav := &fakeNav{totalPages: 12, cards: cards}
	o, _, _ := newTestOrchestrator(t, nav)

	res := o.ScrapeJobs(context.Background(), "user-1", "", params())
	if !res.Success {
		t.Fatal(res.Errors)
	}
	if res.TotalJobsScraped != 10 {
		t.Errorf("the page cap is 10, scraped %d pages worth", res.TotalJobsScraped)
	}
}
