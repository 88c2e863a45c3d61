package session

import (
	"context"
	"testing"

	"github.com/adityawiguna/jobscout-api/internal/apperror"
	"github.com/adityawiguna/jobscout-api/internal/platform/sqlite"
	domain "github.com/adityawiguna/jobscout-api/internal/session"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSession(userID string) *domain.Session {
	return domain.New(userID, "cv-1", domain.SearchParams{
		Keywords:  []string{"Backend Developer"},
		Locations: []string{"Jakarta"},
	})
}

func TestCreate_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, s.ID, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if len(got.SearchParams.Keywords) != 1 || got.SearchParams.Keywords[0] != "Backend Developer" {
		t.Errorf("search params did not round-trip: %+v", got.SearchParams)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("fresh session must have no started/completed timestamps")
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Get(ctx, s.ID, "user-2"); !apperror.IsNotFound(err) {
		t.Errorf("expected not-found for a foreign user, got %v", err)
	}
}

func TestListForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newSession("user-1")); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Create(ctx, newSession("user-2")); err != nil {
		t.Fatal(err)
	}

	sessions, err := repo.ListForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("expected 3, got %d", len(sessions))
	}
}

func TestUpdate_And_UpdateProgress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	s.Status = domain.StatusCompleted
	s.TotalJobsFound = 42
	s.SheetURL = "http://localhost:8080/exports/jobs-x.xlsx"
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("update: %v", err)
	}

	p := domain.Progress{CurrentPage: 3, TotalPages: 10, JobsFound: 42, Stage: domain.StageExtracting}
	if err := repo.UpdateProgress(ctx, s.ID, p); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	got, _ := repo.Get(ctx, s.ID, "user-1")
	if got.Status != domain.StatusCompleted || got.TotalJobsFound != 42 {
		t.Errorf("update lost fields: %+v", got)
	}
	if got.Progress.CurrentPage != 3 || got.Progress.Stage != domain.StageExtracting {
		t.Errorf("progress did not round-trip: %+v", got.Progress)
	}
}

func TestTransition(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	// pending -> running
	ok, err := repo.Transition(ctx, s.ID, "user-1",
		[]domain.Status{domain.StatusPending}, domain.StatusRunning, "")
	if err != nil || !ok {
		t.Fatalf("pending->running: ok=%v err=%v", ok, err)
	}

	// A second attempt from pending must not match.
	ok, err = repo.Transition(ctx, s.ID, "user-1",
		[]domain.Status{domain.StatusPending}, domain.StatusRunning, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("transition from a stale status must not change the row")
	}

	// Another user cannot transition it at all.
	ok, _ = repo.Transition(ctx, s.ID, "user-2",
		[]domain.Status{domain.StatusRunning}, domain.StatusFailed, "x")
	if ok {
		t.Error("transition must be owner-scoped")
	}

	// running -> failed stamps the error and completion time.
	ok, err = repo.Transition(ctx, s.ID, "user-1",
		[]domain.Status{domain.StatusRunning}, domain.StatusFailed, "cancelled by user")
	if err != nil || !ok {
		t.Fatalf("running->failed: ok=%v err=%v", ok, err)
	}
	got, _ := repo.Get(ctx, s.ID, "user-1")
	if got.Status != domain.StatusFailed || got.ErrorMessage != "cancelled by user" {
		t.Errorf("unexpected session after fail: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("failed session must carry a completion timestamp")
	}
}

func TestClaimPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	claimed, err := repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim on empty table: %v", err)
	}
	if claimed != nil {
		t.Fatal("expected nil when nothing is pending")
	}

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	claimed, err = repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != s.ID {
		t.Fatalf("expected to claim %s, got %+v", s.ID, claimed)
	}
	if claimed.Status != domain.StatusRunning {
		t.Errorf("claimed session should be running, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Error("claimed session should have a start timestamp")
	}

	// Nothing left to claim.
	claimed, err = repo.ClaimPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("expected nil, got %+v", claimed)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	running := newSession("user-1")
	if err := repo.Create(ctx, running); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}
	pending := newSession("user-1")
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatal(err)
	}

	n, err := repo.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered, got %d", n)
	}

	got, _ := repo.Get(ctx, running.ID, "user-1")
	if got.Status != domain.StatusFailed {
		t.Errorf("interrupted session should be failed, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("interrupted session should explain what happened")
	}

	got, _ = repo.Get(ctx, pending.ID, "user-1")
	if got.Status != domain.StatusPending {
		t.Errorf("pending session must be untouched, got %s", got.Status)
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	s := newSession("user-1")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, s.ID, "user-2"); !apperror.IsNotFound(err) {
		t.Errorf("delete must be owner-scoped, got %v", err)
	}
	if err := repo.Delete(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, s.ID, "user-1"); !apperror.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}
