package repo

import (
	"context"
	"errors"
	"testing"

	"taskarchitect/internal/db"
	"taskarchitect/internal/domain"
	"taskarchitect/internal/events"
	"taskarchitect/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func TestTaskRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	prompt := "plan a party"
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := domain.Task{ID: "t1", Title: "Order cake", IsAIGenerated: true, ParentPrompt: &prompt, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertTask(ctx, tx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != in.Title || !got.IsAIGenerated || got.Completed || got.ParentPrompt == nil || *got.ParentPrompt != prompt {
		t.Fatalf("unexpected task: %+v", got)
	}
	if _, err := r.GetTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.UpdateTask(ctx, tx, domain.Task{ID: "ghost", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := r.DeleteTask(ctx, tx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestEventsCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, typ := range []string{domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskDeleted} {
		if err := w.Append(ctx, tx, typ, "task", "t1", "", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	last, err := r.LatestEventID(ctx)
	if err != nil || last != 3 {
		t.Fatalf("latest id = %d, %v", last, err)
	}
	after, err := r.EventsAfter(ctx, 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 || after[0].Type != domain.EventTaskUpdated || after[0].ActorID != "anonymous" {
		t.Fatalf("unexpected events after cursor: %+v", after)
	}
	latest, err := r.LatestEvents(ctx, EventFilters{Limit: 1})
	if err != nil || len(latest) != 1 || latest[0].Type != domain.EventTaskDeleted {
		t.Fatalf("unexpected latest: %+v %v", latest, err)
	}
}
