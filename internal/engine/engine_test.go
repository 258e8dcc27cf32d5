package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskarchitect/internal/db"
	"taskarchitect/internal/domain"
	"taskarchitect/internal/engine"
	"taskarchitect/internal/generate"
	"taskarchitect/internal/migrate"
	"taskarchitect/internal/repo"
)

type stubGenerator struct {
	titles []string
	err    error
}

func (s stubGenerator) Breakdown(ctx context.Context, goal string) ([]string, error) {
	return s.titles, s.err
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, gen generate.Generator) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, gen)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	n := 0
	eng.NewID = func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestCreateAndListNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, title := range []string{"first", "  second  "} {
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: title, ActorID: "tester"}); err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Title != "second" || tasks[1].Title != "first" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
	if tasks[0].IsAIGenerated || tasks[0].Completed || tasks[0].ParentPrompt != nil {
		t.Fatalf("manual task flags wrong: %+v", tasks[0])
	}
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "   "}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestUpdateTask(t *testing.T) {
	env := newTestEnv(t, nil)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	done := true
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Completed: &done, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed || updated.Title != "A" {
		t.Fatalf("unexpected task: %+v", updated)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil || !got.Completed {
		t.Fatalf("completion not persisted: %+v %v", got, err)
	}

	blank := " "
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &blank}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank title, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "missing", Completed: &done}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	evts, err := env.Engine.RecentEvents(env.Ctx, repo.EventFilters{Type: domain.EventTaskUpdated})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].EntityID != task.ID || evts[0].ActorID != "tester" {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestUpdateWithoutFieldsIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if got != task {
		t.Fatalf("expected unchanged task, got %+v", got)
	}
	evts, err := env.Engine.RecentEvents(env.Ctx, repo.EventFilters{Type: domain.EventTaskUpdated})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 0 {
		t.Fatalf("no-op update wrote events: %+v", evts)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t, nil)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGenerateTasksKeepsBatchOrder(t *testing.T) {
	env := newTestEnv(t, stubGenerator{titles: []string{"Book Flights", " ", "Reserve Hotel", "Pack"}})
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "older"}); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{Prompt: "  Plan a trip ", ActorID: "tester"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected blank title dropped, got %+v", tasks)
	}
	for _, task := range tasks {
		if !task.IsAIGenerated || task.ParentPrompt == nil || *task.ParentPrompt != "Plan a trip" {
			t.Fatalf("generated task flags wrong: %+v", task)
		}
	}
	listed, err := env.Engine.ListTasks(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Book Flights", "Reserve Hotel", "Pack", "older"}
	for i, title := range want {
		if listed[i].Title != title {
			t.Fatalf("position %d = %q, want %q", i, listed[i].Title, title)
		}
	}
	evts, err := env.Engine.RecentEvents(env.Ctx, repo.EventFilters{Type: domain.EventTasksGenerated})
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected one tasks.generated event: %+v %v", evts, err)
	}
}

func TestGenerateTasksCapsBatch(t *testing.T) {
	titles := make([]string, 20)
	for i := range titles {
		titles[i] = fmt.Sprintf("step %d", i)
	}
	env := newTestEnv(t, stubGenerator{titles: titles})
	env.Engine.MaxGenerated = 4
	tasks, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{Prompt: "big goal"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 4 || tasks[3].Title != "step 3" {
		t.Fatalf("unexpected batch: %+v", tasks)
	}
}

func TestGenerateTasksErrors(t *testing.T) {
	env := newTestEnv(t, stubGenerator{err: errors.New("provider down")})
	if _, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{Prompt: " "}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{Prompt: "goal"}); !errors.Is(err, generate.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	env.Engine.Generator = stubGenerator{titles: []string{"", "  "}}
	if _, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{Prompt: "goal"}); !errors.Is(err, generate.ErrGeneration) {
		t.Fatalf("expected ErrGeneration for empty batch, got %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("failed generation stored tasks: %+v %v", tasks, err)
	}
}
