package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskarchitect/internal/domain"
	"taskarchitect/internal/events"
	"taskarchitect/internal/generate"
	"taskarchitect/internal/repo"
)

// MaxGenerated caps how many tasks a single generation request may create.
const MaxGenerated = 10

// ErrInvalid marks a request rejected before touching the store.
var ErrInvalid = errors.New("invalid request")

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Generator generate.Generator
	// MaxGenerated overrides the package default when positive.
	MaxGenerated int
	Now          func() time.Time
	NewID        func() string
}

func New(db *sql.DB, gen generate.Generator) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{Now: time.Now},
		Generator: gen,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) maxGenerated() int {
	if e.MaxGenerated > 0 {
		return e.MaxGenerated
	}
	return MaxGenerated
}

// ListTasks returns every task, newest first.
func (e Engine) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx)
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title   string
	ActorID string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	now := e.timestamp()
	t := domain.Task{
		ID:        e.newID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskCreated, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions describes a partial update. Nil fields are left as stored.
type TaskUpdateOptions struct {
	ID        string
	Completed *bool
	Title     *string
	ActorID   string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	var title string
	if opts.Title != nil {
		title = strings.TrimSpace(*opts.Title)
		if title == "" {
			return domain.Task{}, fmt.Errorf("%w: title must not be empty", ErrInvalid)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Completed == nil && opts.Title == nil {
		return t, nil
	}
	payload := events.EventPayload{}
	if opts.Completed != nil {
		payload["completed"] = map[string]bool{"from": t.Completed, "to": *opts.Completed}
		t.Completed = *opts.Completed
	}
	if opts.Title != nil {
		payload["title"] = map[string]string{"from": t.Title, "to": title}
		t.Title = title
	}
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskUpdated, "task", t.ID, opts.ActorID, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskDeleted, "task", id, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// GenerateOptions are parameters for an AI breakdown request.
type GenerateOptions struct {
	Prompt  string
	ActorID string
}

// GenerateTasks asks the generator to break the prompt into tasks and stores
// them as one batch. The result keeps the generator's order.
func (e Engine) GenerateTasks(ctx context.Context, opts GenerateOptions) ([]domain.Task, error) {
	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalid)
	}
	if e.Generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", generate.ErrGeneration)
	}
	raw, err := e.Generator.Breakdown(ctx, prompt)
	if err != nil {
		if errors.Is(err, generate.ErrGeneration) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", generate.ErrGeneration, err)
	}
	titles := make([]string, 0, len(raw))
	for _, title := range raw {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		titles = append(titles, title)
		if len(titles) == e.maxGenerated() {
			break
		}
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: generator returned no tasks", generate.ErrGeneration)
	}

	now := e.timestamp()
	tasks := make([]domain.Task, len(titles))
	ids := make([]string, len(titles))
	for i, title := range titles {
		p := prompt
		tasks[i] = domain.Task{
			ID:            e.newID(),
			Title:         title,
			IsAIGenerated: true,
			ParentPrompt:  &p,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		ids[i] = tasks[i].ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	// Listing is newest-inserted first, so insert the batch back to front.
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := e.Repo.InsertTask(ctx, tx, tasks[i]); err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, domain.EventTasksGenerated, "task", "", opts.ActorID, events.EventPayload{
		"prompt":   prompt,
		"task_ids": ids,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// RecentEvents returns the most recent audit events.
func (e Engine) RecentEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
