// Package board holds the client-side task list: an ordered cache of the
// store's tasks, the input state around it and the derived progress.
package board

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"taskarchitect/internal/domain"
	taskarchsdk "taskarchitect/sdk/go"
)

var (
	// ErrUnknownTask is returned for ids not present in the local list.
	ErrUnknownTask = errors.New("unknown task")
	// ErrGenerating is returned when a generation request is already in flight.
	ErrGenerating = errors.New("generation already in progress")
)

// Store is the remote service of record.
type Store interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, title string) (domain.Task, error)
	SetCompleted(ctx context.Context, id string, completed bool) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GenerateTasks(ctx context.Context, prompt string) ([]domain.Task, error)
}

// Stats are the aggregate values shown above the list.
type Stats struct {
	Completed int
	Total     int
	Percent   float64
}

// Progress computes Stats for tasks.
func Progress(tasks []domain.Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.Percent = float64(s.Completed) / float64(s.Total) * 100
	}
	return s
}

// State is a point-in-time copy of the board.
type State struct {
	Tasks         []domain.Task
	Draft         string
	Prompt        string
	Generating    bool
	PromptVisible bool
	Stats         Stats
}

// Board is safe for concurrent use. Remote calls run without the lock held,
// so overlapping mutations apply in the order their responses arrive.
type Board struct {
	store  Store
	logger *slog.Logger

	mu            sync.Mutex
	tasks         []domain.Task
	draft         string
	prompt        string
	generating    bool
	promptVisible bool
}

func New(store Store, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{store: store, logger: logger}
}

// Load replaces the local list with the store's.
func (b *Board) Load(ctx context.Context) error {
	tasks, err := b.store.ListTasks(ctx)
	if err != nil {
		return b.fail("load", err)
	}
	b.mu.Lock()
	b.tasks = append([]domain.Task(nil), tasks...)
	b.mu.Unlock()
	return nil
}

// AddManual creates a task from title. Blank titles are ignored.
func (b *Board) AddManual(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	t, err := b.store.CreateTask(ctx, title)
	if err != nil {
		return b.fail("add", err, "title", title)
	}
	b.mu.Lock()
	b.tasks = prepend(b.tasks, t)
	b.draft = ""
	b.mu.Unlock()
	return nil
}

// ToggleCompletion flips the completed flag of id and merges the store's record.
func (b *Board) ToggleCompletion(ctx context.Context, id string) error {
	b.mu.Lock()
	i := b.indexOf(id)
	var completed bool
	if i >= 0 {
		completed = b.tasks[i].Completed
	}
	b.mu.Unlock()
	if i < 0 {
		return ErrUnknownTask
	}
	t, err := b.store.SetCompleted(ctx, id, !completed)
	if err != nil {
		return b.fail("toggle", err, "task_id", id)
	}
	b.mu.Lock()
	// The entry may have moved or gone while the call was in flight.
	if j := b.indexOf(id); j >= 0 {
		b.tasks[j] = t
	}
	b.mu.Unlock()
	return nil
}

// Delete removes id from the store and then from the local list.
func (b *Board) Delete(ctx context.Context, id string) error {
	if err := b.store.DeleteTask(ctx, id); err != nil {
		return b.fail("delete", err, "task_id", id)
	}
	b.mu.Lock()
	if i := b.indexOf(id); i >= 0 {
		b.tasks = append(b.tasks[:i:i], b.tasks[i+1:]...)
	}
	b.mu.Unlock()
	return nil
}

// Generate asks the store to break prompt down and prepends the new tasks in
// the order received. Blank prompts are ignored.
func (b *Board) Generate(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}
	b.mu.Lock()
	if b.generating {
		b.mu.Unlock()
		return ErrGenerating
	}
	b.generating = true
	b.mu.Unlock()

	tasks, err := b.store.GenerateTasks(ctx, prompt)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.generating = false
	if err != nil {
		return b.fail("generate", err, "prompt", prompt)
	}
	b.tasks = prepend(b.tasks, tasks...)
	b.prompt = ""
	b.promptVisible = false
	return nil
}

func (b *Board) SetDraft(s string) {
	b.mu.Lock()
	b.draft = s
	b.mu.Unlock()
}

func (b *Board) SetPrompt(s string) {
	b.mu.Lock()
	b.prompt = s
	b.mu.Unlock()
}

// ShowPrompt reveals the AI prompt form.
func (b *Board) ShowPrompt() {
	b.mu.Lock()
	b.promptVisible = true
	b.mu.Unlock()
}

// CancelPrompt hides the AI prompt form and discards its text.
func (b *Board) CancelPrompt() {
	b.mu.Lock()
	b.promptVisible = false
	b.prompt = ""
	b.mu.Unlock()
}

func (b *Board) Generating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generating
}

// Tasks returns a copy of the local list.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Task(nil), b.tasks...)
}

func (b *Board) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Progress(b.tasks)
}

func (b *Board) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Tasks:         append([]domain.Task(nil), b.tasks...),
		Draft:         b.draft,
		Prompt:        b.prompt,
		Generating:    b.generating,
		PromptVisible: b.promptVisible,
		Stats:         Progress(b.tasks),
	}
}

// indexOf must be called with mu held.
func (b *Board) indexOf(id string) int {
	for i, t := range b.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) fail(op string, err error, attrs ...any) error {
	attrs = append(attrs, "op", op, "transient", taskarchsdk.IsTransient(err), "err", err)
	b.logger.Error("task store call failed", attrs...)
	return err
}

func prepend(tasks []domain.Task, front ...domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(front)+len(tasks))
	out = append(out, front...)
	return append(out, tasks...)
}
