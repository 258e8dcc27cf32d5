package app

import (
	"context"

	"taskarchitect/internal/board"
	"taskarchitect/internal/domain"
	"taskarchitect/internal/engine"
	taskarchsdk "taskarchitect/sdk/go"
)

var (
	_ board.Store = LocalStore{}
	_ board.Store = RemoteStore{}
)

// LocalStore serves the board straight from the workspace engine.
type LocalStore struct {
	Engine  engine.Engine
	ActorID string
}

func (s LocalStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.Engine.ListTasks(ctx)
}

func (s LocalStore) CreateTask(ctx context.Context, title string) (domain.Task, error) {
	return s.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: title, ActorID: s.ActorID})
}

func (s LocalStore) SetCompleted(ctx context.Context, id string, completed bool) (domain.Task, error) {
	return s.Engine.UpdateTask(ctx, engine.TaskUpdateOptions{ID: id, Completed: &completed, ActorID: s.ActorID})
}

func (s LocalStore) DeleteTask(ctx context.Context, id string) error {
	return s.Engine.DeleteTask(ctx, id, s.ActorID)
}

func (s LocalStore) GenerateTasks(ctx context.Context, prompt string) ([]domain.Task, error) {
	return s.Engine.GenerateTasks(ctx, engine.GenerateOptions{Prompt: prompt, ActorID: s.ActorID})
}

// RemoteStore serves the board from a running server.
type RemoteStore struct {
	Client *taskarchsdk.Client
}

func (s RemoteStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	items, err := s.Client.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return fromSDKTasks(items), nil
}

func (s RemoteStore) CreateTask(ctx context.Context, title string) (domain.Task, error) {
	t, err := s.Client.CreateTask(ctx, title)
	if err != nil {
		return domain.Task{}, err
	}
	return fromSDKTask(t), nil
}

func (s RemoteStore) SetCompleted(ctx context.Context, id string, completed bool) (domain.Task, error) {
	t, err := s.Client.SetCompleted(ctx, id, completed)
	if err != nil {
		return domain.Task{}, err
	}
	return fromSDKTask(t), nil
}

func (s RemoteStore) DeleteTask(ctx context.Context, id string) error {
	return s.Client.DeleteTask(ctx, id)
}

func (s RemoteStore) GenerateTasks(ctx context.Context, prompt string) ([]domain.Task, error) {
	items, err := s.Client.GenerateTasks(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return fromSDKTasks(items), nil
}

func fromSDKTask(t taskarchsdk.Task) domain.Task {
	return domain.Task{
		ID:            t.ID,
		Title:         t.Title,
		Completed:     t.Completed,
		IsAIGenerated: t.IsAIGenerated,
		ParentPrompt:  t.ParentPrompt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromSDKTasks(items []taskarchsdk.Task) []domain.Task {
	out := make([]domain.Task, 0, len(items))
	for _, t := range items {
		out = append(out, fromSDKTask(t))
	}
	return out
}
