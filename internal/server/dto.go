package server

import (
	"encoding/json"

	"taskarchitect/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Title string `json:"title" doc:"Task title; surrounding whitespace is trimmed"`
}

type GenerateTasksRequest struct {
	Prompt string `json:"prompt" doc:"Natural-language goal to break down"`
}

type UpdateTaskRequest struct {
	Completed *bool   `json:"completed,omitempty"`
	Title     *string `json:"title,omitempty"`
}

// Response payloads

type TaskResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Completed     bool    `json:"completed"`
	IsAIGenerated bool    `json:"is_ai_generated"`
	ParentPrompt  *string `json:"parent_prompt,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at,omitempty" format:"date-time"`
}

type MessageResponse struct {
	Message string `json:"message" example:"Task deleted successfully"`
}

type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		Title:         t.Title,
		Completed:     t.Completed,
		IsAIGenerated: t.IsAIGenerated,
		ParentPrompt:  t.ParentPrompt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
