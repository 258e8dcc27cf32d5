package domain

type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Completed     bool    `json:"completed"`
	IsAIGenerated bool    `json:"is_ai_generated"`
	ParentPrompt  *string `json:"parent_prompt,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Event types written by the engine.
const (
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventTaskDeleted    = "task.deleted"
	EventTasksGenerated = "tasks.generated"
)
