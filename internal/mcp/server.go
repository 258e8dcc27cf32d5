// Package mcp exposes the task store to AI assistants over the Model Context
// Protocol (stdio transport).
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"taskarchitect/internal/domain"
	"taskarchitect/internal/engine"
	"taskarchitect/internal/repo"
)

// ActorID is recorded on events written through MCP tools.
const ActorID = "mcp"

type ListTasksParams struct {
	// Pending limits the listing to tasks not yet completed.
	Pending bool `json:"pending,omitempty"`
}

type AddTaskParams struct {
	Title string `json:"title"`
}

type SetCompletedParams struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
}

type DeleteTaskParams struct {
	ID string `json:"id"`
}

type GenerateTasksParams struct {
	Prompt string `json:"prompt"`
}

// NewServer registers the task tools on a new MCP server.
func NewServer(e engine.Engine, version string, logger *slog.Logger) *mcpsdk.Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "taskarch-mcp",
		Version: version,
	}, &mcpsdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.InitializedParams) {
			logger.Info("mcp client initialized")
		},
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_tasks",
		Description: "List tasks newest first. Use {\"pending\":true} to only list open tasks.",
	}, listTasksHandler(e))
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "add_task",
		Description: "Create a task with the given title.",
	}, addTaskHandler(e))
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "set_task_completed",
		Description: "Mark a task completed or open again by id.",
	}, setCompletedHandler(e))
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "delete_task",
		Description: "Delete a task by id.",
	}, deleteTaskHandler(e))
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "generate_tasks",
		Description: "Break a natural-language goal down into new AI-generated tasks.",
	}, generateTasksHandler(e))
	return server
}

// Serve runs the server on stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, e engine.Engine, version string, logger *slog.Logger) error {
	server := NewServer(e, version, logger)
	if err := server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func listTasksHandler(e engine.Engine) mcpsdk.ToolHandlerFor[ListTasksParams, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[ListTasksParams]) (*mcpsdk.CallToolResultFor[any], error) {
		tasks, err := e.ListTasks(ctx)
		if err != nil {
			return errorResponse(err)
		}
		if params.Arguments.Pending {
			open := tasks[:0:0]
			for _, t := range tasks {
				if !t.Completed {
					open = append(open, t)
				}
			}
			tasks = open
		}
		return textResponse(FormatTasks(tasks))
	}
}

func addTaskHandler(e engine.Engine) mcpsdk.ToolHandlerFor[AddTaskParams, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[AddTaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{Title: params.Arguments.Title, ActorID: ActorID})
		if err != nil {
			return errorResponse(err)
		}
		return textResponse("Created task:\n" + formatTask(t))
	}
}

func setCompletedHandler(e engine.Engine) mcpsdk.ToolHandlerFor[SetCompletedParams, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[SetCompletedParams]) (*mcpsdk.CallToolResultFor[any], error) {
		if strings.TrimSpace(params.Arguments.ID) == "" {
			return errorResponse(fmt.Errorf("%w: id is required", engine.ErrInvalid))
		}
		completed := params.Arguments.Completed
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: params.Arguments.ID, Completed: &completed, ActorID: ActorID})
		if err != nil {
			return errorResponse(err)
		}
		return textResponse("Updated task:\n" + formatTask(t))
	}
}

func deleteTaskHandler(e engine.Engine) mcpsdk.ToolHandlerFor[DeleteTaskParams, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[DeleteTaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		if err := e.DeleteTask(ctx, params.Arguments.ID, ActorID); err != nil {
			return errorResponse(err)
		}
		return textResponse("Deleted task " + params.Arguments.ID)
	}
}

func generateTasksHandler(e engine.Engine) mcpsdk.ToolHandlerFor[GenerateTasksParams, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[GenerateTasksParams]) (*mcpsdk.CallToolResultFor[any], error) {
		tasks, err := e.GenerateTasks(ctx, engine.GenerateOptions{Prompt: params.Arguments.Prompt, ActorID: ActorID})
		if err != nil {
			return errorResponse(err)
		}
		return textResponse(fmt.Sprintf("Generated %d tasks:\n%s", len(tasks), FormatTasks(tasks)))
	}
}

// FormatTasks renders tasks as a markdown checklist.
func FormatTasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks."
	}
	var sb strings.Builder
	for _, t := range tasks {
		sb.WriteString(formatTask(t))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTask(t domain.Task) string {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	line := fmt.Sprintf("- [%s] %s (id: %s)", mark, t.Title, t.ID)
	if t.IsAIGenerated {
		line += " [AI]"
	}
	return line
}

func textResponse(text string) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}, nil
}

// errorResponse reports tool failures in the result so the model can react.
func errorResponse(err error) (*mcpsdk.CallToolResultFor[any], error) {
	msg := err.Error()
	if errors.Is(err, repo.ErrNotFound) {
		msg = "task not found"
	}
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "Error: " + msg}},
		IsError: true,
	}, nil
}
