package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	defaultClaudeModel = "claude-3-5-haiku-latest"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGeminiModel = "gemini-2.0-flash"
	defaultOllamaModel = "llama3.2"
	claudeMaxTokens    = 1024
)

// NewChatModel creates the eino chat model for an LLM provider.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   orDefault(cfg.Model, defaultOpenAIModel),
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})

	case ProviderOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: orDefault(cfg.BaseURL, DefaultOllamaURL),
			Model:   orDefault(cfg.Model, defaultOllamaModel),
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     orDefault(cfg.Model, defaultClaudeModel),
			MaxTokens: claudeMaxTokens,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  orDefault(cfg.Model, defaultGeminiModel),
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

const systemPrompt = `You are a planning assistant. Break the user's goal into short, concrete, actionable tasks in the order they should be done.
Respond with JSON only, no prose and no markdown: {"tasks": ["first task", "second task"]}.
Return at most %d tasks. Each task is a single line under 80 characters.`

const breakdownSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var compiledBreakdownSchema = jsonschema.MustCompileString("breakdown.json", breakdownSchema)

type LLMOptions struct {
	// Timeout bounds one Breakdown call; zero means no extra deadline.
	Timeout  time.Duration
	MaxTasks int
}

// LLM asks a chat model for a breakdown through a prompt, model, parser graph.
type LLM struct {
	chain   compose.Runnable[string, []string]
	timeout time.Duration
}

func NewLLM(ctx context.Context, chatModel model.BaseChatModel, opts LLMOptions) (*LLM, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	maxTasks := opts.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	instructions := fmt.Sprintf(systemPrompt, maxTasks)

	promptFunc := func(ctx context.Context, goal string) ([]*schema.Message, error) {
		return []*schema.Message{
			schema.SystemMessage(instructions),
			schema.UserMessage("Goal: " + goal),
		}, nil
	}
	modelFunc := func(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
		return chatModel.Generate(ctx, input)
	}
	parserFunc := func(ctx context.Context, output *schema.Message) ([]string, error) {
		if output == nil {
			return nil, errors.New("empty model response")
		}
		return ParseBreakdown(output.Content)
	}

	graph := compose.NewGraph[string, []string]()
	_ = graph.AddLambdaNode("prompt", compose.InvokableLambda(promptFunc))
	_ = graph.AddLambdaNode("model", compose.InvokableLambda(modelFunc))
	_ = graph.AddLambdaNode("parser", compose.InvokableLambda(parserFunc))
	_ = graph.AddEdge(compose.START, "prompt")
	_ = graph.AddEdge("prompt", "model")
	_ = graph.AddEdge("model", "parser")
	_ = graph.AddEdge("parser", compose.END)

	chain, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile breakdown chain: %w", err)
	}
	return &LLM{chain: chain, timeout: opts.Timeout}, nil
}

func (l *LLM) Breakdown(ctx context.Context, goal string) ([]string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	titles, err := l.chain.Invoke(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return titles, nil
}

// ParseBreakdown extracts task titles from a model reply of the form
// {"tasks": [...]}, tolerating surrounding markdown fences.
func ParseBreakdown(content string) ([]string, error) {
	payload := stripFences(content)
	if payload == "" {
		return nil, errors.New("empty model response")
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("model response is not JSON: %w", err)
	}
	if err := compiledBreakdownSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model response rejected: %s", schemaMessage(err))
	}
	var out struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// drop the language tag
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	collectSchemaMessages(ve, &msgs)
	return strings.Join(msgs, "; ")
}

func collectSchemaMessages(ve *jsonschema.ValidationError, msgs *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*msgs = append(*msgs, loc+": "+ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaMessages(cause, msgs)
	}
}
