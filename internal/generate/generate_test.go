package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

func TestSimulatedKeywordTable(t *testing.T) {
	cases := map[string]string{
		"Plan my Birthday":        "Order the cake 🎂",
		"ship the new app":        "Setup Git Repo 🐙",
		"cook dinner for friends": "Buy Groceries 🥦",
		"Plan a trip to Lisbon":   "Book Flights ✈️",
	}
	gen := Simulated{}
	for goal, first := range cases {
		titles, err := gen.Breakdown(context.Background(), goal)
		if err != nil {
			t.Fatalf("%q: %v", goal, err)
		}
		if len(titles) != 3 || titles[0] != first {
			t.Fatalf("%q: got %v", goal, titles)
		}
	}
}

func TestSimulatedFallbackLowercasesGoal(t *testing.T) {
	titles, err := Simulated{}.Breakdown(context.Background(), "Learn Go")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Research: learn go", "Draft outline for learn go", "Review final draft"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titles, want)
	}
}

func TestSimulatedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulated{Latency: time.Hour}.Breakdown(ctx, "party")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "magic"}); err == nil {
		t.Fatal("expected error")
	}
	gen, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := gen.(Simulated); !ok {
		t.Fatalf("default provider should be simulated, got %T", gen)
	}
}

func TestNewChatModelRequiresKey(t *testing.T) {
	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		if _, err := NewChatModel(context.Background(), Config{Provider: p}); err == nil {
			t.Fatalf("%s: expected missing key error", p)
		}
	}
}

func TestParseBreakdown(t *testing.T) {
	titles, err := ParseBreakdown("```json\n{\"tasks\": [\"a\", \"b\"]}\n```")
	if err != nil {
		t.Fatalf("fenced: %v", err)
	}
	if len(titles) != 2 || titles[1] != "b" {
		t.Fatalf("got %v", titles)
	}
	for _, bad := range []string{
		"",
		"not json",
		`{"items": ["a"]}`,
		`{"tasks": []}`,
		`{"tasks": [1, 2]}`,
	} {
		if _, err := ParseBreakdown(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestLLMBreakdown(t *testing.T) {
	cm := &fakeChatModel{reply: `{"tasks": ["Pick a venue", "Invite people"]}`}
	gen, err := NewLLM(context.Background(), cm, LLMOptions{MaxTasks: 5})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	titles, err := gen.Breakdown(context.Background(), "host a meetup")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Pick a venue" {
		t.Fatalf("got %v", titles)
	}
	if len(cm.seen) != 2 || cm.seen[0].Role != schema.System || !strings.Contains(cm.seen[1].Content, "host a meetup") {
		t.Fatalf("unexpected prompt: %+v", cm.seen)
	}
	if !strings.Contains(cm.seen[0].Content, "at most 5 tasks") {
		t.Fatalf("system prompt missing cap: %q", cm.seen[0].Content)
	}
}

func TestLLMErrorsWrapGeneration(t *testing.T) {
	for name, cm := range map[string]*fakeChatModel{
		"model":  {err: errors.New("rate limited")},
		"parser": {reply: "I cannot help with that"},
	} {
		gen, err := NewLLM(context.Background(), cm, LLMOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := gen.Breakdown(context.Background(), "x"); !errors.Is(err, ErrGeneration) {
			t.Fatalf("%s: expected ErrGeneration, got %v", name, err)
		}
	}
}
