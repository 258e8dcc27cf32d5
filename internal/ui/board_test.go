package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"taskarchitect/internal/board"
	"taskarchitect/internal/domain"
	"taskarchitect/internal/logging"
)

type memStore struct {
	tasks  []domain.Task
	seq    int
	failOn string
}

func (s *memStore) next(title string, ai bool) domain.Task {
	s.seq++
	return domain.Task{ID: fmt.Sprintf("t%d", s.seq), Title: title, IsAIGenerated: ai}
}

func (s *memStore) ListTasks(context.Context) ([]domain.Task, error) {
	return append([]domain.Task(nil), s.tasks...), nil
}

func (s *memStore) CreateTask(_ context.Context, title string) (domain.Task, error) {
	if s.failOn == "create" {
		return domain.Task{}, errors.New("boom")
	}
	t := s.next(title, false)
	s.tasks = append([]domain.Task{t}, s.tasks...)
	return t, nil
}

func (s *memStore) SetCompleted(_ context.Context, id string, completed bool) (domain.Task, error) {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Completed = completed
			return s.tasks[i], nil
		}
	}
	return domain.Task{}, errors.New("not found")
}

func (s *memStore) DeleteTask(_ context.Context, id string) error {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (s *memStore) GenerateTasks(_ context.Context, prompt string) ([]domain.Task, error) {
	if s.failOn == "generate" {
		return nil, errors.New("llm down")
	}
	out := []domain.Task{s.next("Plan "+prompt, true), s.next("Review "+prompt, true)}
	s.tasks = append(append([]domain.Task(nil), out...), s.tasks...)
	return out, nil
}

func newModel(t *testing.T, store *memStore) BoardModel {
	t.Helper()
	b := board.New(store, logging.Discard())
	m := NewBoardModel(context.Background(), b, "")
	return run(t, m, m.Init())
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and executes the board command it yields, if any.
func press(t *testing.T, m BoardModel, k string) BoardModel {
	t.Helper()
	next, cmd := m.Update(key(k))
	return run(t, next.(BoardModel), cmd)
}

// send delivers a key and drops the resulting command. Used for keys whose
// only command is the cursor blink.
func send(m BoardModel, k string) BoardModel {
	next, _ := m.Update(key(k))
	return next.(BoardModel)
}

func run(t *testing.T, m BoardModel, cmd tea.Cmd) BoardModel {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	var msgs []tea.Msg
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				msgs = append(msgs, c())
			}
		}
	} else {
		msgs = append(msgs, msg)
	}
	for _, msg := range msgs {
		switch msg.(type) {
		case MsgLoaded, MsgMutated, MsgGenerated:
			next, _ := m.Update(msg)
			m = next.(BoardModel)
		}
	}
	return m
}

func TestBoardModelAddToggleDelete(t *testing.T) {
	store := &memStore{}
	m := newModel(t, store)

	m = send(m, "a")
	if m.mode != modeAdd {
		t.Fatalf("mode = %v, want add", m.mode)
	}
	m = send(m, "buy milk")
	if got := m.Board.Snapshot().Draft; got != "buy milk" {
		t.Fatalf("draft = %q", got)
	}
	m = press(t, m, "enter")
	tasks := m.Board.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if m.mode != modeList || m.Board.Snapshot().Draft != "" {
		t.Fatalf("input not reset: mode=%v draft=%q", m.mode, m.Board.Snapshot().Draft)
	}

	m = press(t, m, " ")
	if !m.Board.Tasks()[0].Completed {
		t.Fatal("expected task completed after space")
	}
	if st := m.Board.Stats(); st.Completed != 1 || st.Percent != 100 {
		t.Fatalf("stats = %+v", st)
	}
	if !strings.Contains(m.View(), "1 / 1 tasks completed (100%)") {
		t.Fatalf("view missing progress:\n%s", m.View())
	}

	m = press(t, m, "x")
	if m.Board.Tasks()[0].Completed {
		t.Fatal("expected task pending after x")
	}

	m = press(t, m, "d")
	if n := len(m.Board.Tasks()); n != 0 {
		t.Fatalf("tasks after delete = %d", n)
	}
	if m.cursor != 0 {
		t.Fatalf("cursor = %d", m.cursor)
	}
}

func TestBoardModelBlankAddIsIgnored(t *testing.T) {
	m := newModel(t, &memStore{})
	m = send(m, "a")
	m = send(m, "   ")
	m = press(t, m, "enter")
	if len(m.Board.Tasks()) != 0 {
		t.Fatal("blank title should not create a task")
	}
	if m.mode != modeAdd {
		t.Fatalf("mode = %v, want add", m.mode)
	}
	m = press(t, m, "esc")
	if m.mode != modeList {
		t.Fatalf("esc should return to list, mode = %v", m.mode)
	}
}

func TestBoardModelGenerate(t *testing.T) {
	store := &memStore{}
	store.tasks = []domain.Task{{ID: "old", Title: "existing"}}
	m := newModel(t, store)

	m = send(m, "g")
	if m.mode != modePrompt || !m.Board.Snapshot().PromptVisible {
		t.Fatal("prompt form should be visible")
	}
	m = send(m, "trip")
	m = press(t, m, "enter")

	tasks := m.Board.Tasks()
	if len(tasks) != 3 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Title != "Plan trip" || tasks[1].Title != "Review trip" || tasks[2].ID != "old" {
		t.Fatalf("order = %+v", tasks)
	}
	state := m.Board.Snapshot()
	if state.PromptVisible || state.Prompt != "" || state.Generating {
		t.Fatalf("prompt state not reset: %+v", state)
	}
	if m.mode != modeList {
		t.Fatalf("mode = %v", m.mode)
	}
	if !strings.Contains(m.View(), "AI") {
		t.Fatal("view should badge generated tasks")
	}
}

func TestBoardModelGenerateFailureKeepsPrompt(t *testing.T) {
	store := &memStore{failOn: "generate"}
	m := newModel(t, store)
	m = send(m, "g")
	m = send(m, "party")
	m = press(t, m, "enter")

	state := m.Board.Snapshot()
	if !state.PromptVisible || state.Prompt != "party" || state.Generating {
		t.Fatalf("state = %+v", state)
	}
	if m.status == "" || !strings.Contains(m.View(), m.status) {
		t.Fatal("expected failure status in view")
	}

	m = press(t, m, "esc")
	if m.Board.Snapshot().PromptVisible || m.Board.Snapshot().Prompt != "" {
		t.Fatal("esc should discard the prompt")
	}
}

func TestBoardModelCursor(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: "a", Title: "one"}, {ID: "b", Title: "two"}}}
	m := newModel(t, store)
	m = press(t, m, "down")
	m = press(t, m, "j")
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want clamp at 1", m.cursor)
	}
	m = press(t, m, " ")
	if got := m.Board.Tasks(); got[0].Completed || !got[1].Completed {
		t.Fatalf("toggled wrong task: %+v", got)
	}
	m = press(t, m, "k")
	if m.cursor != 0 {
		t.Fatalf("cursor = %d", m.cursor)
	}
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
}
