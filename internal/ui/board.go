// Package ui renders the interactive task board.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskarchitect/internal/board"
)

type inputMode int

const (
	modeList inputMode = iota
	modeAdd
	modePrompt
)

// Messages produced by the board commands.
type (
	MsgLoaded    struct{ Err error }
	MsgMutated   struct{ Err error }
	MsgGenerated struct{ Err error }
)

// BoardModel is the bubbletea model over a board.Board.
type BoardModel struct {
	Board   *board.Board
	Ctx     context.Context
	Title   string
	Input   textinput.Model
	Spinner spinner.Model
	Bar     progress.Model

	cursor int
	mode   inputMode
	status string
	width  int
}

// NewBoardModel creates the model. Init loads the task list.
func NewBoardModel(ctx context.Context, b *board.Board, title string) BoardModel {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StylePrimary

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage())

	if title == "" {
		title = "Task Architect"
	}
	return BoardModel{
		Board:   b,
		Ctx:     ctx,
		Title:   title,
		Input:   ti,
		Spinner: s,
		Bar:     bar,
		width:   80,
	}
}

// RunBoard starts the TUI and blocks until the user quits.
func RunBoard(ctx context.Context, b *board.Board, title string) error {
	p := tea.NewProgram(NewBoardModel(ctx, b, title), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (m BoardModel) Init() tea.Cmd {
	return m.load()
}

func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case MsgLoaded:
		m.report(msg.Err)
		m.clampCursor()
		return m, nil

	case MsgMutated:
		m.report(msg.Err)
		m.clampCursor()
		return m, nil

	case MsgGenerated:
		m.report(msg.Err)
		if msg.Err == nil {
			m.mode = modeList
			m.Input.Reset()
			m.Input.Blur()
			m.cursor = 0
		}
		return m, nil

	case spinner.TickMsg:
		if !m.Board.Generating() {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.mode == modeList {
			return m.updateList(msg)
		}
		return m.updateInput(msg)
	}

	if m.mode != modeList {
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m BoardModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tasks := m.Board.Tasks()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(tasks)-1 {
			m.cursor++
		}
	case " ", "space", "x":
		if m.cursor < len(tasks) {
			return m, m.toggle(tasks[m.cursor].ID)
		}
	case "d":
		if m.cursor < len(tasks) {
			return m, m.remove(tasks[m.cursor].ID)
		}
	case "r":
		return m, m.load()
	case "a":
		m.mode = modeAdd
		m.Input.Placeholder = "What needs to be done?"
		m.Input.SetValue(m.Board.Snapshot().Draft)
		return m, m.Input.Focus()
	case "g":
		m.Board.ShowPrompt()
		m.mode = modePrompt
		m.Input.Placeholder = "Describe a goal, e.g. plan a birthday party"
		m.Input.SetValue(m.Board.Snapshot().Prompt)
		return m, m.Input.Focus()
	}
	return m, nil
}

func (m BoardModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.mode == modePrompt {
			if m.Board.Generating() {
				return m, nil
			}
			m.Board.CancelPrompt()
		}
		m.mode = modeList
		m.Input.Reset()
		m.Input.Blur()
		return m, nil
	case "enter":
		value := m.Input.Value()
		if strings.TrimSpace(value) == "" {
			return m, nil
		}
		if m.mode == modeAdd {
			m.mode = modeList
			m.Input.Reset()
			m.Input.Blur()
			m.cursor = 0
			return m, m.add(value)
		}
		if m.Board.Generating() {
			return m, nil
		}
		return m, tea.Batch(m.generate(value), m.Spinner.Tick)
	}
	if m.mode == modePrompt && m.Board.Generating() {
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	if m.mode == modeAdd {
		m.Board.SetDraft(m.Input.Value())
	} else {
		m.Board.SetPrompt(m.Input.Value())
	}
	return m, cmd
}

func (m BoardModel) load() tea.Cmd {
	b, ctx := m.Board, m.Ctx
	return func() tea.Msg {
		return MsgLoaded{Err: b.Load(ctx)}
	}
}

func (m BoardModel) add(title string) tea.Cmd {
	b, ctx := m.Board, m.Ctx
	return func() tea.Msg {
		return MsgMutated{Err: b.AddManual(ctx, title)}
	}
}

func (m BoardModel) toggle(id string) tea.Cmd {
	b, ctx := m.Board, m.Ctx
	return func() tea.Msg {
		return MsgMutated{Err: b.ToggleCompletion(ctx, id)}
	}
}

func (m BoardModel) remove(id string) tea.Cmd {
	b, ctx := m.Board, m.Ctx
	return func() tea.Msg {
		return MsgMutated{Err: b.Delete(ctx, id)}
	}
}

func (m BoardModel) generate(prompt string) tea.Cmd {
	b, ctx := m.Board, m.Ctx
	return func() tea.Msg {
		return MsgGenerated{Err: b.Generate(ctx, prompt)}
	}
}

// report keeps a one-line status. Details are in the board log.
func (m *BoardModel) report(err error) {
	switch {
	case err == nil:
		m.status = ""
	case errors.Is(err, board.ErrGenerating):
		m.status = "generation already in progress"
	default:
		m.status = "request failed, see log"
	}
}

func (m *BoardModel) clampCursor() {
	n := len(m.Board.Tasks())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m BoardModel) View() string {
	state := m.Board.Snapshot()
	var s strings.Builder

	s.WriteString(StyleHeader.Render(m.Title))
	s.WriteString("\n\n")

	s.WriteString(m.Bar.ViewAs(state.Stats.Percent / 100))
	s.WriteString("\n")
	s.WriteString(StyleSubtle.Render(fmt.Sprintf("%d / %d tasks completed (%.0f%%)",
		state.Stats.Completed, state.Stats.Total, state.Stats.Percent)))
	s.WriteString("\n\n")

	if len(state.Tasks) == 0 {
		s.WriteString(StyleSubtle.Render("No tasks yet. Press a to add one or g to generate a plan."))
		s.WriteString("\n")
	}
	for i, t := range state.Tasks {
		pointer := "  "
		if i == m.cursor && m.mode == modeList {
			pointer = StyleCursor.Render("> ")
		}
		check := "[ ]"
		title := StyleText.Render(t.Title)
		if t.Completed {
			check = StyleSuccess.Render("[x]")
			title = StyleDone.Render(t.Title)
		}
		line := pointer + check + " " + title
		if t.IsAIGenerated {
			line += " " + StyleBadge.Render("AI")
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	s.WriteString("\n")

	switch m.mode {
	case modeAdd:
		s.WriteString(StyleInputBox.Render(m.Input.View()))
		s.WriteString("\n")
		s.WriteString(StyleSubtle.Render("enter add • esc cancel"))
	case modePrompt:
		s.WriteString(StylePromptBox.Render(m.Input.View()))
		s.WriteString("\n")
		if state.Generating {
			s.WriteString(m.Spinner.View() + StylePrimary.Render(" Generating tasks..."))
		} else {
			s.WriteString(StyleSubtle.Render("enter generate • esc cancel"))
		}
	default:
		s.WriteString(StyleSubtle.Render("a add • g magic add • space toggle • d delete • r reload • q quit"))
	}
	s.WriteString("\n")

	if m.status != "" {
		s.WriteString(StyleError.Render(m.status))
		s.WriteString("\n")
	}
	return s.String()
}
