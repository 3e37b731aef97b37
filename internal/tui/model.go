package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alesut/pixel-agents/internal/session"
	"github.com/alesut/pixel-agents/internal/ws"
)

const (
	retryDelay     = 2 * time.Second
	healthInterval = 5 * time.Second
	actionTimeout  = 10 * time.Second
)

// --- Bubble Tea messages ---

type eventMsg struct{ ev session.Event }

type feedErrMsg struct{ err error }

type retryMsg struct{}

type healthMsg struct {
	health ws.HealthPayload
	err    error
}

type healthTickMsg struct{}

type actionMsg struct {
	name string
	err  error
}

// Model is the root Bubble Tea model of the dashboard.
type Model struct {
	feed   Feed
	ctx    context.Context
	cancel context.CancelFunc

	keys KeyMap
	help help.Model

	width  int
	height int

	view     *session.View
	selected int

	connected bool
	lastErr   error
	health    ws.HealthPayload
	hasHealth bool
	notice    string
}

func New(feed Feed) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		feed:   feed,
		ctx:    ctx,
		cancel: cancel,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		view:   session.NewView(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.next(), m.fetchHealth())
}

func (m Model) next() tea.Cmd {
	return func() tea.Msg {
		ev, err := m.feed.Next(m.ctx)
		if err != nil {
			return feedErrMsg{err: err}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, actionTimeout)
		defer cancel()
		h, err := m.feed.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func (m Model) action(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, actionTimeout)
		defer cancel()
		return actionMsg{name: name, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.connected = true
		m.lastErr = nil
		m.view.Apply(msg.ev)
		m.clampSelection()
		return m, m.next()

	case feedErrMsg:
		m.connected = false
		m.lastErr = msg.err
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, tea.Tick(retryDelay, func(time.Time) tea.Msg { return retryMsg{} })

	case retryMsg:
		return m, m.next()

	case healthMsg:
		if msg.err == nil {
			m.health = msg.health
			m.hasHealth = true
		}
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })

	case healthTickMsg:
		return m, m.fetchHealth()

	case actionMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.name, msg.err)
		} else {
			m.notice = msg.name + " requested"
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.feed.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if n := len(m.view.AgentIDs()); n > 0 {
			m.selected = (m.selected + 1) % n
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if n := len(m.view.AgentIDs()); n > 0 {
			m.selected = (m.selected - 1 + n) % n
		}
		return m, nil

	case key.Matches(msg, m.keys.Rescan):
		return m, m.action("rescan", m.feed.Rescan)

	case key.Matches(msg, m.keys.Resync):
		return m, m.action("resync", m.feed.Resync)
	}

	return m, nil
}

func (m *Model) clampSelection() {
	n := len(m.view.AgentIDs())
	if m.selected >= n {
		m.selected = max(n-1, 0)
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderStatusBar(),
		m.renderAgents(),
	}
	if m.notice != "" {
		sections = append(sections, styleDimmed.Render("  "+m.notice))
	}
	sections = append(sections, "  "+m.help.ShortHelpView(m.keys.ShortHelp()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatusBar() string {
	width := max(m.width, 40)

	var connStr string
	if m.connected {
		connStr = lipgloss.NewStyle().Foreground(colorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(colorDanger).Render("○ Connecting...")
	}

	ids := m.view.AgentIDs()
	active := 0
	for _, id := range ids {
		if a, _ := m.view.Agent(id); a.Status == session.Active {
			active++
		}
	}

	parts := []string{connStr, fmt.Sprintf("%d agents  %d active", len(ids), active)}
	if m.hasHealth {
		parts = append(parts,
			lipgloss.NewStyle().Foreground(healthColor(m.health.Status)).Render(string(m.health.Status)),
			fmt.Sprintf("%d codex processes", len(m.health.Processes)),
		)
	}
	sep := lipgloss.NewStyle().Foreground(colorBorder).Render(" | ")

	return styleBar.Width(width).Render(strings.Join(parts, sep))
}

func (m Model) renderAgents() string {
	lines := []string{styleHeader.Render("=== AGENTS " + strings.Repeat("=", 40))}

	ids := m.view.AgentIDs()
	if len(ids) == 0 {
		msg := "  No sessions detected"
		if m.lastErr != nil {
			msg += " (" + m.lastErr.Error() + ")"
		}
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, styleDimmed.Render(msg))...)
	}

	for i, id := range ids {
		a, _ := m.view.Agent(id)

		prefix := "  "
		name := fmt.Sprintf("Agent %d", id)
		if i == m.selected {
			prefix = "> "
			name = styleSelected.Render(name)
		}
		status := lipgloss.NewStyle().Foreground(statusColor(a.Status)).Render(a.Status.String())
		lines = append(lines, fmt.Sprintf("%s%s %s  %s", prefix, statusGlyph(a.Status), name, status))

		for _, t := range a.ActiveTools {
			lines = append(lines, styleDimmed.Render("      "+t.StatusText))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
