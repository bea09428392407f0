package widget

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/snapshot"
)

const loadTimeout = 5 * time.Second

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Refresh, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

func defaultKeyMap() keyMap {
	return keyMap{
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

type snapshotsMsg struct {
	snaps []snapshot.Snapshot
	err   error
	at    time.Time
}

type storeChangedMsg struct{}

type tickMsg time.Time

// Model is a live widget. It re-reads snapshots when the store file changes, on
// a slow tick so the day rolls over, and on demand.
type Model struct {
	provider *snapshot.Provider
	habitID  string
	days     int
	changes  <-chan struct{}
	tick     time.Duration

	snaps   []snapshot.Snapshot
	err     error
	updated time.Time
	width   int
	keys    keyMap
	help    help.Model
}

// NewModel builds a widget for one habit, or for every habit when habitID is
// empty. changes may be nil.
func NewModel(p *snapshot.Provider, habitID string, days int, changes <-chan struct{}) Model {
	return Model{
		provider: p,
		habitID:  habitID,
		days:     days,
		changes:  changes,
		tick:     time.Minute,
		width:    40,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange(), m.nextTick())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		snaps, err := Load(ctx, m.provider, m.habitID, m.days)
		return snapshotsMsg{snaps: snaps, err: err, at: time.Now()}
	}
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-m.changes; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func (m Model) nextTick() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.load()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		m.help.Width = msg.Width
	case snapshotsMsg:
		if msg.err != nil {
			logger.Warn("Widget snapshot failed", "error", msg.err)
			m.err = msg.err
			return m, nil
		}
		m.snaps, m.err, m.updated = msg.snaps, nil, msg.at
	case storeChangedMsg:
		return m, tea.Batch(m.load(), m.waitForChange())
	case tickMsg:
		return m, tea.Batch(m.load(), m.nextTick())
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(failedStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if len(m.snaps) == 0 && m.err == nil {
		b.WriteString(mutedStyle.Render("no habits yet"))
		b.WriteString("\n")
	}
	for _, s := range m.snaps {
		b.WriteString(Render(s, Options{Width: m.width}))
		b.WriteString("\n")
	}
	footer := m.help.View(m.keys)
	if !m.updated.IsZero() {
		footer = mutedStyle.Render("updated "+m.updated.Format("15:04:05")) + "  " + footer
	}
	b.WriteString(footer)
	return b.String()
}

// Load returns one snapshot, or all of them when habitID is empty.
func Load(ctx context.Context, p *snapshot.Provider, habitID string, days int) ([]snapshot.Snapshot, error) {
	if habitID == "" {
		return p.All(ctx, days)
	}
	s, err := p.Snapshot(ctx, habitID, days)
	if err != nil {
		return nil, err
	}
	return []snapshot.Snapshot{s}, nil
}
