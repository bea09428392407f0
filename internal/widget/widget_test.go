package widget

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/snapshot"
)

func sampleSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		Found: true,
		Habit: models.Habit{
			ID:         "h1",
			Name:       "Water",
			Kind:       models.HabitKindBuild,
			GoalTarget: 8,
			GoalUnit:   models.GoalUnitGlasses,
		},
		Variant:       goal.BuildQuantity,
		Today:         "2024-03-06",
		CurrentStreak: 2,
		LongestStreak: 5,
		TodayStatus:   goal.StatusIncomplete,
		TodayProgress: 4,
		TodayFraction: 0.5,
		Activity: []snapshot.Day{
			{Day: "2024-03-04", Outcome: goal.Success, Level: 4},
			{Day: "2024-03-05", Outcome: goal.Failed},
			{Day: "2024-03-06", Outcome: goal.Pending, Level: 2},
		},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		snap snapshot.Snapshot
		want []string
	}{
		{
			name: "quantity habit",
			snap: sampleSnapshot(),
			want: []string{"Water", "streak 2", "best 5", "4/8 glasses", "not done yet"},
		},
		{
			name: "missing habit",
			snap: snapshot.Snapshot{},
			want: []string{"habit not found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Render(tt.snap, Options{Width: 50, Plain: true})
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Render() missing %q in:\n%s", w, out)
				}
			}
		})
	}
}

func TestGridPlain(t *testing.T) {
	// 2024-03-04 is a Monday so the series starts in the first row.
	out := Grid(sampleSnapshot().Activity, true)
	lines := strings.Split(out, "\n")
	if len(lines) != 7 {
		t.Fatalf("Grid() rows = %d, want 7", len(lines))
	}
	if lines[0] != "#" {
		t.Errorf("monday cell = %q, want %q", lines[0], "#")
	}
	if lines[1] != "x" {
		t.Errorf("tuesday cell = %q, want %q", lines[1], "x")
	}
	if lines[2] != "+" {
		t.Errorf("wednesday cell = %q, want %q", lines[2], "+")
	}
}

func TestLine(t *testing.T) {
	s := sampleSnapshot()
	if got, want := Line(s), "○ Water 2 (4/8)"; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
	s.TodayStatus = goal.StatusMet
	if got := Line(s); !strings.HasPrefix(got, "✓") {
		t.Errorf("Line() = %q, want met marker", got)
	}
}

func TestModelUpdate(t *testing.T) {
	m := NewModel(nil, "", 30, nil)

	next, _ := m.Update(snapshotsMsg{snaps: []snapshot.Snapshot{sampleSnapshot()}})
	m = next.(Model)
	if len(m.snaps) != 1 {
		t.Fatalf("snaps = %d, want 1", len(m.snaps))
	}
	if !strings.Contains(m.View(), "Water") {
		t.Error("View() does not show the habit")
	}

	next, _ = m.Update(snapshotsMsg{err: errors.New("boom")})
	m = next.(Model)
	if m.err == nil || len(m.snaps) != 1 {
		t.Error("failed load should keep the last snapshots and record the error")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key did not quit")
	}
}
