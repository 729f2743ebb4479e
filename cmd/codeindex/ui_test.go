package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"codeindex/internal/core/ports"
	"codeindex/internal/engine/parser"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModelAppliesUpdates(t *testing.T) {
	m := initialModel()
	if !strings.Contains(m.View(), "Waiting for the first run") {
		t.Fatalf("expected waiting view, got %q", m.View())
	}

	sized, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	updated, _ := sized.(model).Update(updateMsg{
		at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		result: ports.IndexResult{
			Version:         3,
			Files:           4,
			Cycles:          [][]string{{"a.py", "b.py"}},
			Failed:          []ports.FileFailure{{Path: "broken.py", Status: parser.StatusFailed, Reason: "syntax error"}},
			StaleCandidates: []ports.StaleCandidate{{Path: "old.py", Score: 0.9}},
		},
	})
	state := updated.(model)
	if got := len(state.list.Items()); got != 3 {
		t.Fatalf("expected 3 items, got %d", got)
	}
	first := state.list.Items()[0].(item)
	if first.desc != "a.py -> b.py -> a.py" {
		t.Fatalf("unexpected cycle description %q", first.desc)
	}
	if view := state.View(); !strings.Contains(view, "snapshot v3") || !strings.Contains(view, "1 Cycles") {
		t.Fatalf("unexpected view %q", view)
	}
}

func TestModelKeepsFindingsOnFailedRun(t *testing.T) {
	sized, _ := initialModel().Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	updated, _ := sized.(model).Update(updateMsg{result: ports.IndexResult{Version: 1, Cycles: [][]string{{"a.py", "b.py"}}}})
	updated, _ = updated.(model).Update(updateMsg{err: errors.New("disk full")})
	state := updated.(model)

	if got := len(state.list.Items()); got != 1 {
		t.Fatalf("expected previous findings to stay, got %d items", got)
	}
	if !strings.Contains(state.View(), "disk full") {
		t.Fatalf("expected failure in view, got %q", state.View())
	}
}

func TestModelQuits(t *testing.T) {
	m := initialModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}
