package main

import (
	"fmt"
	"strings"
	"time"

	"codeindex/internal/core/ports"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type model struct {
	list       list.Model
	result     ports.IndexResult
	lastErr    error
	lastUpdate time.Time
	runs       int
}

// updateMsg carries one finished watch run into the UI.
type updateMsg struct {
	result ports.IndexResult
	err    error
	at     time.Time
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
	case updateMsg:
		m.lastUpdate = msg.at
		m.lastErr = msg.err
		if msg.err != nil {
			break
		}
		m.runs++
		m.result = msg.result
		m.list.SetItems(resultItems(msg.result))
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func resultItems(r ports.IndexResult) []list.Item {
	items := []list.Item{}
	for _, c := range r.Cycles {
		items = append(items, item{
			title: "Import cycle",
			desc:  strings.Join(c, " -> ") + " -> " + c[0],
		})
	}
	for _, f := range r.Failed {
		items = append(items, item{
			title: "Not parsed: " + f.Path,
			desc:  strings.TrimSpace(string(f.Status) + " " + f.Reason),
		})
	}
	for _, c := range r.StaleCandidates {
		items = append(items, item{
			title: "Stale: " + c.Path,
			desc:  fmt.Sprintf("score %.2f", c.Score),
		})
	}
	return items
}

func (m model) View() string {
	if m.runs == 0 && m.lastErr == nil {
		return docStyle.Render(titleStyle("Codebase Index Monitor") + "\n" + statusStyle.Render("Waiting for the first run..."))
	}

	status := statusStyle.Render(fmt.Sprintf("Last update: %v | snapshot v%d | %d files | %d nodes",
		m.lastUpdate.Format("15:04:05"), m.result.Version, m.result.Files, m.result.Nodes))

	var summary string
	switch {
	case m.lastErr != nil:
		summary = cycleStyle.Render("Last run failed: " + m.lastErr.Error())
	case len(m.result.Cycles) == 0 && len(m.result.Failed) == 0:
		summary = successStyle.Render("No cycles or parse failures")
	default:
		summary = fmt.Sprintf("%s | %s",
			cycleStyle.Render(fmt.Sprintf("%d Cycles", len(m.result.Cycles))),
			warnStyle.Render(fmt.Sprintf("%d Not parsed", len(m.result.Failed))))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Codebase Index Monitor"), status, summary)
	return docStyle.Render(header + "\n" + m.list.View())
}

func initialModel() model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Findings"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return model{list: l}
}
