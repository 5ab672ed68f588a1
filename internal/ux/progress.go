package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"tickerlab/internal/engine"
	"tickerlab/internal/pipeline"
)

// StageMsg carries one engine status change into the program.
type StageMsg engine.Run

// DoneMsg signals that the workflow goroutine finished.
type DoneMsg struct {
	Err error
}

// StageOrder returns the engine ids a variant displays, in execution order.
func StageOrder(v pipeline.Variant) []string {
	switch v {
	case pipeline.VariantDeep:
		order := []string{engine.IDPlanner, engine.IDLibrarian}
		for _, spec := range engine.Specialists() {
			order = append(order, spec.ID)
		}
		return append(order, engine.IDSynthesizer)
	case pipeline.VariantComparison:
		return []string{engine.IDComparisonA, engine.IDComparisonB, engine.IDComparator}
	case pipeline.VariantUpdate:
		return []string{engine.IDSentinel, engine.IDSynthesizer}
	default:
		return []string{engine.IDComprehensive}
	}
}

// VariantFor mirrors the orchestrator's workflow selection so the
// progress view can lay out its rows before the run starts.
func VariantFor(subject string, deep bool) pipeline.Variant {
	if deep {
		return pipeline.VariantDeep
	}
	if _, _, ok := pipeline.ParseComparison(subject); ok {
		return pipeline.VariantComparison
	}
	return pipeline.VariantQuick
}

// ProgressModel is the live status board for one workflow run. Stage
// updates arrive over the events channel; the model quits on DoneMsg or
// user interrupt.
type ProgressModel struct {
	title   string
	order   []string
	runs    map[string]engine.Run
	spinner spinner.Model
	events  <-chan tea.Msg
	started time.Time

	done        bool
	failed      bool
	interrupted bool
}

// NewProgress builds the status board for the given stages.
func NewProgress(title string, order []string, events <-chan tea.Msg) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = warnStyle
	runs := make(map[string]engine.Run, len(order))
	for _, id := range order {
		runs[id] = engine.Run{EngineID: id, Status: engine.StatusIdle}
	}
	return ProgressModel{
		title:   title,
		order:   order,
		runs:    runs,
		spinner: s,
		events:  events,
		started: time.Now(),
	}
}

// Interrupted reports whether the user aborted before completion.
func (m ProgressModel) Interrupted() bool { return m.interrupted }

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StageMsg:
		m.runs[msg.EngineID] = engine.Run(msg)
		return m, waitForEvent(m.events)

	case DoneMsg:
		m.done = true
		m.failed = msg.Err != nil
		return m, tea.Quit
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, id := range m.order {
		run := m.runs[id]
		name := engine.MustByID(id).Name
		switch run.Status {
		case engine.StatusLoading:
			fmt.Fprintf(&b, " %s %s\n", m.spinner.View(), name)
		case engine.StatusSuccess:
			line := fmt.Sprintf(" %s %s", successStyle.Render("✔"), name)
			if run.TokenUsage.TotalTokens > 0 {
				line += mutedStyle.Render(fmt.Sprintf("  %d tokens", run.TokenUsage.TotalTokens))
			}
			b.WriteString(line + "\n")
		case engine.StatusError:
			fmt.Fprintf(&b, " %s %s  %s\n", errorStyle.Render("✖"), name, mutedStyle.Render(truncate(run.ErrorMessage, 60)))
		default:
			fmt.Fprintf(&b, " %s %s\n", mutedStyle.Render("○"), mutedStyle.Render(name))
		}
	}

	b.WriteString("\n")
	elapsed := time.Since(m.started).Round(time.Second)
	if m.done {
		if m.failed {
			b.WriteString(errorStyle.Render(fmt.Sprintf("aborted after %s", elapsed)))
		} else {
			b.WriteString(successStyle.Render(fmt.Sprintf("completed in %s", elapsed)))
		}
	} else {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%s elapsed · ctrl+c to abort", elapsed)))
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
