// Package tui provides the Bubble Tea terminal UI for linksync, displaying
// live mirror progress and a styled summary of the session report.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/lukemcguire/linksync/crawler"
	"github.com/lukemcguire/linksync/result"
)

// RunFunc performs the sync the model displays.
type RunFunc func(ctx context.Context) (*result.Report, error)

// Model is the Bubble Tea model for the sync TUI.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	label      string
	run        RunFunc
	spinner    spinner.Model
	progressCh <-chan crawler.Event

	fetched    int
	errored    int
	discovered int
	written    int64
	current    string
	quitting   bool
	done       bool
	report     *result.Report
	err        error
	width      int
}

// NewModel creates a TUI model that runs run and follows progressCh. label
// names the sync in the progress line. cancel is invoked when the user quits.
func NewModel(ctx context.Context, cancel context.CancelFunc, label string, run RunFunc, progressCh <-chan crawler.Event) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:        ctx,
		cancel:     cancel,
		label:      label,
		run:        run,
		spinner:    spin,
		progressCh: progressCh,
	}
}

// Init starts the spinner, sync, and progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startSync(), waitForProgress(m.progressCh))
}

// startSync returns a tea.Cmd that runs the sync and sends SyncDoneMsg.
func (m Model) startSync() tea.Cmd {
	return func() tea.Msg {
		rep, err := m.run(m.ctx)
		if err != nil {
			err = fmt.Errorf("sync: %w", err)
		}
		return SyncDoneMsg{Report: rep, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The session aborts and the summary arrives with SyncDoneMsg.
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case SyncProgressMsg:
		m.fetched = msg.Fetched
		m.errored = msg.Errored
		m.discovered = msg.Discovered
		m.written = msg.Written
		m.current = msg.URL
		return m, waitForProgress(m.progressCh)

	case SyncDoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done && m.report != nil {
		return RenderSummary(m.report)
	}
	if m.done && m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	verb := "Syncing"
	if m.quitting {
		verb = "Stopping"
	}
	return fmt.Sprintf("%s %s %s... fetched %d of %d, failed %d, %s written\n%s\n",
		m.spinner.View(), verb, m.label, m.fetched, m.discovered, m.errored,
		humanize.Bytes(uint64(m.written)),
		dimStyle.Render("  "+m.current))
}

// HasFailures reports whether any item of the sync errored.
func (m Model) HasFailures() bool {
	return m.report != nil && m.report.Stats.Errored > 0
}

// GetReport returns the session report for output formatting.
func (m Model) GetReport() *result.Report {
	return m.report
}

// Err returns the error that prevented the sync from running, if any.
func (m Model) Err() error {
	return m.err
}
