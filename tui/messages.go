package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linksync/crawler"
	"github.com/lukemcguire/linksync/result"
)

// SyncProgressMsg carries the session counters after one item settled.
type SyncProgressMsg struct {
	Fetched    int
	Errored    int
	Discovered int
	InFlight   int
	Written    int64
	URL        string
}

// SyncDoneMsg signals the sync has finished.
type SyncDoneMsg struct {
	Report *result.Report
	Err    error
}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. A closed channel yields no message; the report arrives through
// startSync.
func waitForProgress(ch <-chan crawler.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return SyncProgressMsg{
			Fetched:    evt.Fetched,
			Errored:    evt.Errored,
			Discovered: evt.Discovered,
			InFlight:   evt.InFlight,
			Written:    evt.Written,
			URL:        evt.URL,
		}
	}
}
