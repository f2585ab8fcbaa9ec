package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/lukemcguire/linksync/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// categoryOrder defines the display order for error categories (most to least actionable).
var categoryOrder = []result.ErrorCategory{
	result.Category4xx,
	result.Category5xx,
	result.CategoryIO,
	result.CategoryTimeout,
	result.CategoryDNSFailure,
	result.CategoryConnectionRefused,
	result.CategoryRedirectLoop,
	result.CategoryTooLarge,
	result.CategoryRobots,
	result.CategoryUnknown,
}

// RenderSummary produces a Lip Gloss styled summary of a sync report.
func RenderSummary(rep *result.Report) string {
	if rep == nil {
		return errorStyle.Render("No report available.")
	}

	var builder strings.Builder
	elapsed := rep.Stats.Duration.Round(time.Millisecond)
	written := humanize.Bytes(uint64(rep.Stats.Bytes))

	if rep.Outcome == result.OutcomeAborted {
		builder.WriteString(warnStyle.Render(fmt.Sprintf(
			"Sync aborted: %d queued URLs discarded", rep.Stats.Discarded)))
		builder.WriteString("\n")
	}

	failed := rep.Failed()
	if len(failed) == 0 {
		builder.WriteString(successStyle.Render(fmt.Sprintf("Mirrored %d resources", rep.Stats.Fetched)))
		builder.WriteString("\n")
		builder.WriteString(dimStyle.Render(fmt.Sprintf("%s written in %s", written, elapsed)))
		builder.WriteString("\n")
		return builder.String()
	}

	// Group failed items by error category
	grouped := make(map[result.ErrorCategory][]result.ItemResult)
	for _, item := range failed {
		cat := item.ErrorCategory
		if cat == "" {
			cat = result.CategoryUnknown
		}
		grouped[cat] = append(grouped[cat], item)
	}

	for _, cat := range categoryOrder {
		items, exists := grouped[cat]
		if !exists || len(items) == 0 {
			continue
		}

		builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", result.FormatCategory(cat), len(items))))
		builder.WriteString("\n")

		rows := make([][]string, 0, len(items))
		for _, item := range items {
			status := strconv.Itoa(item.StatusCode)
			if item.Error != "" {
				status = item.Error
			}
			rows = append(rows, []string{item.URL, status, item.Referrer})
		}

		catTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("URL", "Error", "Found On").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 1 {
					return statusErrorStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		builder.WriteString(catTable.Render())
		builder.WriteString("\n\n")
	}

	builder.WriteString(titleStyle.Render(fmt.Sprintf(
		"%d of %d items failed; %d mirrored, %s written (%s)",
		len(failed), len(rep.Items), rep.Stats.Fetched, written, elapsed,
	)))
	builder.WriteString("\n")

	return builder.String()
}
