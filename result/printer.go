package result

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// PrintReport writes failed item details and a summary to w.
func PrintReport(w io.Writer, rep *Report) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	failed := rep.Failed()
	if len(failed) > 0 {
		writef("Failed:\n")
		for i, item := range failed {
			writef("  URL: %s\n", item.URL)
			if item.Error != "" {
				writef("  Error: %s\n", item.Error)
			} else {
				writef("  Status: %d\n", item.StatusCode)
			}
			if item.Referrer != "" {
				writef("  Found on: %s\n", item.Referrer)
			}
			if i < len(failed)-1 {
				writef("\n")
			}
		}
	}

	label := rep.SeedURL
	if rep.LinkID != "" {
		label = fmt.Sprintf("link %s (%s)", rep.LinkID, rep.SeedURL)
	}
	writef("Sync of %s %s: %d fetched, %d failed, %s written in %s\n",
		label, rep.Outcome,
		rep.Stats.Fetched, rep.Stats.Errored,
		humanize.Bytes(uint64(max(rep.Stats.Bytes, 0))),
		rep.Stats.Duration.Round(time.Millisecond))
	if rep.Stats.Discarded > 0 {
		writef("%d queued URLs discarded\n", rep.Stats.Discarded)
	}
}
