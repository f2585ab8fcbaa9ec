package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Report output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// csvHeader is the column order of WriteCSV.
var csvHeader = []string{"url", "depth", "state", "status_code", "error_type", "local_path", "bytes", "referrer"}

// Write renders rep in the named format.
func Write(w io.Writer, format string, rep *Report) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatCSV:
		return WriteCSV(w, rep.Items)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteAll renders the reports of a bulk sync: a JSON array, or one CSV
// table holding the items of every report. Nil reports are skipped.
func WriteAll(w io.Writer, format string, reps []*Report) error {
	present := make([]*Report, 0, len(reps))
	for _, rep := range reps {
		if rep != nil {
			present = append(present, rep)
		}
	}

	switch format {
	case FormatJSON:
		out := make([]Report, 0, len(present))
		for _, rep := range present {
			r := *rep
			if r.Items == nil {
				r.Items = []ItemResult{}
			}
			out = append(out, r)
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write json output: %w", err)
		}
		return nil
	case FormatCSV:
		var items []ItemResult
		for _, rep := range present {
			items = append(items, rep.Items...)
		}
		return WriteCSV(w, items)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the report as indented JSON. URLs are not HTML-escaped.
func WriteJSON(w io.Writer, rep *Report) error {
	out := *rep
	if out.Items == nil {
		out.Items = []ItemResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes one row per item. The header row is always present.
func WriteCSV(w io.Writer, items []ItemResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.URL,
			strconv.Itoa(item.Depth),
			item.State,
			statusCodeStr(item.StatusCode),
			string(item.ErrorCategory),
			item.LocalPath,
			strconv.Itoa(item.Bytes),
			item.Referrer,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record for %s: %w", item.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// statusCodeStr converts an HTTP status code to a string.
// Returns empty string for 0 (no HTTP status).
func statusCodeStr(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
