package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/teemow/calbridge/internal/aggregate"
	"github.com/teemow/calbridge/internal/event"
)

// Layouts accepted for --start, --end, --from and --to, most specific first.
// Values without an offset are read in the local zone; bare dates are UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const dateLayout = "2006-01-02"

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	for i, layout := range timeLayouts {
		loc := time.Local
		if i == 0 {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time, use RFC 3339 or YYYY-MM-DD", value)
}

// backendResult is the printable form of one aggregate.Result.
type backendResult struct {
	Source event.Source `json:"source"`
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
}

type reportOutput struct {
	Operation string          `json:"operation"`
	Outcome   string          `json:"outcome"`
	Backends  []backendResult `json:"backends"`
	Events    []event.Event   `json:"events,omitempty"`
}

func summarize[T any](report aggregate.Report[T]) reportOutput {
	out := reportOutput{
		Operation: report.Operation,
		Outcome:   report.Outcome(),
		Backends:  make([]backendResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		br := backendResult{Source: res.Source, OK: res.OK()}
		if res.Err != nil {
			br.Error = res.Err.Error()
		}
		out.Backends = append(out.Backends, br)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
