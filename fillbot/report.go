package fillbot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
)

// Report is the outcome of one run. Filled+Skipped+Failed equals the number
// of outcomes.
type Report struct {
	RunID      string        `json:"runId"`
	URL        string        `json:"url,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Outcomes   []FillOutcome `json:"outcomes"`
	Filled     int           `json:"filled"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
}

// NewReport starts a report with a fresh run id.
func NewReport(url string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		URL:       url,
		StartedAt: time.Now(),
	}
}

// Add records one outcome and updates the counts.
func (r *Report) Add(o FillOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusFilled:
		r.Filled++
	case StatusFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
}

func (r *Report) Total() int {
	return len(r.Outcomes)
}

// RequiredSkipped lists required fields that were not filled.
func (r *Report) RequiredSkipped() []FillOutcome {
	var out []FillOutcome
	for _, o := range r.Outcomes {
		if o.Field.Required && o.Status != StatusFilled {
			out = append(out, o)
		}
	}
	return out
}

// Print writes a human readable summary table.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tFIELD\tKIND\tKEY\tCONF\tDETAIL")
	for _, o := range r.Outcomes {
		conf := "-"
		if o.MatchedKey != "" {
			conf = fmt.Sprintf("%.2f", o.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Status, truncate(o.Field.Label, 48), o.Field.Kind, dash(o.MatchedKey), conf, o.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nfilled %d, skipped %d, failed %d of %d fields in %s\n",
		r.Filled, r.Skipped, r.Failed, r.Total(), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if req := r.RequiredSkipped(); len(req) > 0 {
		fmt.Fprintln(w, "required fields needing attention:")
		for _, o := range req {
			fmt.Fprintf(w, "  - %s (%s)\n", o.Field.Label, o.Status)
		}
	}
	_, err := fmt.Fprintln(w, "review the form and submit it manually")
	return err
}

// WriteJSON saves the report to path atomically.
func (r *Report) WriteJSON(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
