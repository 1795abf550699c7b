package tiering

import (
	"fmt"
	"strings"
	"time"
)

// errorPreviewLimit bounds how many per-record failures a summary enumerates.
const errorPreviewLimit = 5

// RecordError is the per-record outcome of a failed migration step.
type RecordError struct {
	RecordID string `json:"record_id"`
	Message  string `json:"message"`
}

// StageResult aggregates one migration stage. Per-record failures are
// counted and previewed; they never abort the stage.
type StageResult struct {
	Stage     string        `json:"stage"`
	Selected  int           `json:"selected"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	Errors    []RecordError `json:"errors,omitempty"`
}

func (r StageResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d selected, %d succeeded, %d failed, %d bytes in %s",
		r.Stage, r.Selected, r.Succeeded, r.Failed, r.Bytes, r.Duration.Round(time.Millisecond))
	if len(r.Errors) > 0 {
		preview := r.Errors
		if len(preview) > errorPreviewLimit {
			preview = preview[:errorPreviewLimit]
		}
		for _, re := range preview {
			fmt.Fprintf(&b, "\n  - %s: %s", re.RecordID, re.Message)
		}
		if remaining := len(r.Errors) - len(preview); remaining > 0 {
			fmt.Fprintf(&b, "\n  ... and %d more", remaining)
		}
	}
	return b.String()
}

// RunResult aggregates a full migration run across both stages.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Tier2    StageResult   `json:"primary_to_tier2"`
	Tier3    StageResult   `json:"tier2_to_tier3"`
	Duration time.Duration `json:"duration"`
}

func (r RunResult) TotalSucceeded() int {
	return r.Tier2.Succeeded + r.Tier3.Succeeded
}

func (r RunResult) TotalFailed() int {
	return r.Tier2.Failed + r.Tier3.Failed
}

func (r RunResult) TotalBytes() int64 {
	return r.Tier2.Bytes + r.Tier3.Bytes
}

func (r RunResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration run %s finished in %s: %d migrated, %d failed, %d bytes\n",
		r.RunID, r.Duration.Round(time.Millisecond), r.TotalSucceeded(), r.TotalFailed(), r.TotalBytes())
	b.WriteString(r.Tier2.Summary())
	b.WriteString("\n")
	b.WriteString(r.Tier3.Summary())
	return b.String()
}
