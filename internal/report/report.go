// Package report holds the structured outcome of a migration run.
package report

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"moviemigrate/internal/verify"
)

// Status is the lifecycle state of one entity within a run.
type Status string

const (
	StatusIdle             Status = "Idle"
	StatusExtracting       Status = "Extracting"
	StatusLoading          Status = "Loading"
	StatusVerifying        Status = "Verifying"
	StatusDone             Status = "Done"
	StatusFailed           Status = "Failed"
	StatusDependencyFailed Status = "DependencyFailed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusDependencyFailed
}

// Verification is the post-load check of one entity. Error is set when
// the check itself could not run.
type Verification struct {
	CountSource int64                `json:"count_source" yaml:"count_source"`
	CountTarget int64                `json:"count_target" yaml:"count_target"`
	Match       bool                 `json:"match" yaml:"match"`
	Sample      *verify.SampleResult `json:"sample,omitempty" yaml:"sample,omitempty"`
	Error       string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK is true when the counts match, the sample (if any) matches and the
// check completed.
func (v *Verification) OK() bool {
	if v == nil {
		return true
	}
	return v.Error == "" && v.Match && (v.Sample == nil || v.Sample.Match)
}

// Entity is the outcome for one entity kind.
type Entity struct {
	Entity        string        `json:"entity" yaml:"entity"`
	Status        Status        `json:"status" yaml:"status"`
	RowsRead      int64         `json:"rows_read" yaml:"rows_read"`
	RowsWritten   int64         `json:"rows_written" yaml:"rows_written"`
	Batches       int           `json:"batches" yaml:"batches"`
	QualityIssues int           `json:"quality_issues" yaml:"quality_issues"`
	ErrorKind     string        `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration      time.Duration `json:"duration_ns" yaml:"duration"`
	Verification  *Verification `json:"verification,omitempty" yaml:"verification,omitempty"`
}

// Run is the report of one orchestrator run. Entities are in dependency
// order.
type Run struct {
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	VerifyOnly bool      `json:"verify_only,omitempty" yaml:"verify_only,omitempty"`
	Entities   []Entity  `json:"entities" yaml:"entities"`
}

// Entity returns the entry named name.
func (r *Run) Entity(name string) (*Entity, bool) {
	for i := range r.Entities {
		if r.Entities[i].Entity == name {
			return &r.Entities[i], true
		}
	}
	return nil, false
}

// OK reports whether every entity finished Done and passed verification.
func (r *Run) OK() bool {
	for i := range r.Entities {
		e := &r.Entities[i]
		if e.Status != StatusDone || !e.Verification.OK() {
			return false
		}
	}
	return true
}

// Totals sums the row counters over all entities.
func (r *Run) Totals() (read, written int64) {
	for _, e := range r.Entities {
		read += e.RowsRead
		written += e.RowsWritten
	}
	return read, written
}

// Summary renders the run as an aligned text table.
func (r *Run) Summary() string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSTATUS\tREAD\tWRITTEN\tBATCHES\tQUALITY\tVERIFIED\tERROR")
	for _, e := range r.Entities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			e.Entity, e.Status, e.RowsRead, e.RowsWritten, e.Batches, e.QualityIssues, verifiedColumn(e.Verification), errorColumn(e))
	}
	tw.Flush()

	read, written := r.Totals()
	result := "OK"
	if !r.OK() {
		result = "FAILED"
	}
	fmt.Fprintf(&buf, "%s: %d row(s) read, %d written in %s\n", result, read, written, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return buf.String()
}

func verifiedColumn(v *Verification) string {
	switch {
	case v == nil:
		return "-"
	case v.Error != "":
		return "error"
	case !v.Match:
		return fmt.Sprintf("count %d/%d", v.CountTarget, v.CountSource)
	case v.Sample != nil && !v.Sample.Match:
		return "sample mismatch at " + v.Sample.FirstMismatchID
	default:
		return fmt.Sprintf("yes (%d/%d)", v.CountTarget, v.CountSource)
	}
}

func errorColumn(e Entity) string {
	if e.Error == "" {
		return ""
	}
	if e.ErrorKind != "" {
		return e.ErrorKind + ": " + e.Error
	}
	return e.Error
}
