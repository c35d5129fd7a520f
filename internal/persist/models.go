package persist

import (
	"encoding/json"
	"time"

	"github.com/kayz/teachcut/internal/report"
)

// Kind is what a recorded run did.
type Kind string

const (
	KindQuickDeploy Kind = "deploy"
	KindTests       Kind = "test"
	KindInstall     Kind = "install"
	KindConfigure   Kind = "configure"
	KindStart       Kind = "start"
)

// Status is how a run ended.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is one recorded bootstrap run
type Run struct {
	ID         string
	Kind       Kind
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     Status
	Detail     string
	Results    []report.TestResult
}

// Summary aggregates the run's results.
func (r *Run) Summary() report.Report {
	return report.Summarize(r.Results)
}

func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// scanner interface for both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// toJSON converts an object to JSON string
func toJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// fromJSON parses JSON string into an object
func fromJSON(data string, v interface{}) error {
	if data == "" || data == "[]" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
