package bootstrap

import (
	"context"
	"errors"

	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/persist"
	"github.com/kayz/teachcut/internal/report"
)

// startRun records the start of a run. History failures never stop the
// pipeline.
func (o *Orchestrator) startRun(kind persist.Kind) *persist.Run {
	if o.History == nil {
		return nil
	}
	run, err := o.History.StartRun(kind)
	if err != nil {
		logger.Warn("[History] %v", err)
		return nil
	}
	return run
}

func (o *Orchestrator) finishRun(run *persist.Run, err error, results []report.TestResult) {
	if run == nil {
		return
	}
	status, detail := runStatus(err, results)
	if err := o.History.FinishRun(run, status, detail, results); err != nil {
		logger.Warn("[History] %v", err)
	}
}

func runStatus(err error, results []report.TestResult) (persist.Status, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return persist.StatusCancelled, err.Error()
	case err != nil:
		return persist.StatusFailed, err.Error()
	}
	r := report.Summarize(results)
	switch {
	case r.Failed > 0:
		return persist.StatusFailed, r.String()
	case r.Total > 0:
		return persist.StatusSucceeded, r.String()
	}
	return persist.StatusSucceeded, ""
}
