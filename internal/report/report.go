// Package report aggregates named test outcomes and renders them.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// TestResult is one recorded check.
type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Pass and Fail build results.
func Pass(name string) TestResult { return TestResult{Name: name, Passed: true} }

func Fail(name, detail string) TestResult {
	return TestResult{Name: name, Detail: detail}
}

// Report is the summary of a result set.
type Report struct {
	Total      int
	Passed     int
	Failed     int
	Percentage float64
}

// Summarize counts results. Percentage has one decimal and is 0 for an
// empty set.
func Summarize(results []TestResult) Report {
	r := Report{Total: len(results)}
	for _, res := range results {
		if res.Passed {
			r.Passed++
		}
	}
	r.Failed = r.Total - r.Passed
	if r.Total > 0 {
		r.Percentage = math.Round(float64(r.Passed)/float64(r.Total)*1000) / 10
	}
	return r
}

func (r Report) AllPassed() bool { return r.Total > 0 && r.Failed == 0 }

func (r Report) String() string {
	if r.Total == 0 {
		return "no tests run"
	}
	return fmt.Sprintf("%d/%d passed (%.1f%%)", r.Passed, r.Total, r.Percentage)
}

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	okText     = color.New(color.FgGreen).SprintFunc()
	badText    = color.New(color.FgRed).SprintFunc()
)

// Render writes a summary box followed by every result in order.
func Render(w io.Writer, title string, results []TestResult) Report {
	r := Summarize(results)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	if r.Total == 0 {
		b.WriteString("no tests run")
	} else {
		fmt.Fprintf(&b, "Total:   %d\n", r.Total)
		fmt.Fprintf(&b, "Passed:  %s\n", okText(r.Passed))
		fmt.Fprintf(&b, "Failed:  %s\n", badText(r.Failed))
		fmt.Fprintf(&b, "Success: %.1f%%", r.Percentage)
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))

	for _, res := range results {
		mark, status := okText("✅"), "passed"
		if !res.Passed {
			mark, status = badText("❌"), "failed"
		}
		line := fmt.Sprintf("%s %s: %s", mark, res.Name, status)
		if res.Detail != "" {
			line += " (" + res.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	return r
}
