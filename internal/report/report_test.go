package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	r := Summarize([]TestResult{Pass("a"), Fail("b", "")})
	assert.Equal(t, Report{Total: 2, Passed: 1, Failed: 1, Percentage: 50.0}, r)
	assert.False(t, r.AllPassed())
	assert.Equal(t, "1/2 passed (50.0%)", r.String())
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil)
	assert.Equal(t, Report{}, r)
	assert.Equal(t, 0.0, r.Percentage)
	assert.False(t, r.AllPassed())
	assert.Equal(t, "no tests run", r.String())
}

func TestSummarizeRoundsToOneDecimal(t *testing.T) {
	r := Summarize([]TestResult{Pass("a"), Pass("b"), Fail("c", "")})
	assert.Equal(t, 66.7, r.Percentage)

	r = Summarize([]TestResult{Pass("a"), Fail("b", ""), Fail("c", "")})
	assert.Equal(t, 33.3, r.Percentage)
}

func TestRenderListsEveryResult(t *testing.T) {
	var buf bytes.Buffer
	results := []TestResult{
		Pass("environment config"),
		Fail("health check", "status 503"),
		Pass("static files"),
	}
	r := Render(&buf, "Test report", results)
	out := buf.String()

	assert.Equal(t, 3, r.Total)
	assert.Contains(t, out, "Test report")
	assert.Contains(t, out, "Success: 66.7%")
	assert.Contains(t, out, "environment config: passed")
	assert.Contains(t, out, "health check: failed (status 503)")
	assert.Contains(t, out, "static files: passed")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, "Test report", nil)
	assert.Contains(t, buf.String(), "no tests run")
}
