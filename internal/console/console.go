// Package console is the input/output port used by every interactive step.
// Production code talks to a Terminal; tests replay answers through a Script.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// ErrInputClosed is returned when no more answers can be read.
var ErrInputClosed = errors.New("input closed")

// Console prints status lines and reads answers.
type Console interface {
	Printf(format string, args ...any)
	Println(args ...any)
	// Prompt shows label and reads one line. An empty answer returns def.
	Prompt(ctx context.Context, label, def string) (string, error)
	// PromptSecret reads one line without echoing it when possible.
	PromptSecret(ctx context.Context, label string) (string, error)
}

var (
	passMark = color.New(color.FgGreen).Sprint("✅")
	failMark = color.New(color.FgRed).Sprint("❌")
	warnMark = color.New(color.FgYellow).Sprint("⚠️ ")
	infoMark = color.New(color.FgCyan).Sprint("💡")
)

func Pass(c Console, format string, args ...any) {
	c.Printf("%s %s\n", passMark, fmt.Sprintf(format, args...))
}

func Fail(c Console, format string, args ...any) {
	c.Printf("%s %s\n", failMark, fmt.Sprintf(format, args...))
}

func Warn(c Console, format string, args ...any) {
	c.Printf("%s %s\n", warnMark, fmt.Sprintf(format, args...))
}

func Hint(c Console, format string, args ...any) {
	c.Printf("%s %s\n", infoMark, fmt.Sprintf(format, args...))
}

// Required prompts until a non-empty answer is given.
func Required(ctx context.Context, c Console, label string, secret bool) (string, error) {
	for {
		var (
			answer string
			err    error
		)
		if secret {
			answer, err = c.PromptSecret(ctx, label)
		} else {
			answer, err = c.Prompt(ctx, label, "")
		}
		if err != nil {
			return "", err
		}
		if answer = strings.TrimSpace(answer); answer != "" {
			return answer, nil
		}
		Fail(c, "This field is required, please enter a value")
	}
}

// Confirm asks a y/n question. Anything other than y/yes is a no.
func Confirm(ctx context.Context, c Console, label string, def bool) (bool, error) {
	d := "n"
	if def {
		d = "y"
	}
	answer, err := c.Prompt(ctx, label+" (y/n)", d)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Option is one entry of a numbered single-choice prompt.
type Option struct {
	Value string
	Label string
}

// Choose prints options numbered from 1 and returns the chosen value.
// Empty or unknown input falls back to the option at index def.
func Choose(ctx context.Context, c Console, title string, options []Option, def int) (string, error) {
	if def < 0 || def >= len(options) {
		def = 0
	}
	c.Println()
	c.Println(title)
	for i, opt := range options {
		c.Printf("  %d. %s\n", i+1, opt.Label)
	}
	answer, err := c.Prompt(ctx, fmt.Sprintf("Choose (1-%d)", len(options)), strconv.Itoa(def+1))
	if err != nil {
		return "", err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(answer))
	if convErr != nil || n < 1 || n > len(options) {
		return options[def].Value, nil
	}
	return options[n-1].Value, nil
}

// Writer adapts c to io.Writer for renderers that take one.
func Writer(c Console) io.Writer { return writer{c} }

type writer struct{ c Console }

func (w writer) Write(p []byte) (int, error) {
	w.c.Printf("%s", p)
	return len(p), nil
}
