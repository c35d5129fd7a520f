package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kayz/teachcut/internal/logger"
)

// Terminal reads answers from in and writes to out.
type Terminal struct {
	in      io.Reader
	reader  *bufio.Reader
	out     io.Writer
	pending chan lineResult
	tty     ttyOps
}

// ttyOps are the terminal calls behind hidden input.
type ttyOps struct {
	isTerminal   func(fd int) bool
	getState     func(fd int) (*term.State, error)
	restore      func(fd int, state *term.State) error
	readPassword func(fd int) ([]byte, error)
}

var systemTTY = ttyOps{
	isTerminal:   term.IsTerminal,
	getState:     term.GetState,
	restore:      term.Restore,
	readPassword: term.ReadPassword,
}

type lineResult struct {
	line string
	err  error
}

// NewTerminal returns a console bound to the given streams.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, reader: bufio.NewReader(in), out: out, tty: systemTTY}
}

func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) Println(args ...any) {
	fmt.Fprintln(t.out, args...)
}

func (t *Terminal) Prompt(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", label)
	}
	line, err := t.readLine(ctx)
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// PromptSecret turns echo off while reading. When ctx is cancelled mid-read
// the saved terminal state is restored before returning, since the process
// may exit before the pending read does.
func (t *Terminal) PromptSecret(ctx context.Context, label string) (string, error) {
	f, ok := t.in.(*os.File)
	if !ok || !t.tty.isTerminal(int(f.Fd())) {
		return t.Prompt(ctx, label, "")
	}
	fd := int(f.Fd())
	state, err := t.tty.getState(fd)
	if err != nil {
		return "", fmt.Errorf("read terminal state: %w", err)
	}
	fmt.Fprintf(t.out, "%s: ", label)
	done := make(chan lineResult, 1)
	go func() {
		b, err := t.tty.readPassword(fd)
		done <- lineResult{line: string(b), err: err}
	}()
	select {
	case <-ctx.Done():
		if err := t.tty.restore(fd, state); err != nil {
			logger.Warn("[Console] restore terminal: %v", err)
		}
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	case r := <-done:
		fmt.Fprintln(t.out)
		if r.err != nil {
			return "", fmt.Errorf("read secret: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}

// readLine blocks for one line but gives up when ctx is cancelled. A read
// abandoned by cancellation is picked up by the next call.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.pending == nil {
		ch := make(chan lineResult, 1)
		t.pending = ch
		go func() {
			line, err := t.reader.ReadString('\n')
			switch {
			case err == io.EOF && line == "":
				ch <- lineResult{err: ErrInputClosed}
			case err != nil && err != io.EOF:
				ch <- lineResult{err: fmt.Errorf("read input: %w", err)}
			default:
				ch <- lineResult{line: line}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-t.pending:
		t.pending = nil
		return r.line, r.err
	}
}
