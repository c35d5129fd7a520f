package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Script replays a fixed list of answers and records everything printed.
// Once the answers run out every prompt returns ErrInputClosed, so a
// scripted run can never block.
type Script struct {
	mu      sync.Mutex
	answers []string
	out     strings.Builder
	prompts []string
}

// NewScript returns a console that answers prompts in order.
func NewScript(answers ...string) *Script {
	return &Script{answers: answers}
}

func (s *Script) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(&s.out, format, args...)
}

func (s *Script) Println(args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(&s.out, args...)
}

func (s *Script) Prompt(ctx context.Context, label, def string) (string, error) {
	answer, err := s.next(ctx, label, false)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return def, nil
	}
	return strings.TrimSpace(answer), nil
}

func (s *Script) PromptSecret(ctx context.Context, label string) (string, error) {
	answer, err := s.next(ctx, label, true)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (s *Script) next(ctx context.Context, label string, secret bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, label)
	fmt.Fprintf(&s.out, "%s: ", label)
	if len(s.answers) == 0 {
		return "", ErrInputClosed
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if secret {
		fmt.Fprintln(&s.out, "********")
	} else {
		fmt.Fprintln(&s.out, answer)
	}
	return answer, nil
}

// Output returns everything written so far.
func (s *Script) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// Prompts returns the labels of every prompt shown, in order.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Remaining reports how many answers have not been consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
