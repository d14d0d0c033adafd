package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a question cannot be answered by a human.
var ErrNotInteractive = errors.New("cannot ask: not interactive")

// Confirmer decides whether a (destructive) action should proceed.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Asker gets a free-form answer for a question.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// ConfirmFunc is a function as a Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Fixed answers every question with the same answer, recording questions.
type Fixed struct {
	Yes   bool
	Reply string

	Questions []string
}

var _ Confirmer = &Fixed{}
var _ Asker = &Fixed{}

func (f *Fixed) Confirm(_ context.Context, question string) (bool, error) {
	f.Questions = append(f.Questions, question)
	return f.Yes, nil
}

func (f *Fixed) Ask(_ context.Context, question string) (string, error) {
	f.Questions = append(f.Questions, question)
	return f.Reply, nil
}

// Terminal asks questions on a console.
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

var _ Confirmer = &Terminal{}
var _ Asker = &Terminal{}

// NewTerminal creates a Terminal reading answers from in, printing questions to out.
//
// When in is a file which is not a terminal (a pipe or /dev/null),
// the Terminal refuses to ask and returns ErrNotInteractive.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	interactive := in != nil
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	var br *bufio.Reader
	if in != nil {
		br = bufio.NewReader(in)
	}
	return &Terminal{in: br, out: out, interactive: interactive}
}

func (t *Terminal) readLine(ctx context.Context, question string) (string, error) {
	if !t.interactive {
		return "", fmt.Errorf("%w: %s", ErrNotInteractive, question)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.out, question, " ")
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: no answer for: %s", ErrNotInteractive, question)
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question until it gets "y(es)" or "n(o)".
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		ans, err := t.readLine(ctx, question+" [y/n]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(ans) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
}

func (t *Terminal) Ask(ctx context.Context, question string) (string, error) {
	return t.readLine(ctx, question)
}
