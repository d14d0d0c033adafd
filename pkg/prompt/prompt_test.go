package prompt_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vsdock/vsdock/pkg/prompt"
)

func TestTerminal_Confirm(t *testing.T) {
	type Then struct {
		Yes     bool
		Err     error
		Retries int
	}

	theory := func(input string, then Then) func(*testing.T) {
		return func(t *testing.T) {
			out := new(strings.Builder)
			testee := prompt.NewTerminal(strings.NewReader(input), out)

			actual, err := testee.Confirm(context.Background(), "remove it?")
			if then.Err != nil {
				if !errors.Is(err, then.Err) {
					t.Fatalf("expected error %v, but got %v", then.Err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if actual != then.Yes {
				t.Errorf("answer: actual=%v, expected=%v", actual, then.Yes)
			}
			if n := strings.Count(out.String(), "Please answer y or n."); n != then.Retries {
				t.Errorf("retries: actual=%d, expected=%d", n, then.Retries)
			}
			if !strings.Contains(out.String(), "remove it? [y/n]") {
				t.Errorf("question is not printed: %q", out.String())
			}
		}
	}

	t.Run("y", theory("y\n", Then{Yes: true}))
	t.Run("YES", theory("YES\n", Then{Yes: true}))
	t.Run("no", theory("no\n", Then{Yes: false}))
	t.Run("answer without newline", theory("y", Then{Yes: true}))
	t.Run("asks again for unknown answers", theory("maybe\n\nn\n", Then{Yes: false, Retries: 2}))
	t.Run("no answer", theory("", Then{Err: prompt.ErrNotInteractive}))
}

func TestTerminal_Ask(t *testing.T) {
	out := new(strings.Builder)
	testee := prompt.NewTerminal(strings.NewReader("  12 \n"), out)

	actual, err := testee.Ask(context.Background(), "How many jobs?")
	if err != nil {
		t.Fatal(err)
	}
	if actual != "12" {
		t.Errorf("answer: %q", actual)
	}
}

func TestTerminal_WithoutInput(t *testing.T) {
	testee := prompt.NewTerminal(nil, new(strings.Builder))
	if _, err := testee.Confirm(context.Background(), "ok?"); !errors.Is(err, prompt.ErrNotInteractive) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTerminal_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testee := prompt.NewTerminal(strings.NewReader("y\n"), new(strings.Builder))
	if _, err := testee.Confirm(ctx, "ok?"); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFixed(t *testing.T) {
	f := &prompt.Fixed{Yes: true, Reply: "3"}
	if ok, _ := f.Confirm(context.Background(), "a"); !ok {
		t.Error("Fixed{Yes: true} says no")
	}
	if r, _ := f.Ask(context.Background(), "b"); r != "3" {
		t.Errorf("reply: %q", r)
	}
	if len(f.Questions) != 2 || f.Questions[0] != "a" || f.Questions[1] != "b" {
		t.Errorf("questions: %v", f.Questions)
	}
}
