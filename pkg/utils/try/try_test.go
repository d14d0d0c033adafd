package try_test

import (
	"errors"
	"testing"

	"github.com/vsdock/vsdock/pkg/utils/try"
)

type fataler struct {
	fatal [][]any
}

func (f *fataler) Fatal(args ...any) {
	f.fatal = append(f.fatal, args)
}

type helperFataler struct {
	fataler
	helper uint
}

func (hf *helperFataler) Helper() {
	hf.helper += 1
}

func TestTo(t *testing.T) {
	t.Run("when it does not have error, it gives the value", func(t *testing.T) {
		testee := try.To(42, nil)

		ftl := &helperFataler{}
		if actual := testee.OrFatal(ftl); actual != 42 {
			t.Errorf("OrFatal: actual=%d, expected=42", actual)
		}
		if len(ftl.fatal) != 0 || ftl.helper != 0 {
			t.Errorf("Fatal or Helper is called unexpectedly: %+v", ftl)
		}
		if actual := testee.OrDefault(0); actual != 42 {
			t.Errorf("OrDefault: actual=%d, expected=42", actual)
		}
		if v, err := testee.Get(); v != 42 || err != nil {
			t.Errorf("Get: (%d, %v)", v, err)
		}
	})

	t.Run("when it has error, it stops with the error", func(t *testing.T) {
		expectedErr := errors.New("fake")
		testee := try.To(42, expectedErr)

		ftl := &helperFataler{}
		if actual := testee.OrFatal(ftl); actual != 0 {
			t.Errorf("OrFatal: actual=%d, expected=zero value", actual)
		}
		if len(ftl.fatal) != 1 || ftl.fatal[0][0] != expectedErr {
			t.Errorf("Fatal is not called with the error: %+v", ftl.fatal)
		}
		if ftl.helper != 1 {
			t.Errorf("Helper is called %d times", ftl.helper)
		}
		if actual := testee.OrDefault(7); actual != 7 {
			t.Errorf("OrDefault: actual=%d, expected=7", actual)
		}
		if _, err := testee.Get(); !errors.Is(err, expectedErr) {
			t.Errorf("Get: unexpected error %v", err)
		}
	})
}
