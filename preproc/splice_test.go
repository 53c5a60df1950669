package preproc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

var errBoom = errors.New("boom")

// fakeEval is a scripted Evaluator. Code ending with "then" or "else" is
// incomplete, code ending with "fail" fails, "return X" returns X and anything else has no
// value. A combined script returns its literal if it ends with "end" and
// the pending code's condition was "yes".
type fakeEval struct {
	calls []string
}

func (f *fakeEval) Eval(_ context.Context, _, src string) (Value, error) {
	f.calls = append(f.calls, src)

	switch {
	case strings.HasSuffix(src, "then"), strings.HasSuffix(src, "else"):
		return NoValue, fmt.Errorf("%w: at EOF", ErrIncomplete)
	case strings.HasSuffix(src, "fail"):
		return NoValue, errBoom
	case strings.HasPrefix(src, "return "):
		return String(strings.TrimPrefix(src, "return ")), nil
	case strings.HasPrefix(src, "if yes then\n") && strings.HasSuffix(src, "\nend"):
		lit := strings.SplitN(src, "\n", 2)[1]
		lit = lit[:strings.Index(lit, "\n!]")]
		return String(strings.TrimPrefix(lit, "LIT[!")), nil
	}
	return NoValue, nil
}

func (f *fakeEval) ReturnLiteral(text string) string {
	return "LIT[!" + text + "\n!]"
}

func TestStep(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		state    State
		block    Block
		expState State
		expOut   string
		expErr   error
	}{
		{
			name:     "idle, value",
			state:    Idle(),
			block:    Block{Body: "b ", Code: "return X"},
			expState: Idle(),
			expOut:   "b X",
		},
		{
			name:     "idle, no value",
			state:    Idle(),
			block:    Block{Body: "b ", Code: "x = 1"},
			expState: Idle(),
			expOut:   "b ",
		},
		{
			name:     "idle, incomplete",
			state:    Idle(),
			block:    Block{Body: "b ", Code: "if yes then"},
			expState: Pending("if yes then"),
			expOut:   "b ",
		},
		{
			name:     "idle, failure",
			state:    Idle(),
			block:    Block{Body: "b ", Code: "fail"},
			expState: Idle(),
			expErr:   errBoom,
		},
		{
			name:     "pending, value",
			state:    Pending("if yes then"),
			block:    Block{Body: "body", Code: "end"},
			expState: Idle(),
			expOut:   "body",
		},
		{
			name:     "pending, no value",
			state:    Pending("if no then"),
			block:    Block{Body: "body", Code: "end"},
			expState: Idle(),
		},
		{
			name:     "pending, still incomplete",
			state:    Pending("if no then"),
			block:    Block{Body: "body", Code: "else"},
			expState: Pending("if no then\nLIT[!body\n!]\nelse"),
		},
		{
			name:     "pending, failure",
			state:    Pending("if no then"),
			block:    Block{Body: "body", Code: "fail"},
			expState: Pending("if no then"),
			expErr:   errBoom,
		},
	}

	for _, tc := range testCases {
		f := &fakeEval{}
		s, out, err := Step(ctx, f, tc.state, tc.block, tc.name)
		if !errors.Is(err, tc.expErr) {
			t.Errorf("%s: expected error %v, got %v", tc.name, tc.expErr, err)
			continue
		}
		if s != tc.expState {
			t.Errorf("%s: expected state %s, got %s", tc.name, tc.expState, s)
		}
		if out != tc.expOut {
			t.Errorf("%s: expected output %q, got %q", tc.name, tc.expOut, out)
		}
	}
}

func TestSplice(t *testing.T) {
	testCases := []struct {
		name   string
		text   string
		exp    string
		expErr error
	}{
		{
			name: "no blocks",
			text: "unchanged\ttext\n",
			exp:  "unchanged\ttext\n",
		},
		{
			name: "block with no value",
			text: `before """%print("hi")%""" after`,
			exp:  "before  after",
		},
		{
			name: "block with a value",
			text: `before """%return X%""" after`,
			exp:  "before X after",
		},
		{
			name: "values are not reordered",
			text: `1 """%return A%""" 2 """%return B%""" 3`,
			exp:  "1 A 2 B 3",
		},
		{
			name: "two blocks, body kept",
			text: "a\n\"\"\"%if yes then%\"\"\"\nkept\n\"\"\"%end%\"\"\"\nz",
			exp:  "a\n\nkept\n\nz",
		},
		{
			name: "two blocks, body dropped",
			text: "a\n\"\"\"%if no then%\"\"\"\ndropped\n\"\"\"%end%\"\"\"\nz",
			exp:  "a\n\nz",
		},
		{
			name:   "unclosed",
			text:   "a \"\"\"%if yes then%\"\"\" b",
			expErr: ErrUnclosedBlock,
		},
		{
			name:   "script failure",
			text:   `a """%fail%""" b`,
			expErr: ErrScript,
		},
	}

	for _, tc := range testCases {
		sc, err := ScanText(tc.name, tc.text, 1)
		if err != nil {
			t.Fatalf("%s: cannot scan: %v", tc.name, err)
		}
		got, err := Splice(context.Background(), &fakeEval{}, tc.name, sc)
		if !errors.Is(err, tc.expErr) {
			t.Errorf("%s: expected error %v, got %v", tc.name, tc.expErr, err)
			continue
		}
		if got != tc.exp {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.exp, got)
		}
	}
}

func TestSpliceBufferedBody(t *testing.T) {
	const body = "\n  literal \"text\" with ]] in it\r\n"
	text := `"""%if maybe then%"""` + body + `"""%end%"""`

	sc, err := ScanText("doc", text, 1)
	if err != nil {
		t.Fatalf("cannot scan: %v", err)
	}
	f := &fakeEval{}
	if _, err := Splice(context.Background(), f, "doc", sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 evaluations, got %d: %q", len(f.calls), f.calls)
	}
	exp := "if maybe then\n" + f.ReturnLiteral(body) + "\nend"
	if f.calls[1] != exp {
		t.Errorf("unexpected combined script:\n\t expected: %q\n\t      got: %q",
			exp, f.calls[1])
	}
}

func TestSpliceUnclosedLocation(t *testing.T) {
	text := "line 1\n\"\"\"%if yes then%\"\"\"\nline 3\n\"\"\"%else%\"\"\"\n"
	sc, err := ScanText("doc.py", text, 1)
	if err != nil {
		t.Fatalf("cannot scan: %v", err)
	}
	_, err = Splice(context.Background(), &fakeEval{}, "doc.py", sc)
	if !errors.Is(err, ErrUnclosedBlock) {
		t.Fatalf("expected ErrUnclosedBlock, got %v", err)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *Error, got %T", err)
	}
	if pe.Loc.String() != "doc.py:2" {
		t.Errorf("expected the error at doc.py:2, got %s", pe.Loc)
	}
}

func TestSpliceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc, err := ScanText("doc", `"""%return X%"""`, 1)
	if err != nil {
		t.Fatalf("cannot scan: %v", err)
	}
	_, err = Splice(ctx, &fakeEval{}, "doc", sc)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
