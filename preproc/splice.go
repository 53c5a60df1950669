package preproc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Value is the result of evaluating a block. If OK is false the script
// produced no value and nothing is spliced in its place.
type Value struct {
	Str string
	OK  bool
}

// NoValue is the Value of a script that returns nothing
var NoValue = Value{}

// String returns a Value holding s
func String(s string) Value {
	return Value{Str: s, OK: true}
}

// Evaluator runs script code on behalf of the preprocessor. The same
// Evaluator is used for every block of every file in a run so that state
// set by one block is visible to later ones.
type Evaluator interface {
	// Eval runs the script source. The chunk names the source for any
	// diagnostics. If the source is not a complete statement the error
	// must match ErrIncomplete (according to errors.Is); any other error
	// aborts the run.
	Eval(ctx context.Context, chunk, src string) (Value, error)
	// ReturnLiteral returns a statement which returns the text, byte for
	// byte, as a string value.
	ReturnLiteral(text string) string
}

// State is the state of the splice of a document. It is either Idle or
// Pending, in which case it holds the code of a statement which is not yet
// complete.
type State struct {
	pending bool
	code    string
}

// Idle returns the state in which no code is held
func Idle() State {
	return State{}
}

// Pending returns the state holding the incomplete statement code
func Pending(code string) State {
	return State{pending: true, code: code}
}

// IsPending reports whether the state holds an incomplete statement
func (s State) IsPending() bool { return s.pending }

// Code returns the incomplete statement held, if any
func (s State) Code() string { return s.code }

// String describes the state
func (s State) String() string {
	if s.pending {
		return fmt.Sprintf("Pending(%q)", s.code)
	}
	return "Idle"
}

// Combine returns the script formed by appending the block's body, as a
// returned string literal, and then the block's code to the pending code.
func Combine(ev Evaluator, pending string, b Block) string {
	return pending + "\n" + ev.ReturnLiteral(b.Body) + "\n" + b.Code
}

// Step applies the block to the state. It returns the next state and the
// text to be added to the output.
//
// In the Idle state the block's code is evaluated on its own and the body
// is always emitted, followed by the value if there is one. If the code is
// incomplete the body is still emitted and the code is held. In the
// Pending state the body is not emitted; instead the held code, the body
// and the block's code are evaluated together and only the value, if any,
// is emitted.
func Step(ctx context.Context, ev Evaluator, s State, b Block, chunk string,
) (State, string, error) {
	if !s.pending {
		v, err := ev.Eval(ctx, chunk, b.Code)
		if errors.Is(err, ErrIncomplete) {
			return Pending(b.Code), b.Body, nil
		}
		if err != nil {
			return s, "", err
		}
		return Idle(), b.Body + v.Str, nil
	}

	code := Combine(ev, s.code, b)
	v, err := ev.Eval(ctx, chunk, code)
	if errors.Is(err, ErrIncomplete) {
		return Pending(code), "", nil
	}
	if err != nil {
		return s, "", err
	}
	return Idle(), v.Str, nil
}

// Splice evaluates the blocks of the scanned document in order and returns
// the resulting text. The text after the last block is always appended. If
// a statement is still incomplete after the last block an error is
// returned.
func Splice(ctx context.Context, ev Evaluator, name string, sc Scan,
) (string, error) {
	var b strings.Builder
	s := Idle()
	pendingFrom := 0

	for _, blk := range sc.Blocks {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		chunk := fmt.Sprintf("%s:%d", name, blk.Line)
		next, out, err := Step(ctx, ev, s, blk, chunk)
		if err != nil {
			return "", &Error{
				Kind: ErrScript,
				Op:   "evaluate",
				Path: name,
				Loc:  lineLoc(name, blk.Line),
				Err:  err,
			}
		}
		if next.pending && !s.pending {
			pendingFrom = blk.Line
		}
		s = next
		b.WriteString(out)
	}

	if s.pending {
		return "", &Error{
			Kind: ErrUnclosedBlock,
			Op:   "splice",
			Path: name,
			Loc:  lineLoc(name, pendingFrom),
			Err:  fmt.Errorf("statement is never completed: %q", s.code),
		}
	}
	b.WriteString(sc.Tail)

	return b.String(), nil
}
