package preproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nickwells/location.mod/location"
)

// These are the kinds of error reported by the preprocessor. An error
// returned from this package can be tested against them with errors.Is.
var (
	// ErrIncomplete is returned by an Evaluator when the script it was
	// given is not a complete statement. It is not an error as far as the
	// caller of Splice is concerned.
	ErrIncomplete = errors.New("incomplete statement")
	// ErrScript is reported when a block fails for any other reason.
	ErrScript = errors.New("script failed")
	// ErrUnclosedBlock is reported when a statement spread over several
	// blocks is still incomplete at the end of the document.
	ErrUnclosedBlock = errors.New("unclosed multi-block statement")
	// ErrUnterminatedBlock is reported when an open marker has no
	// matching close marker.
	ErrUnterminatedBlock = errors.New("unterminated block")
	// ErrIO is reported when a file cannot be read or written.
	ErrIO = errors.New("i/o failure")
	// ErrBadPath is reported when a path cannot be resolved.
	ErrBadPath = errors.New("unresolvable path")
)

// Error records a failure of the preprocessor together with the operation
// being performed, the file it was working on and, where known, the
// location in that file.
type Error struct {
	Kind error
	Op   string
	Path string
	Loc  *location.L
	Err  error
}

// Error returns a description of the failure
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": " + e.Op)
	}
	switch {
	case e.Loc != nil:
		b.WriteString(" at " + e.Loc.String())
	case e.Path != "":
		b.WriteString(" " + e.Path)
	}
	if e.Err != nil {
		b.WriteString(": " + strings.TrimSpace(e.Err.Error()))
	}
	return b.String()
}

// Unwrap returns both the kind of the error and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// lineLoc returns a location for the given 1-based line of the named file
func lineLoc(name string, line int) *location.L {
	loc := location.New(name)
	for i := 0; i < line; i++ {
		loc.Incr()
	}
	return loc
}

func ioErr(op, path string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Path: path, Err: err}
}

func badPathf(path, format string, args ...any) error {
	return &Error{Kind: ErrBadPath, Path: path, Err: fmt.Errorf(format, args...)}
}
