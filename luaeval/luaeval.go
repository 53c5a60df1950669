// Package luaeval runs preprocessor blocks as Lua code.
//
// One Evaluator holds one Lua state; every block given to it runs in that
// state so globals set by one block are seen by the blocks after it,
// whichever file they come from. A block which returns a string (or a
// number) has that value spliced into the document; a block which returns
// nothing, nil or false splices nothing.
//
// As well as the standard Lua libraries the scripts can call:
//
//	print(...)   - writes its arguments to the evaluator's output
//	macro(name)  - returns the text of the named macro
//	expand(s)    - returns s with every ${name} replaced by its macro
//
// The macro functions are only available if a macro library is given.
package luaeval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nickwells/location.mod/location"
	"github.com/nickwells/preproc.mod/macros"
	"github.com/nickwells/preproc.mod/preproc"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Evaluator runs Lua code. It satisfies the preproc.Evaluator interface.
type Evaluator struct {
	l       *lua.LState
	out     io.Writer
	lib     *macros.Library
	globals map[string]string
}

// OptFunc is the type of an option that can be passed to New
type OptFunc func(e *Evaluator) error

// New creates a new Evaluator with a fresh Lua state. It should be closed
// when it is no longer needed.
func New(opts ...OptFunc) (*Evaluator, error) {
	e := &Evaluator{
		out:     os.Stdout,
		globals: make(map[string]string),
	}

	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}

	e.l = lua.NewState()
	e.l.SetGlobal("print", e.l.NewFunction(e.print))
	if e.lib != nil {
		e.l.SetGlobal("macro", e.l.NewFunction(e.macro))
		e.l.SetGlobal("expand", e.l.NewFunction(e.expand))
	}
	for k, v := range e.globals {
		e.l.SetGlobal(k, lua.LString(v))
	}

	return e, nil
}

// Output returns an OptFunc that sets where print writes. The default is
// the standard output.
func Output(w io.Writer) OptFunc {
	return func(e *Evaluator) error {
		if w == nil {
			return errors.New("the output writer must not be nil")
		}
		e.out = w
		return nil
	}
}

// Macros returns an OptFunc that makes the macros in the library
// available to the scripts
func Macros(lib *macros.Library) OptFunc {
	return func(e *Evaluator) error {
		e.lib = lib
		return nil
	}
}

// Global returns an OptFunc that sets a global string variable in the Lua
// state before any block runs
func Global(name, value string) OptFunc {
	return func(e *Evaluator) error {
		if name == "" {
			return errors.New("the global variable name must not be empty")
		}
		e.globals[name] = value
		return nil
	}
}

// Close releases the Lua state
func (e *Evaluator) Close() error {
	e.l.Close()
	return nil
}

// Eval runs the source as a Lua chunk with the given name. A chunk which
// cannot be parsed because the source ends before the statement does is
// reported as preproc.ErrIncomplete.
func (e *Evaluator) Eval(ctx context.Context, chunk, src string,
) (preproc.Value, error) {
	fn, err := e.l.Load(strings.NewReader(src), chunk)
	if err != nil {
		if incomplete(err) {
			return preproc.NoValue,
				fmt.Errorf("%w: %s", preproc.ErrIncomplete,
					strings.TrimSpace(err.Error()))
		}
		return preproc.NoValue, err
	}

	if ctx != nil {
		e.l.SetContext(ctx)
		defer e.l.RemoveContext()
	}

	base := e.l.GetTop()
	defer e.l.SetTop(base)

	e.l.Push(fn)
	if err := e.l.PCall(0, lua.MultRet, nil); err != nil {
		return preproc.NoValue, err
	}
	if e.l.GetTop() == base {
		return preproc.NoValue, nil
	}
	return toValue(e.l.Get(base + 1))
}

// ReturnLiteral returns a Lua return statement whose value is exactly the
// text
func (e *Evaluator) ReturnLiteral(text string) string {
	return "return " + Quote(text)
}

// toValue converts the value returned by a block
func toValue(lv lua.LValue) (preproc.Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return preproc.NoValue, nil
	case lua.LBool:
		if !bool(v) {
			return preproc.NoValue, nil
		}
	case lua.LString:
		return preproc.String(string(v)), nil
	case lua.LNumber:
		return preproc.String(v.String()), nil
	}
	return preproc.NoValue,
		fmt.Errorf("the block returned a %s, it should return a string",
			lv.Type())
}

// incomplete reports whether the error is a syntax error found at the end
// of the source
func incomplete(err error) bool {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) || apiErr.Type != lua.ApiErrorSyntax {
		return false
	}
	var perr *parse.Error
	if errors.As(apiErr.Cause, &perr) {
		return perr.Pos.Line == parse.EOF
	}
	return strings.Contains(apiErr.Error(), " at EOF:")
}

// print writes its arguments, separated by tabs, to the output
func (e *Evaluator) print(l *lua.LState) int {
	top := l.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, l.ToStringMeta(l.Get(i)).String())
	}
	fmt.Fprintln(e.out, strings.Join(parts, "\t"))
	return 0
}

func (e *Evaluator) macro(l *lua.LState) int {
	name := l.CheckString(1)
	val, err := e.lib.Find(name, callerLoc(l))
	if err != nil {
		l.RaiseError("%s", err)
		return 0
	}
	l.Push(lua.LString(val))
	return 1
}

func (e *Evaluator) expand(l *lua.LState) int {
	s := l.CheckString(1)
	val, err := e.lib.Substitute(s, callerLoc(l))
	if err != nil {
		l.RaiseError("%s", err)
		return 0
	}
	l.Push(lua.LString(val))
	return 1
}

// callerLoc returns the location of the Lua code calling a Go function
func callerLoc(l *lua.LState) *location.L {
	where := strings.TrimSuffix(l.Where(1), ":")
	if where == "" {
		where = "lua"
	}
	return location.New(where)
}
