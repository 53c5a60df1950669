package macros

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nickwells/check.mod/v2/check"
	"github.com/nickwells/filecheck.mod/filecheck"
	"github.com/nickwells/location.mod/location"
)

// DfltMStart is the default start string for a macro
// DfltMEnd is the default end string for a macro
//
// They are used by Substitute to find macro names in the string to be
// substituted
const (
	DfltMStart = "${"
	DfltMEnd   = "}"
)

// Library records the named snippets available to preprocessor scripts
//
// You should create a new Library with New, giving any macro directories
// and suffixes as options, before looking up or substituting values.
//
// You can then use Find to get the text of a macro or use Substitute to
// replace any macro names in the passed text
type Library struct {
	mMap     map[string]string
	mDirs    []string
	suffixes []string
	mStart   string
	mEnd     string
}

// OptFunc is the type of an option that can be passed to New
type OptFunc func(l *Library) error

// New creates a new Library object.
func New(opts ...OptFunc) (*Library, error) {
	l := &Library{
		mMap:     make(map[string]string),
		mDirs:    make([]string, 0),
		suffixes: []string{""},
		mStart:   DfltMStart,
		mEnd:     DfltMEnd,
	}

	for _, o := range opts {
		if err := o(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Dirs returns an OptFunc that will add the directory names to the,
// initially empty, set of directories to be searched. Each of the passed
// values must be a directory, an error will be returned if not and none of
// the passed values will be added.
func Dirs(dirs ...string) OptFunc {
	return func(l *Library) error {
		if len(dirs) == 0 {
			return errors.New("at least one macros directory must be passed")
		}

		es := filecheck.Provisos{
			Checks:    []check.FileInfo{check.FileInfoIsDir},
			Existence: filecheck.MustExist,
		}
		for _, dir := range dirs {
			if err := es.StatusCheck(dir); err != nil {
				return err
			}
		}

		l.mDirs = append(l.mDirs, dirs...)
		return nil
	}
}

// Suffix returns an OptFunc that will add a suffix to the list of strings to
// be tried as suffixes. Any suffix must be complete and include the
// separator (if any). For instance ".lua". The suffixes are tried in the
// order they are added and there is always a first, empty suffix so that a
// macro name will always match a file with the exact same name.
func Suffix(suffix string) OptFunc {
	return func(l *Library) error {
		if strings.ContainsRune(suffix, filepath.Separator) {
			return fmt.Errorf("bad macro suffix %q: it must not contain %q",
				suffix, filepath.Separator)
		}
		l.suffixes = append(l.suffixes, suffix)

		return nil
	}
}

// StartEndStr returns an OptFunc that will change the strings that are used
// to bracket a macro. The values given will be used in Substitute to find
// the macro. The default values are given by DfltMStart and DfltMEnd
func StartEndStr(start, end string) OptFunc {
	return func(l *Library) error {
		if start == "" || end == "" {
			return errors.New("the macro start and end strings must not be empty")
		}
		l.mStart = start
		l.mEnd = end

		return nil
	}
}

// Define adds a named macro to the library, replacing any previous value
func (l *Library) Define(name, value string) {
	l.mMap[name] = value
}

// Names returns the sorted names of the macros found so far
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.mMap))
	for n := range l.mMap {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Find searches for the macro name in the library. If it is not found and
// there are macro directories to be searched then it will search for a
// matching file name and return the contents if it finds it. If no matching
// macro is found an error is returned
func (l *Library) Find(mName string, loc *location.L) (string, error) {
	if macro, ok := l.mMap[mName]; ok {
		return macro, nil
	}

	if mName == "" || strings.ContainsAny(mName, `/\`) || mName == ".." {
		return "", fmt.Errorf("Bad macro name %q at %s", mName, loc)
	}

	for _, fd := range l.mDirs {
		for _, suffix := range l.suffixes {
			macro, err := os.ReadFile(filepath.Join(fd, mName+suffix))
			if err == nil {
				l.mMap[mName] = string(macro)
				return l.mMap[mName], nil
			}
		}
	}

	errStr := fmt.Sprintf("Macro '%s' at %s was not found", mName, loc)
	if len(l.mDirs) == 1 {
		errStr += " in the macro directory: " + l.mDirs[0]
	} else if len(l.mDirs) > 1 {
		errStr += " in any of the macro directories: " +
			strings.Join(l.mDirs, ", ")
	}

	return "", errors.New(errStr)
}

// Substitute searches the text for macros and replaces them with the
// corresponding value. If a macro is not well-formed (is not terminated
// properly) or cannot be found in the library or any of the macro
// directories then an error is returned. Macros do not nest and the
// substituted text is not searched again.
func (l *Library) Substitute(text string, loc *location.L) (string, error) {
	var b strings.Builder

	parts := strings.SplitN(text, l.mStart, 2)
	b.WriteString(parts[0])
	for len(parts) == 2 {
		parts = strings.SplitN(parts[1], l.mEnd, 2)

		if len(parts) != 2 {
			return "", fmt.Errorf("Bad macro at %s:"+
				" a macro was started with '%s'"+
				" but not finished with '%s'",
				loc, l.mStart, l.mEnd)
		}
		macro, err := l.Find(parts[0], loc)
		if err != nil {
			return "", err
		}
		b.WriteString(macro)

		parts = strings.SplitN(parts[1], l.mStart, 2)
		b.WriteString(parts[0])
	}
	return b.String(), nil
}
