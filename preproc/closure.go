package preproc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// DfltExt is the default extension of the host language source files
const DfltExt = ".py"

// DfltKeywords returns the default keywords that start an import line
func DfltKeywords() []string {
	return []string{"import", "from"}
}

// ModuleKey identifies a module processed at some depth. The Path is the
// slash-separated path relative to the root of the pass with the file
// extension removed.
type ModuleKey struct {
	Depth int
	Path  string
}

// String returns the key in the form depth:path
func (k ModuleKey) String() string {
	return fmt.Sprintf("%d:%s", k.Depth, k.Path)
}

// Visited records the modules that have been processed in a run. It is
// created by the top-level run and passed to every pass of that run.
type Visited struct {
	seen  map[ModuleKey]bool
	order []ModuleKey
}

// NewVisited returns an empty Visited set
func NewVisited() *Visited {
	return &Visited{seen: make(map[ModuleKey]bool)}
}

// Mark records the key. It returns false if the key was already present.
func (v *Visited) Mark(k ModuleKey) bool {
	if v.seen[k] {
		return false
	}
	v.seen[k] = true
	v.order = append(v.order, k)
	return true
}

// Seen reports whether the key has been recorded
func (v *Visited) Seen(k ModuleKey) bool { return v.seen[k] }

// Keys returns the recorded keys in the order they were marked
func (v *Visited) Keys() []ModuleKey {
	return append([]ModuleKey(nil), v.order...)
}

// Import is a module name found on an import line
type Import struct {
	Name string
	Line int
}

// Imports returns the module named on each line whose first word is one of
// the keywords. The name is the second word with any trailing ',' or ';'
// removed and with '.' replaced by '/'.
func Imports(text string, keywords []string) []Import {
	var imps []Import
	for i, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		if len(words) < 2 {
			continue
		}
		for _, kw := range keywords {
			if words[0] != kw {
				continue
			}
			name := strings.TrimRight(words[1], ",;")
			name = strings.ReplaceAll(name, ".", "/")
			if strings.Trim(name, "/") != "" {
				imps = append(imps, Import{Name: name, Line: i + 1})
			}
			break
		}
	}
	return imps
}

// Pass describes one preprocessing pass over a set of files
type Pass struct {
	Depth int
	// Root is the directory against which slash-separated module names
	// are resolved and relative to which module keys are formed
	Root string
	// Out is the directory under which the output is written, mirroring
	// the path relative to Root. If it is empty each file is overwritten.
	Out      string
	Ext      string
	Keywords []string
}

// rel returns the clean path relative to the pass root
func (p Pass) rel(path string) (string, error) {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		return "", badPathf(path, "not under the root %q: %v", p.Root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", badPathf(path, "not under the root %q", p.Root)
	}
	return rel, nil
}

// Key returns the module key for the file
func (p Pass) Key(path string) (ModuleKey, error) {
	rel, err := p.rel(path)
	if err != nil {
		return ModuleKey{}, err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return ModuleKey{Depth: p.Depth, Path: filepath.ToSlash(rel)}, nil
}

// Dest returns the path to which the processed file is written
func (p Pass) Dest(path string) (string, error) {
	if p.Out == "" {
		return filepath.Clean(path), nil
	}
	rel, err := p.rel(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.Out, rel), nil
}

// Candidates returns the files that the named module, imported by the
// file 'from', may correspond to. A name with a '/' in it is found under
// the pass root, any other name in the directory of the importing file. A
// name which leads with '/' (a relative import) is always found in the
// directory of the importing file. If the path found is a directory every
// file in it with the pass extension is a candidate, otherwise the path
// with the extension added is.
func (p Pass) Candidates(fs billy.Filesystem, from, name string,
) ([]string, error) {
	dir := filepath.Dir(from)
	if from == "" || dir == "" {
		return nil, badPathf(from, "no parent directory")
	}

	base := filepath.Join(dir, name)
	if strings.Contains(strings.Trim(name, "/"), "/") &&
		!strings.HasPrefix(name, "/") {
		base = filepath.Join(p.Root, name)
	}

	info, err := fs.Stat(base)
	if err != nil || !info.IsDir() {
		return []string{base + p.Ext}, nil
	}

	entries, err := fs.ReadDir(base)
	if err != nil {
		return nil, ioErr("read directory", base, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != p.Ext {
			continue
		}
		paths = append(paths, filepath.Join(base, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Module is a file to be processed in a pass
type Module struct {
	Key  ModuleKey
	Path string
	// Text is the content of the file before any processing
	Text string
	// ImportedBy is the file whose import found this module. It is empty
	// for the entry file of the pass.
	ImportedBy string
}

// Skipped records an imported module with no file
type Skipped struct {
	Path       string
	ImportedBy string
	Line       int
}

// Plan lists the modules to be processed in a pass, in order
type Plan struct {
	Modules []Module
	Skipped []Skipped
}

// Closure reads the entry file and, recursively, every file it imports
// and returns them in the order they are to be processed: each file is
// followed by the closures of its imports in the order the imports appear.
// A module whose key has already been visited is not repeated. The entry
// file must exist but a missing imported file is only recorded as Skipped.
// Nothing is written.
func Closure(fs billy.Filesystem, p Pass, entry string, v *Visited,
) (Plan, error) {
	c := closer{fs: fs, pass: p, visited: v}

	entry = filepath.Clean(entry)
	k, err := p.Key(entry)
	if err != nil {
		return Plan{}, err
	}
	v.Mark(k)

	if err := c.visit(k, entry, "", 0); err != nil {
		return Plan{}, err
	}
	return c.plan, nil
}

type closer struct {
	fs      billy.Filesystem
	pass    Pass
	visited *Visited
	plan    Plan
}

func (c *closer) visit(k ModuleKey, path, by string, line int) error {
	data, err := util.ReadFile(c.fs, path)
	if err != nil {
		if by != "" && errors.Is(err, os.ErrNotExist) {
			c.plan.Skipped = append(c.plan.Skipped,
				Skipped{Path: path, ImportedBy: by, Line: line})
			return nil
		}
		return ioErr("read", path, err)
	}

	text := string(data)
	c.plan.Modules = append(c.plan.Modules,
		Module{Key: k, Path: path, Text: text, ImportedBy: by})

	for _, imp := range Imports(text, c.pass.Keywords) {
		paths, err := c.pass.Candidates(c.fs, path, imp.Name)
		if err != nil {
			return err
		}
		for _, cand := range paths {
			ck, err := c.pass.Key(cand)
			if err != nil {
				return err
			}
			if !c.visited.Mark(ck) {
				continue
			}
			if err := c.visit(ck, cand, path, imp.Line); err != nil {
				return err
			}
		}
	}
	return nil
}
