package preproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/nickwells/preproc.mod/manifest"
)

// DfltOutDir is the default directory under which output is written
const DfltOutDir = "output"

// EvaluatorFactory makes the Evaluator for one run. If the Evaluator
// returned is also an io.Closer it is closed at the end of the run.
type EvaluatorFactory func() (Evaluator, error)

// Preprocessor runs the passes over a file and all the files it imports
//
// You should create a new Preprocessor with New, giving the evaluator
// factory and any other settings as options, and then call Run for each
// file to be processed. Each call of Run has its own Evaluator and its own
// record of visited modules.
type Preprocessor struct {
	fs       billy.Filesystem
	newEval  EvaluatorFactory
	depth    int
	root     string
	outDir   string
	ext      string
	keywords []string
	log      *slog.Logger
	store    manifest.Store
}

// OptFunc is the type of an option that can be passed to New
type OptFunc func(p *Preprocessor) error

// New creates a new Preprocessor. The Evaluators option must be given.
func New(opts ...OptFunc) (*Preprocessor, error) {
	p := &Preprocessor{
		depth:    MaxDepth,
		root:     ".",
		outDir:   DfltOutDir,
		ext:      DfltExt,
		keywords: DfltKeywords(),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, o := range opts {
		if err := o(p); err != nil {
			return nil, err
		}
	}

	if p.newEval == nil {
		return nil, errors.New("no evaluator has been given")
	}
	if p.fs == nil {
		p.fs = osfs.New(".")
	}
	if p.store == nil {
		p.store = manifest.NewMemory()
	}

	return p, nil
}

// Evaluators returns an OptFunc that sets the function used to make the
// Evaluator for each run
func Evaluators(f EvaluatorFactory) OptFunc {
	return func(p *Preprocessor) error {
		if f == nil {
			return errors.New("the evaluator factory must not be nil")
		}
		p.newEval = f
		return nil
	}
}

// FileSystem returns an OptFunc that sets the filesystem that files are
// read from and written to. By default it is the operating system's
// filesystem rooted at the current directory.
func FileSystem(fs billy.Filesystem) OptFunc {
	return func(p *Preprocessor) error {
		p.fs = fs
		return nil
	}
}

// Depth returns an OptFunc that sets the depth of the first pass
func Depth(d int) OptFunc {
	return func(p *Preprocessor) error {
		if d < 1 {
			return fmt.Errorf("bad depth (%d): it must be at least 1", d)
		}
		p.depth = d
		return nil
	}
}

// Root returns an OptFunc that sets the directory that slash-separated
// imports in the original files are resolved against
func Root(dir string) OptFunc {
	return func(p *Preprocessor) error {
		if dir == "" {
			return errors.New("the root directory must not be empty")
		}
		p.root = filepath.Clean(dir)
		return nil
	}
}

// OutDir returns an OptFunc that sets the directory under which the
// output files are written
func OutDir(dir string) OptFunc {
	return func(p *Preprocessor) error {
		dir = filepath.Clean(dir)
		if dir == "." || dir == "" {
			return errors.New(
				"the output directory must not be the current directory")
		}
		p.outDir = dir
		return nil
	}
}

// Ext returns an OptFunc that sets the extension of the source files
func Ext(ext string) OptFunc {
	return func(p *Preprocessor) error {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("bad extension %q: it must start with '.'", ext)
		}
		p.ext = ext
		return nil
	}
}

// Keywords returns an OptFunc that sets the words which start an import
// line
func Keywords(kw ...string) OptFunc {
	return func(p *Preprocessor) error {
		if len(kw) == 0 {
			return errors.New("at least one import keyword must be given")
		}
		p.keywords = append([]string(nil), kw...)
		return nil
	}
}

// Logger returns an OptFunc that sets the logger
func Logger(l *slog.Logger) OptFunc {
	return func(p *Preprocessor) error {
		p.log = l
		return nil
	}
}

// Manifest returns an OptFunc that sets the store in which the output
// files are recorded
func Manifest(s manifest.Store) OptFunc {
	return func(p *Preprocessor) error {
		p.store = s
		return nil
	}
}

// Result describes a completed run
type Result struct {
	RunID string
	Entry string
	// Output is the path of the fully processed entry file
	Output string
	// Missing is set if the entry file does not exist; nothing else is
	// done in that case
	Missing   bool
	Artifacts []manifest.Artifact
	Skipped   []Skipped
}

// Run processes the entry file at every depth from the first depth down
// to 1. The first pass reads the original files and writes its output
// under the output directory; each later pass reads and overwrites the
// output of the pass before. If the entry file does not exist this is
// reported and Run returns with no error.
func (p *Preprocessor) Run(ctx context.Context, entry string) (Result, error) {
	entry = filepath.Clean(entry)
	res := Result{
		RunID: fmt.Sprintf("%d", time.Now().UnixNano()),
		Entry: entry,
	}

	if _, err := p.fs.Stat(entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.log.Warn("file not found", "path", entry)
			res.Missing = true
			return res, nil
		}
		return res, ioErr("stat", entry, err)
	}

	ev, err := p.newEval()
	if err != nil {
		return res, fmt.Errorf("cannot make the evaluator: %w", err)
	}
	if c, ok := ev.(io.Closer); ok {
		defer c.Close()
	}

	r := &run{
		p:       p,
		ev:      ev,
		visited: NewVisited(),
		res:     &res,
	}

	pass := Pass{
		Root:     p.root,
		Out:      p.outDir,
		Ext:      p.ext,
		Keywords: p.keywords,
	}
	src := entry
	for d := p.depth; d >= 1; d-- {
		pass.Depth = d
		dest, err := r.pass(ctx, pass, src)
		if err != nil {
			return res, err
		}
		src = dest
		pass.Root, pass.Out = p.outDir, ""
	}
	res.Output = src

	return res, nil
}

// run holds the state shared by all the passes of one call of Run
type run struct {
	p       *Preprocessor
	ev      Evaluator
	visited *Visited
	res     *Result
}

// pass processes the entry and its closure at one depth. It returns the
// path the entry was written to.
func (r *run) pass(ctx context.Context, pass Pass, entry string,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	r.p.log.Info("pass start", "depth", pass.Depth, "entry", entry)

	plan, err := Closure(r.p.fs, pass, entry, r.visited)
	if err != nil {
		return "", err
	}
	for _, s := range plan.Skipped {
		r.p.log.Warn("imported file not found",
			"path", s.Path, "importedBy", s.ImportedBy, "line", s.Line,
			"depth", pass.Depth)
	}
	r.res.Skipped = append(r.res.Skipped, plan.Skipped...)

	for _, m := range plan.Modules {
		a, err := r.process(ctx, pass, m)
		if err != nil {
			return "", err
		}
		r.res.Artifacts = append(r.res.Artifacts, a)
	}

	r.p.log.Info("pass finish",
		"depth", pass.Depth,
		"modules", len(plan.Modules),
		"dur", time.Since(start))

	return pass.Dest(entry)
}

// process splices one module and writes the result
func (r *run) process(ctx context.Context, pass Pass, m Module,
) (manifest.Artifact, error) {
	sc, err := ScanText(m.Path, m.Text, pass.Depth)
	if err != nil {
		return manifest.Artifact{}, err
	}

	out, err := Splice(ctx, r.ev, m.Path, sc)
	if err != nil {
		return manifest.Artifact{}, err
	}

	dest, err := pass.Dest(m.Path)
	if err != nil {
		return manifest.Artifact{}, err
	}
	if err := r.write(dest, out); err != nil {
		return manifest.Artifact{}, err
	}

	a := manifest.Artifact{
		RunID:  r.res.RunID,
		Depth:  pass.Depth,
		Key:    m.Key.Path,
		Source: m.Path,
		Dest:   dest,
		Bytes:  len(out),
		Blocks: len(sc.Blocks),
	}
	if err := r.p.store.Record(a); err != nil {
		return a, fmt.Errorf("cannot record %s in the manifest: %w", dest, err)
	}

	r.p.log.Debug("module processed",
		"key", m.Key.String(), "dest", dest, "blocks", len(sc.Blocks))
	return a, nil
}

func (r *run) write(dest, text string) error {
	dir := filepath.Dir(dest)
	if dir != "." {
		if err := r.p.fs.MkdirAll(dir, 0o755); err != nil {
			return ioErr("create directory", dir, err)
		}
	}
	if err := util.WriteFile(r.p.fs, dest, []byte(text), 0o644); err != nil {
		return ioErr("write", dest, err)
	}
	return nil
}
