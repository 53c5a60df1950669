// Command preproc runs the preprocessor over a file and every local file it
// imports, writing the results under the output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nickwells/preproc.mod/config"
	"github.com/nickwells/preproc.mod/luaeval"
	"github.com/nickwells/preproc.mod/macros"
	"github.com/nickwells/preproc.mod/manifest"
	"github.com/nickwells/preproc.mod/preproc"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// stringsFlag collects the values of a repeated flag
type stringsFlag []string

func (s *stringsFlag) String() string { return strings.Join(*s, ",") }

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the whole of the command; it returns the exit status
func run(args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("preproc", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintln(stderr, "usage: preproc [flags] FILE")
		fset.PrintDefaults()
	}

	var (
		cfgPath   = fset.String("config", "", "YAML config file")
		depth     = fset.Int("depth", 0, "depth of the first pass (default 5)")
		root      = fset.String("root", "", "directory that dotted imports are found in (default .)")
		out       = fset.String("out", "", "output directory (default output)")
		ext       = fset.String("ext", "", "source file extension (default .py)")
		dbPath    = fset.String("manifest", "", "SQLite database recording the files written")
		logLevel  = fset.String("log-level", "", "log level: debug, info, warn or error")
		runCmd    = fset.String("run", "", "command to run the final output file with")
		macroDirs stringsFlag
		suffixes  stringsFlag
	)
	fset.Var(&macroDirs, "macro-dir", "directory of macro files (repeatable)")
	fset.Var(&suffixes, "macro-suffix", "suffix tried on macro file names (repeatable)")

	if err := fset.Parse(args); err != nil {
		return exitUsage
	}
	if fset.NArg() != 1 {
		fmt.Fprintln(stderr, "preproc: exactly one file must be given")
		fset.Usage()
		return exitUsage
	}

	cfg := config.Defaults()
	if *cfgPath != "" {
		fileCfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintln(stderr, "preproc:", err)
			return exitError
		}
		cfg = config.Merge(cfg, fileCfg)
	}
	cfg = config.Merge(cfg, config.Config{
		Depth:         *depth,
		Root:          *root,
		Out:           *out,
		Ext:           *ext,
		MacroDirs:     macroDirs,
		MacroSuffixes: suffixes,
		Manifest:      *dbPath,
		LogLevel:      *logLevel,
		Run:           *runCmd,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "preproc:", err)
		return exitError
	}

	logger := slog.New(slog.NewTextHandler(stderr,
		&slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	entry, err := relPath(fset.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, "preproc:", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := process(ctx, cfg, entry, stdout, logger)
	if err != nil {
		logger.Error("preprocessing failed", "path", entry, "error", err)
		fmt.Fprintln(stderr, "preproc:", err)
		return exitError
	}
	if res.Missing {
		fmt.Fprintf(stderr, "File not found: %s\n", entry)
		return exitOK
	}
	logger.Info("preprocessing complete",
		"output", res.Output,
		"files", len(res.Artifacts),
		"skipped", len(res.Skipped))

	if cfg.Run != "" {
		if err := handOff(ctx, cfg.Run, res.Output, stdout, stderr); err != nil {
			fmt.Fprintln(stderr, "preproc:", err)
			return exitError
		}
	}
	return exitOK
}

// process builds the preprocessor from the config and runs it
func process(ctx context.Context, cfg config.Config, entry string,
	stdout io.Writer, logger *slog.Logger,
) (preproc.Result, error) {
	lib, err := macroLibrary(cfg)
	if err != nil {
		return preproc.Result{}, err
	}

	evalOpts := []luaeval.OptFunc{
		luaeval.Output(stdout),
		luaeval.Macros(lib),
	}
	for k, v := range cfg.Globals {
		evalOpts = append(evalOpts, luaeval.Global(k, v))
	}

	var store manifest.Store = manifest.NewMemory()
	if cfg.Manifest != "" {
		s, err := manifest.NewSQLite(cfg.Manifest)
		if err != nil {
			return preproc.Result{},
				fmt.Errorf("cannot open the manifest %s: %w", cfg.Manifest, err)
		}
		store = s
	}
	defer store.Close()

	p, err := preproc.New(
		preproc.Evaluators(func() (preproc.Evaluator, error) {
			e, err := luaeval.New(evalOpts...)
			if err != nil {
				return nil, err
			}
			return e, nil
		}),
		preproc.Depth(cfg.Depth),
		preproc.Root(cfg.Root),
		preproc.OutDir(cfg.Out),
		preproc.Ext(cfg.Ext),
		preproc.Keywords(cfg.Keywords...),
		preproc.Logger(logger),
		preproc.Manifest(store),
	)
	if err != nil {
		return preproc.Result{}, err
	}

	return p.Run(ctx, entry)
}

// macroLibrary makes the macro library from the configured directories
func macroLibrary(cfg config.Config) (*macros.Library, error) {
	var opts []macros.OptFunc
	if len(cfg.MacroDirs) > 0 {
		opts = append(opts, macros.Dirs(cfg.MacroDirs...))
	}
	for _, s := range cfg.MacroSuffixes {
		opts = append(opts, macros.Suffix(s))
	}
	return macros.New(opts...)
}

// handOff runs the command with the output file as its last argument
func handOff(ctx context.Context, command, output string,
	stdout, stderr io.Writer,
) error {
	words := strings.Fields(command)
	if len(words) == 0 {
		return errors.New("the run command is empty")
	}
	cmd := exec.CommandContext(ctx, words[0], append(words[1:], output)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", command, output, err)
	}
	return nil
}

// relPath returns the path relative to the current directory
func relPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return "", fmt.Errorf("%s is not below the current directory: %w",
			path, err)
	}
	return rel, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
