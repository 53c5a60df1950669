// Package config loads the settings of a preprocessor run from a YAML file
// and merges them with the values given on the command line.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nickwells/check.mod/v2/check"
	"github.com/nickwells/filecheck.mod/filecheck"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a run
type Config struct {
	Depth         int               `yaml:"depth,omitempty"`
	Root          string            `yaml:"root,omitempty"`
	Out           string            `yaml:"out,omitempty"`
	Ext           string            `yaml:"ext,omitempty"`
	Keywords      []string          `yaml:"keywords,omitempty"`
	MacroDirs     []string          `yaml:"macro_dirs,omitempty"`
	MacroSuffixes []string          `yaml:"macro_suffixes,omitempty"`
	Globals       map[string]string `yaml:"globals,omitempty"`
	Manifest      string            `yaml:"manifest,omitempty"`
	LogLevel      string            `yaml:"log_level,omitempty"`
	Run           string            `yaml:"run,omitempty"`
}

// Defaults returns the settings used when neither the config file nor the
// command line give a value
func Defaults() Config {
	return Config{
		Depth:    5,
		Root:     ".",
		Out:      "output",
		Ext:      ".py",
		Keywords: []string{"import", "from"},
		LogLevel: "info",
	}
}

// Load reads the config file at the given path. The file must exist.
func Load(path string) (Config, error) {
	es := filecheck.Provisos{Existence: filecheck.MustExist}
	if err := es.StatusCheck(path); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse decodes the YAML config from the reader. Unknown keys are an
// error. An empty document gives an empty Config.
func Parse(r io.Reader, name string) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse %s: %w", name, err)
	}
	return cfg, nil
}

// Merge returns the base settings overridden by every value that is set in
// over. Lists and maps are replaced, not merged.
func Merge(base, over Config) Config {
	out := base
	if over.Depth != 0 {
		out.Depth = over.Depth
	}
	if over.Root != "" {
		out.Root = over.Root
	}
	if over.Out != "" {
		out.Out = over.Out
	}
	if over.Ext != "" {
		out.Ext = over.Ext
	}
	if len(over.Keywords) > 0 {
		out.Keywords = append([]string(nil), over.Keywords...)
	}
	if len(over.MacroDirs) > 0 {
		out.MacroDirs = append([]string(nil), over.MacroDirs...)
	}
	if len(over.MacroSuffixes) > 0 {
		out.MacroSuffixes = append([]string(nil), over.MacroSuffixes...)
	}
	if len(over.Globals) > 0 {
		out.Globals = make(map[string]string, len(over.Globals))
		for k, v := range over.Globals {
			out.Globals[k] = v
		}
	}
	if over.Manifest != "" {
		out.Manifest = over.Manifest
	}
	if strings.TrimSpace(over.LogLevel) != "" {
		out.LogLevel = strings.TrimSpace(over.LogLevel)
	}
	if over.Run != "" {
		out.Run = over.Run
	}
	return out
}

// Validate checks that the settings are usable
func (c Config) Validate() error {
	if c.Depth < 1 {
		return fmt.Errorf("config: bad depth (%d): it must be at least 1",
			c.Depth)
	}
	if !strings.HasPrefix(c.Ext, ".") {
		return fmt.Errorf("config: bad extension %q: it must start with '.'",
			c.Ext)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: bad log level %q", c.LogLevel)
	}

	es := filecheck.Provisos{
		Checks:    []check.FileInfo{check.FileInfoIsDir},
		Existence: filecheck.MustExist,
	}
	if err := es.StatusCheck(c.Root); err != nil {
		return fmt.Errorf("config: root: %w", err)
	}
	return nil
}
