package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdir moves to the directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal("cannot get the working directory:", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal("cannot change directory:", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestRunUsage(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "no file", args: []string{}},
		{name: "two files", args: []string{"a.py", "b.py"}},
		{name: "bad flag", args: []string{"-nosuchflag", "a.py"}},
	}

	for _, tc := range testCases {
		var stdout, stderr bytes.Buffer
		if got := run(tc.args, &stdout, &stderr); got != exitUsage {
			t.Errorf("%s: expected exit status %d, got %d",
				tc.name, exitUsage, got)
		}
		if !strings.Contains(stderr.String(), "usage: preproc") {
			t.Errorf("%s: expected the usage message, got: %q",
				tc.name, stderr.String())
		}
	}
}

func TestRunMissingFile(t *testing.T) {
	chdir(t, t.TempDir())

	var stdout, stderr bytes.Buffer
	if got := run([]string{"nosuch.py"}, &stdout, &stderr); got != exitOK {
		t.Fatalf("expected exit status %d, got %d (%s)",
			exitOK, got, stderr.String())
	}
	if !strings.Contains(stderr.String(), "File not found: nosuch.py") {
		t.Errorf("expected a not-found report, got: %q", stderr.String())
	}
}

func TestRunBadConfig(t *testing.T) {
	chdir(t, t.TempDir())

	var stdout, stderr bytes.Buffer
	got := run([]string{"-ext", "py", "main.py"},
		&stdout, &stderr)
	if got != exitError {
		t.Errorf("expected exit status %d, got %d", exitError, got)
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	src := "x = 1\n" +
		`"""%% return "y = " .. 1 + 1 %%"""` + "\n" +
		`"""% print("hello") %"""` + "\n"
	if err := os.WriteFile("main.py", []byte(src), 0o644); err != nil {
		t.Fatal("cannot write the source file:", err)
	}

	var stdout, stderr bytes.Buffer
	got := run([]string{"-depth", "2", "-out", "build",
		"-manifest", filepath.Join(dir, "manifest.db"), "main.py"},
		&stdout, &stderr)
	if got != exitOK {
		t.Fatalf("expected exit status %d, got %d (%s)",
			exitOK, got, stderr.String())
	}

	out, err := os.ReadFile(filepath.Join("build", "main.py"))
	if err != nil {
		t.Fatal("cannot read the output:", err)
	}
	if exp := "x = 1\ny = 2\n\n"; string(out) != exp {
		t.Errorf("expected output %q, got %q", exp, string(out))
	}
	if exp := "hello\n"; stdout.String() != exp {
		t.Errorf("expected stdout %q, got %q", exp, stdout.String())
	}
}
