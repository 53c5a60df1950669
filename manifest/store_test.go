package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func testArtifacts() []Artifact {
	return []Artifact{
		{RunID: "r1", Depth: 5, Key: "main", Source: "main.py",
			Dest: "output/main.py", Bytes: 10, Blocks: 2},
		{RunID: "r2", Depth: 5, Key: "main", Source: "main.py",
			Dest: "output/main.py", Bytes: 11, Blocks: 0},
		{RunID: "r1", Depth: 4, Key: "main", Source: "output/main.py",
			Dest: "output/main.py", Bytes: 9, Blocks: 1},
	}
}

func checkStore(t *testing.T, s Store) {
	t.Helper()

	for _, a := range testArtifacts() {
		if err := s.Record(a); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := s.Artifacts("r1")
	if err != nil {
		t.Fatalf("Artifacts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 artifacts for r1, got %d", len(got))
	}
	exp := testArtifacts()
	if got[0] != exp[0] || got[1] != exp[2] {
		t.Errorf("unexpected artifacts: %+v", got)
	}

	got, err = s.Artifacts("none")
	if err != nil {
		t.Fatalf("Artifacts failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no artifacts for an unknown run, got %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	checkStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	checkStore(t, s)

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 || runs[0] != "r1" || runs[1] != "r2" {
		t.Errorf("expected runs [r1 r2], got %v", runs)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// reopening keeps what was recorded
	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer s.Close()
	got, err := s.Artifacts("r2")
	if err != nil {
		t.Fatalf("Artifacts failed: %v", err)
	}
	if len(got) != 1 || got[0].Bytes != 11 {
		t.Errorf("unexpected artifacts after reopen: %+v", got)
	}
}

func TestSQLiteStoreBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	if err := s.setMetadataUnlocked("schema_version", "99"); err != nil {
		t.Fatalf("setMetadata failed: %v", err)
	}
	s.Close()

	if _, err := NewSQLite(path); err == nil {
		t.Error("expected an error for an unsupported schema version")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("the database file should still exist: %v", err)
	}
}
