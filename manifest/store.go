// Package manifest records the files written by a preprocessor run.
package manifest

// Artifact describes one output file written by a run
type Artifact struct {
	RunID  string
	Depth  int
	Key    string
	Source string
	Dest   string
	Bytes  int
	Blocks int
}

// Store is the interface for artifact persistence.
type Store interface {
	// Record adds the artifact to the store.
	Record(a Artifact) error
	// Artifacts returns the artifacts recorded for the run, in the order
	// they were recorded.
	Artifacts(runID string) ([]Artifact, error)
	// Close releases resources.
	Close() error
}
