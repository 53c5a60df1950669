package manifest

import "sync"

// Memory is an in-memory store. It is the default store of a run.
type Memory struct {
	mu   sync.RWMutex
	recs []Artifact
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Record adds the artifact to the store.
func (m *Memory) Record(a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, a)
	return nil
}

// Artifacts returns the artifacts recorded for the run.
func (m *Memory) Artifacts(runID string) ([]Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var as []Artifact
	for _, a := range m.recs {
		if a.RunID == runID {
			as = append(as, a)
		}
	}
	return as, nil
}

// Close is a no-op for memory store.
func (m *Memory) Close() error {
	return nil
}
