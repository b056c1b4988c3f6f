package job

import "sync"

// Store is the registry shared across concurrent jobs. It is keyed by job id
// with plain insert/lookup/delete; each job's mutable state lives inside the
// Job itself, so implementations only guard the map.
type Store interface {
	Get(id string) (*Job, bool)
	Set(id string, j *Job)
	Delete(id string)
	List() []*Job
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore returns an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *MemoryStore) Set(id string, j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = j
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *MemoryStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}
