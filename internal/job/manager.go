package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sitedoc/internal/sitemap"
	"sitedoc/pkg/types"
)

var (
	// ErrMaxConcurrency signals that the concurrent job limit has been reached.
	ErrMaxConcurrency = errors.New("maximum concurrent jobs reached")
	// ErrNotFound is returned for unknown job identifiers.
	ErrNotFound = errors.New("job not found")
)

// Runner executes one conversion run end to end. The production runner is
// Pipeline; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, j *Job) (*types.ConversionResult, error)
}

// Manager admits new jobs under the concurrency bound, runs each on its own
// goroutine, and serves lookups through the store. Finished jobs stay in the
// store so status and results remain queryable until shutdown.
type Manager struct {
	mu             sync.Mutex
	running        int
	maxConcurrency int

	store   Store
	runner  Runner
	rootCtx context.Context
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewManager constructs a manager over the given runner and store. A nil
// store gets an in-memory one.
func NewManager(runner Runner, store Store, maxConcurrency int, rootCtx context.Context, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:          store,
		maxConcurrency: maxConcurrency,
		runner:         runner,
		rootCtx:        rootCtx,
		logger:         logger,
	}
}

// Submit validates the request, registers a job, and starts it. The job id is
// returned immediately; progress flows through snapshots and subscriptions.
func (m *Manager) Submit(req Request) (*Job, error) {
	normalized, err := sitemap.NormalizeURL(strings.TrimSpace(req.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	req.URL = normalized
	req.Options.Normalize()

	id := uuid.NewString()
	j := newJob(id, req)

	m.mu.Lock()
	if m.running >= m.maxConcurrency {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	m.running++
	m.mu.Unlock()
	m.store.Set(id, j)

	runCtx, cancel := context.WithCancel(m.rootCtx)
	j.start(cancel)
	j.setStatus(types.StatusStarting, 0, nil)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		result, err := m.runner.Run(runCtx, j)

		m.mu.Lock()
		if m.running > 0 {
			m.running--
		}
		m.mu.Unlock()

		j.finish(result, err)
		if err != nil {
			m.logger.Warn("job finished with error", "job_id", id, "url", req.URL, "error", err)
		} else {
			m.logger.Info("job finished", "job_id", id, "url", req.URL, "status", j.Snapshot().Status)
		}
	}()

	return j, nil
}

// Get returns the job by id.
func (m *Manager) Get(id string) (*Job, bool) {
	return m.store.Get(strings.TrimSpace(id))
}

// List returns snapshots of all known jobs, newest first.
func (m *Manager) List() []Snapshot {
	jobs := m.store.List()
	snapshots := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		snapshots = append(snapshots, j.Snapshot())
	}
	sort.Slice(snapshots, func(a, b int) bool {
		return snapshots[a].CreatedAt.After(snapshots[b].CreatedAt)
	})
	return snapshots
}

// Cancel requests a graceful stop of the job.
func (m *Manager) Cancel(id string) error {
	j, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !j.Cancel() {
		return fmt.Errorf("job %q already finished", id)
	}
	return nil
}

// Shutdown aborts all running jobs, waits for their cleanup to finish, and
// drops the registry.
func (m *Manager) Shutdown() {
	jobs := m.store.List()
	for _, j := range jobs {
		j.mu.Lock()
		cancel := j.cancel
		j.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	m.wg.Wait()

	for _, j := range jobs {
		m.store.Delete(j.ID())
	}
}
