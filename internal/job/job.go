package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"sitedoc/pkg/types"
)

// Request describes one conversion job: the page to start from and the
// normalized per-job options.
type Request struct {
	URL     string                  `json:"url"`
	Options types.ConversionOptions `json:"options"`
}

// Snapshot is a point-in-time copy of a job's public state.
type Snapshot struct {
	ID          string                  `json:"id"`
	URL         string                  `json:"url"`
	Options     types.ConversionOptions `json:"options"`
	Status      types.JobStatus         `json:"status"`
	Progress    int                     `json:"progress"`
	WebsiteData *types.WebsiteData      `json:"website_data,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// Job tracks the lifecycle of one conversion run. All state transitions go
// through setStatus/finish so subscribers see every step and progress never
// moves backwards.
type Job struct {
	id      string
	url     string
	options types.ConversionOptions

	mu          sync.Mutex
	status      types.JobStatus
	progress    int
	website     *types.WebsiteData
	lastError   string
	result      *types.ConversionResult
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	cancel      context.CancelFunc
	cancelReq   bool
	processed   map[string]struct{}

	subMu       sync.RWMutex
	subscribers map[chan types.ProgressEvent]struct{}
}

func newJob(id string, req Request) *Job {
	return &Job{
		id:          id,
		url:         req.URL,
		options:     req.Options,
		status:      types.StatusStarting,
		createdAt:   time.Now(),
		processed:   make(map[string]struct{}),
		subscribers: make(map[chan types.ProgressEvent]struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// URL returns the root URL the job converts.
func (j *Job) URL() string { return j.url }

// Options returns the normalized job options.
func (j *Job) Options() types.ConversionOptions { return j.options }

// Result returns the final result once the job completed, nil otherwise.
func (j *Job) Result() *types.ConversionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Snapshot returns a copy of the public job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        j.id,
		URL:       j.url,
		Options:   j.options,
		Status:    j.status,
		Progress:  j.progress,
		Error:     j.lastError,
		CreatedAt: j.createdAt,
	}
	if j.website != nil {
		data := *j.website
		snap.WebsiteData = &data
	}
	if j.startedAt != nil {
		started := *j.startedAt
		snap.StartedAt = &started
	}
	if j.completedAt != nil {
		completed := *j.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// Cancel requests a graceful stop. The current page finishes and the job
// assembles whatever it has; only a manager shutdown aborts mid-page.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.cancelReq = true
	j.mu.Unlock()
	return true
}

// CancelRequested reports whether a graceful cancel is pending. The page loop
// checks it once per page, before starting work on the next one.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelReq
}

// MarkProcessed records that the page has been converted for this job.
func (j *Job) MarkProcessed(pageURL string) {
	j.mu.Lock()
	j.processed[pageURL] = struct{}{}
	j.mu.Unlock()
}

// AlreadyProcessed reports whether the page was converted in an earlier pass
// over this job, so repeated runs never fetch it again.
func (j *Job) AlreadyProcessed(pageURL string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.processed[pageURL]
	return ok
}

func (j *Job) start(cancel context.CancelFunc) {
	now := time.Now()
	j.mu.Lock()
	j.startedAt = &now
	j.cancel = cancel
	j.mu.Unlock()
}

// setStatus transitions the job and broadcasts a progress event. Progress is
// clamped so it never decreases; terminal states are never overwritten.
func (j *Job) setStatus(status types.JobStatus, progress int, data *types.WebsiteData) {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.status = status
	if progress > j.progress {
		j.progress = progress
	}
	if data != nil {
		copied := *data
		j.website = &copied
	}
	j.mu.Unlock()

	j.broadcast()
}

// finish records the terminal state for the run outcome and releases the
// cancel func. Called exactly once per run, from the manager goroutine.
func (j *Job) finish(result *types.ConversionResult, err error) {
	now := time.Now()
	j.mu.Lock()
	j.completedAt = &now
	j.cancel = nil
	switch {
	case errors.Is(err, context.Canceled):
		j.status = types.StatusCancelled
		j.lastError = "job cancelled"
	case err != nil:
		j.status = types.StatusFailed
		j.lastError = err.Error()
	default:
		j.status = types.StatusCompleted
		j.progress = 100
		j.result = result
	}
	j.mu.Unlock()

	j.broadcast()
	j.closeSubscribers()
}

// Subscribe registers a progress listener. The returned cancel func must be
// called; slow listeners miss events rather than blocking the job.
func (j *Job) Subscribe() (<-chan types.ProgressEvent, func()) {
	ch := make(chan types.ProgressEvent, 16)

	j.subMu.Lock()
	terminal := false
	j.mu.Lock()
	terminal = j.status.Terminal()
	j.mu.Unlock()
	if !terminal {
		j.subscribers[ch] = struct{}{}
	}
	j.subMu.Unlock()

	select {
	case ch <- j.event():
	default:
	}
	if terminal {
		close(ch)
		return ch, func() {}
	}

	cancel := func() {
		j.subMu.Lock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
		j.subMu.Unlock()
	}
	return ch, cancel
}

func (j *Job) event() types.ProgressEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	evt := types.ProgressEvent{
		JobID:     j.id,
		Status:    j.status,
		Progress:  j.progress,
		Error:     j.lastError,
		Timestamp: time.Now(),
	}
	if j.website != nil {
		data := *j.website
		evt.WebsiteData = &data
	}
	return evt
}

func (j *Job) broadcast() {
	evt := j.event()
	j.subMu.RLock()
	defer j.subMu.RUnlock()
	for ch := range j.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (j *Job) closeSubscribers() {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for ch := range j.subscribers {
		delete(j.subscribers, ch)
		close(ch)
	}
}
