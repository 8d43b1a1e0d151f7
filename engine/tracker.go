package engine

import (
	"sync"
	"time"

	"github.com/franksops/gobak/progress"
	"github.com/franksops/gobak/store"
)

// CheckpointConfig defines when the bytes of a running job are persisted.
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker records job state transitions in the journal:
// Pending, InProgress, then Completed or Failed.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
	now    func() time.Time
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
		now:    time.Now,
	}
}

// InitJob records a pending job.
func (jt *JobTracker) InitJob(job TransferJob) error {
	return jt.store.SaveJob(&store.JobRecord{
		ID:          job.ID,
		RunID:       job.RunID,
		SourcePath:  job.SourcePath,
		Destination: job.Destination,
		RemoteKey:   job.RemoteKey,
		State:       store.StatePending,
		TotalBytes:  job.TotalBytes,
		StartedAt:   jt.now(),
	})
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	return jt.store.SaveJob(record)
}

// MarkInProgress updates a job's state to InProgress
func (jt *JobTracker) MarkInProgress(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted updates a job's state to Completed
func (jt *JobTracker) MarkCompleted(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = r.TotalBytes
		r.FinishedAt = jt.now()
	})
}

// MarkFailed updates a job's state to Failed with an error message
func (jt *JobTracker) MarkFailed(jobID string, err error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
		r.FinishedAt = jt.now()
	})
}

// TrackedSink is a progress.Sink that checkpoints the transferred bytes of
// one job into the journal. Save failures are ignored; the final state is
// written by MarkCompleted or MarkFailed.
type TrackedSink struct {
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	bytes           int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

var _ progress.Sink = (*TrackedSink)(nil)

// Sink returns a TrackedSink for jobID.
func (jt *JobTracker) Sink(jobID string) *TrackedSink {
	return &TrackedSink{
		tracker:         jt,
		jobID:           jobID,
		lastCheckpointT: jt.now(),
	}
}

func (ts *TrackedSink) Start(string, int64) {
	ts.mu.Lock()
	ts.bytes = 0
	ts.lastCheckpoint = 0
	ts.lastCheckpointT = ts.tracker.now()
	ts.mu.Unlock()
}

func (ts *TrackedSink) Add(n int64) {
	if n <= 0 {
		return
	}
	ts.mu.Lock()
	ts.bytes += n
	cfg := ts.tracker.config
	needsCheckpoint := ts.bytes-ts.lastCheckpoint >= cfg.BytesInterval ||
		ts.tracker.now().Sub(ts.lastCheckpointT) >= cfg.TimeInterval
	current := ts.bytes
	ts.mu.Unlock()

	if needsCheckpoint {
		ts.checkpoint(current)
	}
}

// Finish checkpoints how far a failed job got. A successful job gets its
// total from MarkCompleted.
func (ts *TrackedSink) Finish(err error) {
	if err != nil {
		ts.checkpoint(ts.Bytes())
	}
}

func (ts *TrackedSink) checkpoint(bytes int64) {
	err := ts.tracker.update(ts.jobID, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})
	if err != nil {
		return
	}
	ts.mu.Lock()
	ts.lastCheckpoint = bytes
	ts.lastCheckpointT = ts.tracker.now()
	ts.mu.Unlock()
}

// Bytes returns the number of bytes reported so far.
func (ts *TrackedSink) Bytes() int64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.bytes
}
