package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/linuxmatters/jivecanvas/internal/export"
)

// JobState is the lifecycle of an export job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ExportJob tracks one export request.
type ExportJob struct {
	ID string

	mu       sync.Mutex
	state    JobState
	progress int
	artifact *export.Artifact
	err      error
	done     chan struct{}
}

func newExportJob() *ExportJob {
	return &ExportJob{
		ID:    uuid.NewString(),
		state: JobPending,
		done:  make(chan struct{}),
	}
}

// State returns the job state.
func (j *ExportJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the last recorded percentage. It never decreases.
func (j *ExportJob) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Done is closed when the job reaches a terminal state.
func (j *ExportJob) Done() <-chan struct{} {
	return j.done
}

// Result returns the artifact or the failure. Both are nil until Done.
func (j *ExportJob) Result() (*export.Artifact, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifact, j.err
}

func (j *ExportJob) start() {
	j.mu.Lock()
	j.state = JobRunning
	j.mu.Unlock()
}

func (j *ExportJob) setProgress(pct int) {
	j.mu.Lock()
	if pct > j.progress {
		j.progress = min(pct, 100)
	}
	j.mu.Unlock()
}

func (j *ExportJob) finish(art *export.Artifact, err error) {
	j.mu.Lock()
	if err != nil {
		j.state, j.err = JobFailed, err
	} else {
		j.state, j.artifact = JobSucceeded, art
		j.progress = 100
	}
	j.mu.Unlock()
	close(j.done)
}
