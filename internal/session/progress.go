package session

import (
	"sync"

	"github.com/tonimelisma/drivegram/internal/transfer"
)

// JobStatus is a snapshot of an active job.
type JobStatus struct {
	ID        string
	Total     int
	Index     int
	FileName  string
	Stage     transfer.Stage
	Percent   int
	Succeeded int
	Failed    int
}

// jobProgress tracks the active job for status queries, which read it from
// other goroutines.
type jobProgress struct {
	id string

	mu     sync.Mutex
	status JobStatus
}

func newJobProgress(id string, total int) *jobProgress {
	return &jobProgress{
		id:     id,
		status: JobStatus{ID: id, Total: total, Index: -1},
	}
}

func (j *jobProgress) begin(index int, name string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status.Index = index
	j.status.FileName = name
	j.status.Stage = transfer.StageDownloading
	j.status.Percent = 0
}

func (j *jobProgress) progress(ev transfer.ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status.Stage = ev.Stage
	j.status.Percent = ev.Percent
}

func (j *jobProgress) finish(ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ok {
		j.status.Succeeded++
	} else {
		j.status.Failed++
	}
}

func (j *jobProgress) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.status
}

// Active returns the progress of userID's running job, if any.
func (o *Orchestrator) Active(userID int64) (JobStatus, bool) {
	o.mu.Lock()
	u, ok := o.users[userID]
	o.mu.Unlock()

	if !ok {
		return JobStatus{}, false
	}

	j := u.current()
	if j == nil {
		return JobStatus{}, false
	}

	return j.snapshot(), true
}
