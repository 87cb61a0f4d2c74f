// Package status tracks the lifecycle state of every job known to the
// process. Entries are never removed.
package status

import (
	"time"

	"github.com/alphadose/haxmap"

	"thumbnailer/internal/models"
)

// Tracker is safe for concurrent use. Each key updates independently; the
// tracker does not enforce transition order, the owner of a job does.
type Tracker struct {
	states *haxmap.Map[string, models.JobState]
	now    func() time.Time
}

func New() *Tracker {
	return &Tracker{
		states: haxmap.New[string, models.JobState](),
		now:    time.Now,
	}
}

// Set overwrites the status of id.
func (t *Tracker) Set(id string, status models.JobStatus) {
	t.states.Set(id, models.JobState{Status: status, UpdatedAt: t.now()})
}

// Fail marks id as Failed and keeps the cause for status queries.
func (t *Tracker) Fail(id string, cause error) {
	state := models.JobState{Status: models.StatusFailed, UpdatedAt: t.now()}
	if cause != nil {
		state.Error = cause.Error()
	}
	t.states.Set(id, state)
}

// Get returns the last status set for id.
func (t *Tracker) Get(id string) (models.JobStatus, bool) {
	state, ok := t.states.Get(id)
	return state.Status, ok
}

// Lookup returns the full state of id, including the failure reason.
func (t *Tracker) Lookup(id string) (models.JobState, bool) {
	return t.states.Get(id)
}

// Len is the number of identifiers ever tracked.
func (t *Tracker) Len() int {
	return int(t.states.Len())
}

// Counts snapshots how many jobs sit in each status.
func (t *Tracker) Counts() map[models.JobStatus]int {
	counts := map[models.JobStatus]int{
		models.StatusQueued:     0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	t.states.ForEach(func(_ string, s models.JobState) bool {
		counts[s.Status]++
		return true
	})
	return counts
}
