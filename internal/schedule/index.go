// Package schedule holds the due-time index and the reschedule coordinator.
package schedule

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
)

// InvalidScheduleError reports a requested due time in the past.
type InvalidScheduleError struct {
	At  time.Time
	Now time.Time
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("scheduled time %s is in the past (now %s)", e.At.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

type entry struct {
	jobID string
	at    time.Time
	seq   uint64
	pos   int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Index maps due times to job ids. All mutation goes through its methods; the
// underlying heap is never exposed.
type Index struct {
	mu    sync.Mutex
	heap  entryHeap
	byJob map[string]*entry
	seq   uint64
	clk   clock.Clock
}

// NewIndex creates an empty scheduling index using clk for past-time checks.
func NewIndex(clk clock.Clock) *Index {
	return &Index{
		byJob: make(map[string]*entry),
		clk:   clk,
	}
}

// Schedule inserts or moves a job's due time. A time before the clock's now is
// rejected with InvalidScheduleError unless publishNow overrides the check.
func (i *Index) Schedule(jobID string, at time.Time, publishNow bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clk.Now()
	if !publishNow && at.Before(now) {
		return &InvalidScheduleError{At: at, Now: now}
	}

	if existing, ok := i.byJob[jobID]; ok {
		existing.at = at
		heap.Fix(&i.heap, existing.pos)
		return nil
	}

	i.seq++
	e := &entry{jobID: jobID, at: at, seq: i.seq}
	heap.Push(&i.heap, e)
	i.byJob[jobID] = e
	return nil
}

// DueJobs removes and returns every job due at or before now. Removal is
// atomic with respect to concurrent calls, so a due job is handed out at most
// once per cycle.
func (i *Index) DueJobs(now time.Time) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	var due []string
	for i.heap.Len() > 0 && !i.heap[0].at.After(now) {
		e := heap.Pop(&i.heap).(*entry)
		delete(i.byJob, e.jobID)
		due = append(due, e.jobID)
	}
	return due
}

// Cancel removes a job if present; no-op otherwise.
func (i *Index) Cancel(jobID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.byJob[jobID]
	if !ok {
		return
	}
	heap.Remove(&i.heap, e.pos)
	delete(i.byJob, jobID)
}

// Len returns the number of indexed jobs.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.heap.Len()
}

// NextDue returns the earliest due time, if any job is indexed.
func (i *Index) NextDue() (time.Time, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.heap.Len() == 0 {
		return time.Time{}, false
	}
	return i.heap[0].at, true
}
