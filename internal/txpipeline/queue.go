// Package txpipeline implements the downlink job queue, admission checks,
// and scheduler described in spec §4.3: priority ordering, half-duplex
// gating, duty-cycle/CCA/dwell/power admission, and dual-antenna handling.
package txpipeline

import (
	"container/heap"
	"time"

	"github.com/MultiTechSystems/basicstation/internal/ral/gw"
)

// Priority mirrors the station protocol's "priority" field: lower values
// are served first by the scheduler, matching dnmsg's convention where 0 is
// the highest priority.
type Priority int

// Job is a downlink awaiting admission and scheduling.
type Job struct {
	DIID       int64
	DevEUI     string
	PhyPayload []byte
	Freq       uint32
	Bandwidth  uint32
	SF         uint32
	CodeRate   gw.CodeRate
	Power      int32
	Antenna    uint32
	XTime      uint64 // 0 means "schedule for immediate RX1/RX2 window"
	Priority   Priority
	Deadline   time.Time
	enqueuedAt time.Time

	// DeviceClass and GPSTime carry dnmsg's dC/class-B-GPS-time context
	// through scheduling. Class A's "missed window" and class B/C's "retry
	// until sent" semantics both fall out of Deadline/RemoveExpired already:
	// a dnmsg with an rxdelay gets a Deadline rxdelay seconds after it is
	// handled, so a missed window is cleared as expired, while a job without
	// one has no Deadline, so an admission rejection just leaves it queued
	// for a later tick. These fields exist for logging and for a
	// future per-class scheduling policy, not to change that behavior.
	DeviceClass int
	GPSTime     int64

	index int // heap bookkeeping
}

// queue is a min-heap ordered by (Priority, Deadline), i.e. lower-priority
// numbers and earlier deadlines are served first.
type queue []*Job

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].Deadline.Before(q[j].Deadline)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x interface{}) {
	job := x.(*Job)
	job.index = len(*q)
	*q = append(*q, job)
}

func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*q = old[:n-1]
	return job
}

// Queue is the priority queue of pending downlinks for one session. It is
// owned by the single reactor goroutine per spec §5's concurrency model and
// carries no internal locking.
type Queue struct {
	jobs queue
}

// NewQueue creates an empty downlink queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.jobs)
	return q
}

// Push enqueues a job, stamping its arrival time.
func (q *Queue) Push(job *Job) {
	job.enqueuedAt = time.Now()
	heap.Push(&q.jobs, job)
}

// Peek returns the highest-priority job without removing it, or nil if the
// queue is empty.
func (q *Queue) Peek() *Job {
	if len(q.jobs) == 0 {
		return nil
	}
	return q.jobs[0]
}

// Pop removes and returns the highest-priority job, or nil if empty.
func (q *Queue) Pop() *Job {
	if len(q.jobs) == 0 {
		return nil
	}
	return heap.Pop(&q.jobs).(*Job)
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// RemoveExpired drops and returns jobs whose deadline has passed, the
// downlink-job-expiry failure semantics from spec §4.3.
func (q *Queue) RemoveExpired(now time.Time) []*Job {
	var expired []*Job
	var kept queue
	for _, job := range q.jobs {
		if !job.Deadline.IsZero() && now.After(job.Deadline) {
			expired = append(expired, job)
			continue
		}
		kept = append(kept, job)
	}
	q.jobs = kept
	heap.Init(&q.jobs)
	return expired
}
