package txpipeline

import (
	"time"

	"github.com/MultiTechSystems/basicstation/internal/ral"
	"github.com/MultiTechSystems/basicstation/internal/region"
)

// SendFunc transmits an admitted job via the radio abstraction layer.
type SendFunc func(ral.TxJob) (ral.TxResult, error)

// Scheduler drains the priority queue, running each job through admission
// before handing it to the radio. It is driven by the single reactor
// goroutine (spec §5) via Tick, never by its own goroutine.
type Scheduler struct {
	Queue    *Queue
	Admitter *Admitter
	Send     SendFunc

	// DataRateFor resolves a job's SF/bandwidth to the region's DataRate,
	// needed by the admitter's dwell-time check.
	DataRateFor func(job *Job) region.DataRate

	// OnResult is called with the outcome of every job the scheduler
	// attempts, whether admitted-and-sent, admitted-and-failed, or rejected
	// by an admission check, per spec §4.3's failure semantics (no job is
	// dropped silently).
	OnResult func(job *Job, sent bool, reason string)
}

// Tick processes expired jobs and attempts to send the single
// highest-priority remaining job, respecting half-duplex gating (a second
// job is never attempted within the same Tick once one has been sent,
// since the radio is now transmitting).
func (s *Scheduler) Tick(now time.Time) {
	for _, expired := range s.Queue.RemoveExpired(now) {
		if s.OnResult != nil {
			s.OnResult(expired, false, "expired")
		}
	}

	job := s.Queue.Peek()
	if job == nil {
		return
	}

	var dr region.DataRate
	if s.DataRateFor != nil {
		dr = s.DataRateFor(job)
	}

	decision := s.Admitter.Admit(job, dr, now)
	if !decision.Admit {
		// Leave the job queued; a later Tick (once the blocking condition
		// clears, e.g. duty-cycle budget rolls over) may admit it. Jobs past
		// their deadline are cleared by RemoveExpired above, not here.
		if s.OnResult != nil {
			s.OnResult(job, false, decision.Reason)
		}
		return
	}

	s.Queue.Pop()

	txJob := ral.TxJob{
		PhyPayload: job.PhyPayload,
		Freq:       job.Freq,
		Power:      decision.ClampedEIRP,
		Bandwidth:  job.Bandwidth,
		SF:         job.SF,
		CodeRate:   job.CodeRate,
		XTime:      job.XTime,
		Antenna:    job.Antenna,
	}

	result, err := s.Send(txJob)
	if err != nil {
		if s.OnResult != nil {
			s.OnResult(job, false, err.Error())
		}
		return
	}

	sent := result.Status.String() == "OK"
	reason := result.Status.String()
	if s.OnResult != nil {
		s.OnResult(job, sent, reason)
	}
}
