package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mediarr/internal/eventbus"
	logx "mediarr/pkg/logx"
)

// JobEvent is published on the bus for job lifecycle events
// (job.started, job.finished, job.failed, job.dropped).
type JobEvent struct {
	RunID    string        `json:"run_id"`
	JobID    string        `json:"job_id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// errPoolStopped reaches done callbacks of tasks that were queued but never
// ran because the pool shut down first.
var errPoolStopped = errors.New("worker pool stopped")

type task struct {
	runID string
	jobID string
	name  string
	run   func(ctx context.Context) error
	done  func(err error)
}

// pool executes job bodies on a fixed set of workers. Failures and panics
// are contained here: a job error is logged and the job simply waits for its
// next trigger. Stopping the pool halts acceptance and lets in-flight bodies
// finish; they are never interrupted.
type pool struct {
	log logx.Logger
	bus eventbus.Bus

	workers int
	q       chan task

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	inFlight int32
	dropped  uint64
}

type poolSnapshot struct {
	inFlight int
	queueLen int
	queueCap int
	dropped  uint64
}

func newPool(workers, queueSize int, log logx.Logger, bus eventbus.Bus) *pool {
	return &pool{
		log:     log,
		bus:     bus,
		workers: workers,
		q:       make(chan task, queueSize),
		stopCh:  make(chan struct{}),
	}
}

func (p *pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// submit tries to enqueue without blocking. A full queue or a stopping pool
// drops the task and returns false; the caller unwinds its run-state.
func (p *pool) submit(t task) bool {
	if t.runID == "" {
		t.runID = uuid.NewString()
	}
	select {
	case <-p.stopCh:
		return false
	default:
	}
	select {
	case p.q <- t:
		return true
	default:
		atomic.AddUint64(&p.dropped, 1)
		p.log.Warn("job dropped: queue full",
			logx.String("job", t.jobID),
			logx.Int("queue_cap", cap(p.q)))
		p.publish("job.dropped", JobEvent{RunID: t.runID, JobID: t.jobID, Name: t.name, Started: time.Now(), Error: "queue_full"})
		return false
	}
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-p.stopCh:
			return
		default:
		}
		select {
		case <-p.stopCh:
			return
		case t := <-p.q:
			p.execOne(t)
		}
	}
}

func (p *pool) execOne(t task) {
	start := time.Now()
	atomic.AddInt32(&p.inFlight, 1)
	p.log.Debug("job started", logx.String("job", t.jobID), logx.String("run", t.runID))
	p.publish("job.started", JobEvent{RunID: t.runID, JobID: t.jobID, Name: t.name, Started: start})

	var err error
	// Guard against job panics: one bad job body must not kill a worker or
	// the process.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				p.log.Error("job panic",
					logx.String("job", t.jobID),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		err = t.run(context.Background())
	}()

	dur := time.Since(start)
	atomic.AddInt32(&p.inFlight, -1)

	if err != nil {
		p.log.Warn("job failed", logx.String("job", t.jobID), logx.Err(err), logx.Duration("dur", dur))
		p.publish("job.failed", JobEvent{RunID: t.runID, JobID: t.jobID, Name: t.name, Started: start, Duration: dur, Error: err.Error()})
	} else {
		p.log.Debug("job finished", logx.String("job", t.jobID), logx.Duration("dur", dur))
		p.publish("job.finished", JobEvent{RunID: t.runID, JobID: t.jobID, Name: t.name, Started: start, Duration: dur})
	}

	if t.done != nil {
		t.done(err)
	}
}

func (p *pool) publish(typ string, ev JobEvent) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// stop halts acceptance and waits for in-flight bodies until ctx expires.
// Tasks still queued when the workers exit never run; their done callbacks
// fire here so the owning jobs' run-state is unwound.
func (p *pool) stop(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stopCh) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("pool stop timed out", logx.Int("in_flight", int(atomic.LoadInt32(&p.inFlight))))
	}

	for {
		select {
		case t := <-p.q:
			p.log.Debug("job abandoned: pool stopped", logx.String("job", t.jobID))
			p.publish("job.dropped", JobEvent{RunID: t.runID, JobID: t.jobID, Name: t.name, Started: time.Now(), Error: errPoolStopped.Error()})
			if t.done != nil {
				t.done(errPoolStopped)
			}
		default:
			return
		}
	}
}

func (p *pool) snapshot() poolSnapshot {
	return poolSnapshot{
		inFlight: int(atomic.LoadInt32(&p.inFlight)),
		queueLen: len(p.q),
		queueCap: cap(p.q),
		dropped:  atomic.LoadUint64(&p.dropped),
	}
}
