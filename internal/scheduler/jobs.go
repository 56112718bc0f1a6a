package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "mediarr/pkg/logx"
)

// logicalID strips the physical-trigger suffix: "subscribe_refresh|02:15"
// maps to logical job "subscribe_refresh".
func logicalID(physicalID string) string {
	if i := strings.IndexByte(physicalID, '|'); i >= 0 {
		return physicalID[:i]
	}
	return physicalID
}

// Register adds or replaces the descriptor for a logical job id. The
// defaults mapping is used when a trigger fires with no arguments.
func (s *Service) Register(id, name string, run JobFunc, defaults map[string]string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("job id required")
	}
	if run == nil {
		return errors.New("job func required")
	}
	s.mu.Lock()
	s.jobs[id] = &job{id: id, name: name, run: run, defaultArgs: defaults}
	s.mu.Unlock()
	return nil
}

// AddTrigger registers a physical trigger bound to Start(logical). The spec
// takes any form ParseSchedule accepts. Re-registering a physical id
// replaces the previous trigger.
func (s *Service) AddTrigger(physicalID, name, spec string) error {
	return s.AddTriggerArgs(physicalID, name, spec, nil)
}

// AddTriggerArgs is AddTrigger with per-trigger invocation arguments. They
// override the job's defaults for firings of this trigger only.
func (s *Service) AddTriggerArgs(physicalID, name, spec string, args map[string]string) error {
	physicalID = strings.TrimSpace(physicalID)
	if physicalID == "" {
		return errors.New("trigger id required")
	}
	ps, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	cronSpec := ps.Cron
	if ps.Kind == SpecInterval {
		cronSpec = fmt.Sprintf("@every %s", ps.Every.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTriggerLocked(physicalID)
	t := &trigger{
		id:    physicalID,
		jobID: logicalID(physicalID),
		name:  name,
		spec:  cronSpec,
		args:  args,
	}
	if err := s.addCronLocked(t); err != nil {
		return err
	}
	s.triggers[physicalID] = t
	s.log.Debug("trigger registered",
		logx.String("trigger", physicalID), logx.String("spec", cronSpec))
	return nil
}

// AddOnce registers a one-shot trigger firing at the given time. The trigger
// is removed before the body is dispatched, so a job whose only trigger was
// one-shot is purged from the table when it completes.
func (s *Service) AddOnce(physicalID, name string, at time.Time) error {
	physicalID = strings.TrimSpace(physicalID)
	if physicalID == "" {
		return errors.New("trigger id required")
	}
	if at.IsZero() {
		return errors.New("fire time required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTriggerLocked(physicalID)

	t := &trigger{
		id:    physicalID,
		jobID: logicalID(physicalID),
		name:  name,
		at:    at,
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.triggers[physicalID]
		// Timer identity guards against firing after Remove/replace.
		if !ok || cur.timer != timer {
			s.mu.Unlock()
			return
		}
		delete(s.triggers, physicalID)
		jobID := cur.jobID
		s.mu.Unlock()
		s.Start(jobID, nil)
	})
	t.timer = timer
	s.triggers[physicalID] = t
	s.log.Debug("one-shot trigger registered",
		logx.String("trigger", physicalID), logx.Time("at", at))
	return nil
}

// RemoveTrigger unregisters a physical trigger. Removing an absent trigger
// is success, not an error.
func (s *Service) RemoveTrigger(physicalID string) {
	s.mu.Lock()
	s.removeTriggerLocked(physicalID)
	s.mu.Unlock()
}

// Start invokes the logical job once, subject to the exclusivity guard:
// an unknown id returns silently, and a job that is already running drops
// the call without queuing it. Empty args fall back to the descriptor's
// defaults. The table lock is released before the body runs.
func (s *Service) Start(jobID string, args map[string]string) {
	s.mu.Lock()
	j := s.jobs[jobID]
	if j == nil || j.run == nil {
		s.mu.Unlock()
		return
	}
	if j.running {
		s.mu.Unlock()
		if s.allowRunningWarn(jobID) {
			s.log.Warn("job already running, trigger dropped", logx.String("job", jobID))
		}
		return
	}
	j.running = true
	if len(args) == 0 {
		args = j.defaultArgs
	}
	name := j.name
	run := j.run
	s.mu.Unlock()

	ok := s.pool.submit(task{
		jobID: jobID,
		name:  name,
		run:   func(ctx context.Context) error { return run(ctx, args) },
		done:  func(error) { s.finish(jobID) },
	})
	if !ok {
		// Pool saturated or stopping: unwind the running flag so the next
		// trigger can try again.
		s.finish(jobID)
	}
}

// finish flips the running flag back and purges the descriptor when no
// physical trigger references the id anymore. The descriptor may have been
// removed while the body ran; that is a no-op here.
func (s *Service) finish(jobID string) {
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.running = false
		if !s.hasTriggerLocked(jobID) {
			delete(s.jobs, jobID)
			s.log.Debug("job purged (no remaining trigger)", logx.String("job", jobID))
		}
	}
	s.mu.Unlock()
}

func (s *Service) hasTriggerLocked(jobID string) bool {
	for _, t := range s.triggers {
		if t.jobID == jobID {
			return true
		}
	}
	return false
}

func (s *Service) addCronLocked(t *trigger) error {
	jobID, args := t.jobID, t.args
	eid, err := s.c.AddFunc(t.spec, func() {
		s.Start(jobID, args)
	})
	if err != nil {
		return err
	}
	t.entryID = eid
	return nil
}

func (s *Service) removeTriggerLocked(physicalID string) {
	t, ok := s.triggers[physicalID]
	if !ok {
		return
	}
	delete(s.triggers, physicalID)
	if t.entryID != 0 && s.c != nil {
		s.c.Remove(t.entryID)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (s *Service) allowRunningWarn(jobID string) bool {
	s.warnMu.Lock()
	lim := s.warnLimits[jobID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(30*time.Second), 1)
		s.warnLimits[jobID] = lim
	}
	s.warnMu.Unlock()
	return lim.Allow()
}
