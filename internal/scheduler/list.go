package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// List returns the live schedule in display order: running jobs with a known
// name and provider first (deduplicated by display name), then the remaining
// triggers sorted by next fire time and resolved back to their descriptors.
// Triggers whose logical id has no descriptor anymore are skipped.
func (s *Service) List() []ScheduleEntry {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]ScheduleEntry, 0, len(s.jobs)+len(s.triggers))
	seen := map[string]bool{} // display-name dedup, first occurrence wins

	// Running pass: keeps one-shot jobs visible even after their trigger is
	// gone. Stable over map iteration by sorting ids.
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		j := s.jobs[id]
		if !j.running || j.name == "" || j.pluginName == "" {
			continue
		}
		if seen[j.name] {
			continue
		}
		seen[j.name] = true
		entries = append(entries, ScheduleEntry{
			ID:       id,
			Name:     j.name,
			Provider: j.pluginName,
			Status:   StatusRunning,
		})
	}

	// Waiting pass: every live trigger, ascending by next fire time.
	type liveTrigger struct {
		t    *trigger
		next time.Time
	}
	live := make([]liveTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		next := t.at
		if t.entryID != 0 && s.c != nil {
			next = s.c.Entry(t.entryID).Next
		}
		live = append(live, liveTrigger{t: t, next: next})
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].next.Equal(live[j].next) {
			return live[i].t.id < live[j].t.id
		}
		return live[i].next.Before(live[j].next)
	})

	for _, lt := range live {
		j := s.jobs[lt.t.jobID]
		if j == nil {
			continue
		}
		name := lt.t.name
		if name == "" {
			name = j.name
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		status := StatusWaiting
		if j.running {
			status = StatusRunning
		}
		provider := j.pluginName
		if provider == "" {
			provider = SystemProvider
		}
		e := ScheduleEntry{
			ID:       lt.t.jobID,
			Name:     name,
			Provider: provider,
			Status:   status,
		}
		if !lt.next.IsZero() && lt.next.After(now) {
			e.NextRun = lt.next.Sub(now)
			e.NextRunDesc = humanizeUntil(e.NextRun)
		}
		entries = append(entries, e)
	}
	return entries
}

// humanizeUntil renders a duration as a short human-readable "time until"
// string, e.g. "2h05m" or "3m20s".
func humanizeUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
