package scheduler

import (
	"errors"
	"strings"

	logx "mediarr/pkg/logx"
)

// UpdatePluginJob (re)registers every scheduled service of the given plugin.
// It tears down the plugin's previous jobs first, so it is safe to call on
// every enable/reconfigure. Registration failures are isolated per service;
// the batch is not atomic.
func (s *Service) UpdatePluginJob(pid string) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return
	}
	s.RemovePluginJob(pid)

	if s.plugins == nil {
		return
	}
	decls, err := s.plugins.PluginServices(pid)
	if err != nil {
		s.log.Error("plugin services query failed", logx.String("plugin", pid), logx.Err(err))
		return
	}
	pname := s.plugins.PluginName(pid)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range decls {
		if err := s.registerServiceLocked(pid, pname, d); err != nil {
			s.log.Error("plugin service register failed",
				logx.String("plugin", pname),
				logx.String("service", d.ID),
				logx.Err(err))
			continue
		}
		s.log.Info("plugin service registered",
			logx.String("plugin", pname),
			logx.String("service", d.Name),
			logx.String("trigger", d.Trigger))
	}
}

func (s *Service) registerServiceLocked(pid, pname string, d ServiceDecl) error {
	physical := strings.TrimSpace(d.ID)
	if physical == "" {
		return errors.New("service id required")
	}
	if d.Run == nil {
		return errors.New("service func required")
	}
	ps, err := ParseSchedule(d.Trigger)
	if err != nil {
		return err
	}
	cronSpec := ps.Cron
	if ps.Kind == SpecInterval {
		cronSpec = "@every " + ps.Every.String()
	}

	// Register the cron entry first: ParseSchedule passes raw cron
	// expressions through unvalidated, and a spec that cron rejects must
	// not leave a descriptor without a trigger behind.
	logical := logicalID(physical)
	s.removeTriggerLocked(physical)
	t := &trigger{id: physical, jobID: logical, name: d.Name, spec: cronSpec}
	if err := s.addCronLocked(t); err != nil {
		return err
	}
	s.triggers[physical] = t

	if _, ok := s.jobs[logical]; !ok {
		s.jobs[logical] = &job{
			id:          logical,
			name:        d.Name,
			pluginID:    pid,
			pluginName:  pname,
			run:         d.Run,
			defaultArgs: d.Args,
		}
	}
	return nil
}

// RemovePluginJob deletes every descriptor owned by the plugin along with
// its triggers. Absent jobs and triggers are success, which makes the call
// idempotent.
func (s *Service) RemovePluginJob(pid string) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.pluginID != pid {
			continue
		}
		delete(s.jobs, id)
		for tid, t := range s.triggers {
			if t.jobID == id {
				s.removeTriggerLocked(tid)
			}
		}
		s.log.Info("plugin service removed",
			logx.String("plugin", j.pluginName),
			logx.String("job", j.name))
	}
}
