package plugin

import (
	"fmt"
	"sort"
	"sync"

	"mediarr/internal/scheduler"
	logx "mediarr/pkg/logx"
)

// Manager is the plugin registry. It implements scheduler.PluginSource so
// the scheduler can resolve plugin ids to display names and scheduled
// services without importing plugin types.
type Manager struct {
	mu  sync.Mutex
	log logx.Logger

	reg map[string]Plugin
	run map[string]bool
}

func NewManager(log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log: log,
		reg: map[string]Plugin{},
		run: map[string]bool{},
	}
}

func (m *Manager) Register(plugins ...Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range plugins {
		if p == nil || p.ID() == "" {
			continue
		}
		if _, dup := m.reg[p.ID()]; dup {
			m.log.Warn("duplicate plugin id, keeping first", logx.String("plugin", p.ID()))
			continue
		}
		m.reg[p.ID()] = p
	}
}

// Enable marks the plugin as running. The caller (plugin lifecycle
// collaborator) is responsible for following up with
// scheduler.UpdatePluginJob.
func (m *Manager) Enable(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reg[id]; !ok {
		return fmt.Errorf("unknown plugin %q", id)
	}
	m.run[id] = true
	return nil
}

// Disable marks the plugin as stopped. Idempotent.
func (m *Manager) Disable(id string) {
	m.mu.Lock()
	delete(m.run, id)
	m.mu.Unlock()
}

// RunningIDs returns the enabled plugin ids in stable order.
func (m *Manager) RunningIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.run))
	for id := range m.run {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// PluginName implements scheduler.PluginSource.
func (m *Manager) PluginName(id string) string {
	m.mu.Lock()
	p := m.reg[id]
	m.mu.Unlock()
	if p == nil {
		return ""
	}
	return p.Name()
}

// PluginServices implements scheduler.PluginSource. Only running plugins
// contribute services; a panicking provider is contained and reported as an
// error so one broken plugin cannot take the scheduler down.
func (m *Manager) PluginServices(id string) (decls []scheduler.ServiceDecl, err error) {
	m.mu.Lock()
	p := m.reg[id]
	running := m.run[id]
	m.mu.Unlock()

	if p == nil {
		return nil, fmt.Errorf("unknown plugin %q", id)
	}
	if !running {
		return nil, nil
	}
	sp, ok := p.(scheduler.ServiceProvider)
	if !ok {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			decls = nil
			err = fmt.Errorf("plugin %q services panicked: %v", id, r)
		}
	}()
	return sp.Services(), nil
}
