package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"mediarr/internal/eventbus"
	logx "mediarr/pkg/logx"
)

// JobFunc is the invocation signature for all job bodies. Args is the job's
// immutable configuration mapping; implementations must not retain or mutate
// it.
type JobFunc func(ctx context.Context, args map[string]string) error

// Config controls the scheduler service.
type Config struct {
	// Timezone is an IANA TZ name for cron specs. Empty means time.Local.
	Timezone string

	// Workers bounds concurrent job bodies across all logical jobs.
	Workers   int
	QueueSize int
}

// ServiceDecl is one scheduled service declared by a plugin.
//
// ID is the physical trigger id, "<logicalJobID>|<suffix>"; several physical
// triggers with the same logical prefix share one descriptor and one
// exclusivity guard. A plain id (no "|") is its own logical id.
type ServiceDecl struct {
	ID      string
	Name    string
	Trigger string // schedule spec, see ParseSchedule
	Args    map[string]string
	Run     JobFunc
}

// ServiceProvider is the plugin capability for contributing scheduled
// services. Plugins that do not implement it contribute none.
type ServiceProvider interface {
	Services() []ServiceDecl
}

// PluginSource resolves plugin ids for UpdatePluginJob. Implemented by the
// plugin manager.
type PluginSource interface {
	// PluginName returns the display name for a plugin id ("" if unknown).
	PluginName(id string) string
	// PluginServices returns the plugin's scheduled service declarations.
	// Failures (unknown plugin, panicking provider) are returned as errors.
	PluginServices(id string) ([]ServiceDecl, error)
}

type Status string

const (
	StatusRunning Status = "Running"
	StatusWaiting Status = "Waiting"
)

// SystemProvider labels schedule entries not owned by any plugin.
const SystemProvider = "[system]"

// ScheduleEntry is a read-only view of one schedule for display.
type ScheduleEntry struct {
	ID       string
	Name     string
	Provider string
	Status   Status

	// NextRun is the estimated time to the next fire (0 when unknown, e.g.
	// for a currently running one-shot job).
	NextRun     time.Duration
	NextRunDesc string
}

// Snapshot is a lightweight diagnostics view.
type Snapshot struct {
	Timezone string
	Workers  int

	Jobs     int
	Triggers int

	InFlight int
	QueueLen int
	QueueCap int
	Dropped  uint64
}

// job is a logical job descriptor. running is true strictly between
// invocation start and completion.
type job struct {
	id          string
	name        string
	pluginID    string
	pluginName  string
	run         JobFunc
	defaultArgs map[string]string
	running     bool
}

// trigger is one physical trigger. Cron/interval triggers hold a cron entry;
// one-shot triggers hold a timer and their fire time.
type trigger struct {
	id      string // physical id
	jobID   string // logical id
	name    string
	spec    string
	args    map[string]string // per-trigger invocation args (nil = job defaults)
	entryID cron.EntryID
	timer   *time.Timer
	at      time.Time
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	plugins PluginSource

	parser cron.Parser
	c      *cron.Cron

	jobs     map[string]*job
	triggers map[string]*trigger

	pool *pool

	// Throttles the "already running" warning per logical job so spread-out
	// triggers against a long-running job don't flood the log.
	warnMu     sync.Mutex
	warnLimits map[string]*rate.Limiter

	started bool
	stopped bool
}
