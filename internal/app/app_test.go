package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediarr/internal/config"
)

func newTestApp(t *testing.T, yaml string) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	a, err := New(path, Collaborators{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
	return a
}

func TestApplyJobsRSSMode(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, `
jobs:
  cookie_sync_interval: 30m
  subscribe_mode: rss
  subscribe_search: true
  downloader_monitor: true
`)
	if err := a.applyJobs(a.cfgm.Get()); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}

	snap := a.sched.Snapshot()
	// cookie sync, subscribe check, search new + all, rss refresh, transfer,
	// default cache clear.
	if snap.Triggers != 7 {
		t.Fatalf("Triggers = %d, want 7: %+v", snap.Triggers, snap)
	}
	// media server sync has no interval configured, so no descriptor either.
	if snap.Jobs != 6 {
		t.Fatalf("Jobs = %d, want 6: %+v", snap.Jobs, snap)
	}
}

func TestApplyJobsSpiderModeSpreadsRefresh(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, `
jobs:
  subscribe_mode: spider
`)
	if err := a.applyJobs(a.cfgm.Get()); err != nil {
		t.Fatalf("applyJobs: %v", err)
	}
	// subscribe check + search new + cache clear + 30 spread refresh triggers.
	if snap := a.sched.Snapshot(); snap.Triggers != 3+spreadRefreshTriggers {
		t.Fatalf("Triggers = %d, want %d", snap.Triggers, 3+spreadRefreshTriggers)
	}
}

func TestApplyJobsModeSwitchReplacesTriggers(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, `
jobs:
  subscribe_mode: spider
`)
	if err := a.applyJobs(a.cfgm.Get()); err != nil {
		t.Fatalf("applyJobs spider: %v", err)
	}
	rss := a.cfgm.Get()
	rss.Jobs.SubscribeMode = "rss"
	rss.Jobs.SubscribeRSSInterval = "1m" // below the floor, clamped to 5m
	if err := a.applyJobs(rss); err != nil {
		t.Fatalf("applyJobs rss: %v", err)
	}
	// The 30 spread triggers are gone, one rss trigger remains.
	if snap := a.sched.Snapshot(); snap.Triggers != 4 {
		t.Fatalf("Triggers = %d, want 4 after mode switch", snap.Triggers)
	}
}

func TestApplyJobsIsIdempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, `
jobs:
  subscribe_mode: rss
  downloader_monitor: true
`)
	cfg := a.cfgm.Get()
	for i := 0; i < 3; i++ {
		if err := a.applyJobs(cfg); err != nil {
			t.Fatalf("applyJobs #%d: %v", i, err)
		}
	}
	if snap := a.sched.Snapshot(); snap.Triggers != 5 {
		t.Fatalf("Triggers = %d, want 5 (stable across re-applies)", snap.Triggers)
	}
}

func TestValidatorRejectsBadConfig(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "jobs: {}\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := &config.Config{}
	bad.Scheduler.Timezone = "Not/AZone"
	if err := a.cfgm.Validate(ctx, bad); err == nil {
		t.Fatal("want error for invalid timezone")
	}
	bad = &config.Config{}
	bad.Jobs.CacheClearInterval = "often"
	if err := a.cfgm.Validate(ctx, bad); err == nil {
		t.Fatal("want error for invalid duration")
	}
}
