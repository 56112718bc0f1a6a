package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "mediarr/pkg/logx"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestService(t *testing.T, plugins PluginSource) *Service {
	t.Helper()
	s := New(Config{Workers: 4, QueueSize: 16}, logx.Nop(), nil, plugins)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestStartExclusive(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	var calls int32
	release := make(chan struct{})
	body := func(ctx context.Context, args map[string]string) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}
	if err := s.Register("transfer", "Transfer downloads", body, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// A live trigger keeps the descriptor from being purged on completion.
	if err := s.AddTrigger("transfer|keep", "Transfer downloads", "every:24h"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	s.Run()

	s.Start("transfer", nil)
	waitFor(t, "first invocation", func() bool { return atomic.LoadInt32(&calls) == 1 })

	// Running guard: the second call is dropped, not queued.
	s.Start("transfer", nil)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 while first run holds the guard", got)
	}

	close(release)
	waitFor(t, "guard release", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.jobs["transfer"]
		return j != nil && !j.running
	})

	// After completion the guard is free again.
	s.Start("transfer", nil)
	waitFor(t, "second invocation", func() bool { return atomic.LoadInt32(&calls) == 2 })
}

func TestStartUnknownJobIsSilent(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	s.Run()
	s.Start("no_such_job", nil)
	if snap := s.Snapshot(); snap.Jobs != 0 || snap.Triggers != 0 {
		t.Fatalf("unexpected table state: %+v", snap)
	}
}

func TestStartUsesDefaultArgs(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	got := make(chan map[string]string, 1)
	body := func(ctx context.Context, args map[string]string) error {
		got <- args
		return nil
	}
	if err := s.Register("subscribe_search", "Subscribe search", body, map[string]string{"state": "R"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddTrigger("subscribe_search|keep", "Subscribe search", "every:24h"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	s.Run()

	s.Start("subscribe_search", nil)
	select {
	case args := <-got:
		if args["state"] != "R" {
			t.Fatalf("args = %v, want default state R", args)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job body never ran")
	}
	waitFor(t, "guard release", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.jobs["subscribe_search"]
		return j != nil && !j.running
	})

	s.Start("subscribe_search", map[string]string{"state": "N"})
	select {
	case args := <-got:
		if args["state"] != "N" {
			t.Fatalf("args = %v, want explicit state N", args)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job body never ran with explicit args")
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	noop := func(ctx context.Context, args map[string]string) error { return nil }

	if err := s.Register("", "x", noop, nil); err == nil {
		t.Fatal("want error for empty id")
	}
	if err := s.Register("x", "x", nil, nil); err == nil {
		t.Fatal("want error for nil func")
	}
}

func TestAddTriggerReplacesPhysicalID(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	noop := func(ctx context.Context, args map[string]string) error { return nil }
	if err := s.Register("cache_clear", "Clear caches", noop, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddTrigger("cache_clear", "Clear caches", "every:1h"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	if err := s.AddTrigger("cache_clear", "Clear caches", "every:2h"); err != nil {
		t.Fatalf("AddTrigger replace: %v", err)
	}
	if snap := s.Snapshot(); snap.Triggers != 1 {
		t.Fatalf("Triggers = %d, want 1 after replace", snap.Triggers)
	}

	if err := s.AddTrigger("cache_clear", "Clear caches", "definitely not a schedule"); err == nil {
		t.Fatal("want error for invalid spec")
	}
	s.RemoveTrigger("cache_clear")
	s.RemoveTrigger("cache_clear") // absent is fine
	if snap := s.Snapshot(); snap.Triggers != 0 {
		t.Fatalf("Triggers = %d, want 0 after remove", snap.Triggers)
	}
}

func TestOneShotPurgesJob(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	var calls int32
	body := func(ctx context.Context, args map[string]string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	if err := s.Register("greeting", "Morning greeting", body, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddOnce("greeting|once", "Morning greeting", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	s.Run()

	waitFor(t, "one-shot run", func() bool { return atomic.LoadInt32(&calls) == 1 })
	// The one-shot trigger is gone when the body completes, so the
	// descriptor is purged with it.
	waitFor(t, "table purge", func() bool {
		snap := s.Snapshot()
		return snap.Jobs == 0 && snap.Triggers == 0
	})
}

func TestOneShotCancel(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	var calls int32
	body := func(ctx context.Context, args map[string]string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	if err := s.Register("greeting", "Morning greeting", body, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddOnce("greeting|once", "Morning greeting", time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	s.RemoveTrigger("greeting|once")
	s.Run()

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("calls = %d, want 0 after cancel", got)
	}
}

type fakePlugins struct {
	name  string
	decls []ServiceDecl
	err   error
}

func (f *fakePlugins) PluginName(string) string { return f.name }

func (f *fakePlugins) PluginServices(string) ([]ServiceDecl, error) {
	return f.decls, f.err
}

func TestUpdatePluginJobIsolatesFailures(t *testing.T) {
	t.Parallel()
	noop := func(ctx context.Context, args map[string]string) error { return nil }
	src := &fakePlugins{
		name: "Auto Signin",
		decls: []ServiceDecl{
			{ID: "signin|02:15", Name: "Site signin", Trigger: "15 2 * * *", Run: noop},
			{ID: "broken|x", Name: "Broken", Trigger: "not a schedule at all !!", Run: noop},
			{ID: "norun|x", Name: "No func", Trigger: "every:1h"},
		},
	}
	s := newTestService(t, src)

	s.UpdatePluginJob("signin-plugin")
	snap := s.Snapshot()
	if snap.Jobs != 1 || snap.Triggers != 1 {
		t.Fatalf("snapshot = %+v, want the one valid service registered", snap)
	}
	// A rejected trigger must not leave an orphan descriptor behind.
	s.mu.Lock()
	_, orphan := s.jobs["broken"]
	s.mu.Unlock()
	if orphan {
		t.Fatal("descriptor registered for service with invalid trigger")
	}

	// Re-registering tears down and rebuilds, not accumulates.
	s.UpdatePluginJob("signin-plugin")
	if snap := s.Snapshot(); snap.Jobs != 1 || snap.Triggers != 1 {
		t.Fatalf("snapshot after re-register = %+v", snap)
	}

	s.RemovePluginJob("signin-plugin")
	s.RemovePluginJob("signin-plugin") // idempotent
	if snap := s.Snapshot(); snap.Jobs != 0 || snap.Triggers != 0 {
		t.Fatalf("snapshot after remove = %+v", snap)
	}
}

func TestUpdatePluginJobQueryError(t *testing.T) {
	t.Parallel()
	src := &fakePlugins{name: "Broken", err: errors.New("boom")}
	s := newTestService(t, src)
	s.UpdatePluginJob("broken-plugin")
	if snap := s.Snapshot(); snap.Jobs != 0 || snap.Triggers != 0 {
		t.Fatalf("snapshot = %+v, want empty table on query error", snap)
	}
}

func TestListRunningFirstAndDeduplicated(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	blocking := func(ctx context.Context, args map[string]string) error {
		<-release
		return nil
	}
	defer close(release)

	src := &fakePlugins{
		name: "Auto Signin",
		decls: []ServiceDecl{
			{ID: "signin|02:15", Name: "Site signin", Trigger: "15 2 * * *", Run: blocking},
			{ID: "signin|09:40", Name: "Site signin", Trigger: "40 9 * * *", Run: blocking},
		},
	}
	s := newTestService(t, src)
	noop := func(ctx context.Context, args map[string]string) error { return nil }
	if err := s.Register("cache_clear", "Clear caches", noop, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddTrigger("cache_clear", "Clear caches", "every:1h"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	s.UpdatePluginJob("signin-plugin")
	s.Run()

	s.Start("signin", nil)
	waitFor(t, "signin running", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.jobs["signin"]
		return j != nil && j.running
	})

	entries := s.List()
	if len(entries) == 0 {
		t.Fatal("List returned nothing")
	}
	if entries[0].Name != "Site signin" || entries[0].Status != StatusRunning {
		t.Fatalf("entries[0] = %+v, want running signin first", entries[0])
	}
	if entries[0].Provider != "Auto Signin" {
		t.Fatalf("Provider = %q, want plugin display name", entries[0].Provider)
	}

	signins, cacheClears := 0, 0
	for _, e := range entries {
		switch e.Name {
		case "Site signin":
			signins++
		case "Clear caches":
			cacheClears++
			if e.Provider != SystemProvider {
				t.Fatalf("system job provider = %q, want %q", e.Provider, SystemProvider)
			}
		}
	}
	if signins != 1 {
		t.Fatalf("signin listed %d times, want 1 (deduplicated by name)", signins)
	}
	if cacheClears != 1 {
		t.Fatalf("cache clear listed %d times, want 1", cacheClears)
	}
}

func TestStopHaltsAcceptance(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2, QueueSize: 8}, logx.Nop(), nil, nil)

	var calls int32
	body := func(ctx context.Context, args map[string]string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	if err := s.Register("transfer", "Transfer downloads", body, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.AddTrigger("transfer|keep", "Transfer downloads", "every:24h"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	s.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	s.Start("transfer", nil)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("calls = %d, want 0 after Stop", got)
	}
	// The failed submit unwound the guard rather than leaving it stuck.
	s.mu.Lock()
	j := s.jobs["transfer"]
	running := j != nil && j.running
	s.mu.Unlock()
	if running {
		t.Fatal("running flag stuck after rejected submit")
	}
}

func TestApplyTimezoneWithFiringTriggers(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	release := make(chan struct{})
	defer close(release)
	body := func(ctx context.Context, args map[string]string) error {
		<-release
		return nil
	}
	if err := s.Register("pulse", "Pulse", body, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Six-field spec: fires every second so a callback overlaps the swap.
	if err := s.AddTrigger("pulse|sec", "Pulse", "* * * * * *"); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	s.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tz := range []string{"UTC", "America/New_York", "Asia/Shanghai"} {
			s.ApplyTimezone(tz)
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ApplyTimezone did not return while triggers were firing")
	}

	// The table stayed usable and the trigger survived the cron swaps.
	snap := s.Snapshot()
	if snap.Triggers != 1 || snap.Timezone != "Asia/Shanghai" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestLogicalID(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"subscribe_refresh|02:15", "subscribe_refresh"},
		{"transfer", "transfer"},
		{"a|b|c", "a"},
	}
	for _, tc := range cases {
		if got := logicalID(tc.in); got != tc.want {
			t.Fatalf("logicalID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
