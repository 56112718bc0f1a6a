package app

import (
	"context"
	"time"

	"mediarr/internal/config"
	"mediarr/internal/scheduler"
	logx "mediarr/pkg/logx"
)

// Collaborators are the bodies of the built-in jobs. They belong to other
// subsystems (site, media server, subscribe, transfer chains); the app only
// schedules them. Nil fields are replaced with no-ops so the schedule stays
// fully populated in partial deployments.
type Collaborators struct {
	CookieSync       scheduler.JobFunc
	MediaServerSync  scheduler.JobFunc
	SubscribeCheck   scheduler.JobFunc
	SubscribeSearch  scheduler.JobFunc
	SubscribeRefresh scheduler.JobFunc
	Transfer         scheduler.JobFunc
	CacheClear       scheduler.JobFunc
}

func (c *Collaborators) normalize() {
	noop := func(ctx context.Context, args map[string]string) error { return nil }
	for _, f := range []*scheduler.JobFunc{
		&c.CookieSync, &c.MediaServerSync, &c.SubscribeCheck,
		&c.SubscribeSearch, &c.SubscribeRefresh, &c.Transfer, &c.CacheClear,
	} {
		if *f == nil {
			*f = noop
		}
	}
}

// Physical trigger ids of the built-in jobs. Stable so a config reload
// replaces triggers instead of accumulating them.
const (
	trigCookieSync      = "cookie_sync"
	trigMediaServerSync = "mediaserver_sync"
	trigSubscribeCheck  = "subscribe_check"
	trigSearchNew       = "subscribe_search|new"
	trigSearchAll       = "subscribe_search|all"
	trigTransfer        = "transfer"
	trigCacheClear      = "cache_clear"
)

// spreadRefreshTriggers is how many fire times a spider-mode subscribe
// refresh is spread over per day.
const spreadRefreshTriggers = 30

// applyJobs (re)registers the built-in jobs from the jobs config. Interval
// fields that parse to zero disable their job.
func (a *App) applyJobs(cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	jc := cfg.Jobs

	if err := a.intervalJob(trigCookieSync, "Sync site cookies",
		a.collab.CookieSync, jc.CookieSyncInterval, 0); err != nil {
		return err
	}
	if err := a.intervalJob(trigMediaServerSync, "Sync media servers",
		a.collab.MediaServerSync, jc.MediaServerSyncInterval, 0); err != nil {
		return err
	}

	// Subscribe metadata check runs on a fixed cadence.
	if err := a.sched.Register("subscribe_check", "Refresh subscribe metadata", a.collab.SubscribeCheck, nil); err != nil {
		return err
	}
	if err := a.sched.AddTrigger(trigSubscribeCheck, "Refresh subscribe metadata", "every:6h"); err != nil {
		return err
	}

	// New subscriptions are searched right away on a short cadence; the full
	// pass over everything is opt-in and daily.
	if err := a.sched.Register("subscribe_search", "Subscribe search", a.collab.SubscribeSearch,
		map[string]string{"state": "R"}); err != nil {
		return err
	}
	if err := a.sched.AddTriggerArgs(trigSearchNew, "Search new subscriptions", "every:5m",
		map[string]string{"state": "N"}); err != nil {
		return err
	}
	if jc.SubscribeSearch {
		if err := a.sched.AddTrigger(trigSearchAll, "Search all subscriptions", "every:24h"); err != nil {
			return err
		}
	} else {
		a.sched.RemoveTrigger(trigSearchAll)
	}

	if err := a.applySubscribeRefresh(jc); err != nil {
		return err
	}

	if jc.DownloaderMonitor {
		if err := a.sched.Register("transfer", "Transfer downloads", a.collab.Transfer, nil); err != nil {
			return err
		}
		if err := a.sched.AddTrigger(trigTransfer, "Transfer downloads", "every:5m"); err != nil {
			return err
		}
	} else {
		a.sched.RemoveTrigger(trigTransfer)
	}

	if err := a.intervalJob(trigCacheClear, "Clear caches",
		a.collab.CacheClear, jc.CacheClearInterval, 24*time.Hour); err != nil {
		return err
	}
	return nil
}

// intervalJob registers a simple interval-triggered job, or removes its
// trigger when the configured interval resolves to zero.
func (a *App) intervalJob(id, name string, run scheduler.JobFunc, raw string, def time.Duration) error {
	d, err := config.ParseDurationField("jobs."+id, raw)
	if err != nil {
		return err
	}
	if d == 0 {
		d = def
	}
	if d == 0 {
		a.sched.RemoveTrigger(id)
		return nil
	}
	if err := a.sched.Register(id, name, run, nil); err != nil {
		return err
	}
	return a.sched.AddTrigger(id, name, "every:"+d.String())
}

// applySubscribeRefresh switches between the two refresh strategies: spider
// mode spreads daily cron fire times across the day so rate-limited sites
// never see a burst, rss mode polls on one interval.
func (a *App) applySubscribeRefresh(jc config.JobsConfig) error {
	if err := a.sched.Register("subscribe_refresh", "Refresh subscriptions", a.collab.SubscribeRefresh, nil); err != nil {
		return err
	}

	a.refreshMu.Lock()
	old := a.refreshTriggers
	a.refreshTriggers = nil
	a.refreshMu.Unlock()
	for _, id := range old {
		a.sched.RemoveTrigger(id)
	}

	var ids []string
	if jc.SubscribeMode == "spider" {
		for _, ft := range scheduler.SpreadTimes(spreadRefreshTriggers) {
			id := "subscribe_refresh|" + ft.Suffix()
			if err := a.sched.AddTrigger(id, "Refresh subscriptions", ft.CronSpec()); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		a.log.Info("subscribe refresh spread over the day",
			logx.Int("triggers", len(ids)))
	} else {
		d, err := config.ParseDurationOrDefault("jobs.subscribe_rss_interval", jc.SubscribeRSSInterval, 30*time.Minute)
		if err != nil {
			return err
		}
		if d < 5*time.Minute {
			d = 5 * time.Minute
		}
		id := "subscribe_refresh|rss"
		if err := a.sched.AddTrigger(id, "Refresh subscriptions", "every:"+d.String()); err != nil {
			return err
		}
		ids = append(ids, id)
	}

	a.refreshMu.Lock()
	a.refreshTriggers = ids
	a.refreshMu.Unlock()
	return nil
}
