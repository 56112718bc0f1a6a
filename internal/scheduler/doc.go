// Package scheduler owns the job table: built-in and plugin-supplied jobs,
// their cron/interval/one-shot triggers, and the run-state shown to the API
// layer.
//
// Exclusivity is per logical job id: many physical triggers ("<id>|<suffix>")
// may fire for one logical job, but at most one invocation runs at a time.
// A trigger that fires while the job is still running is dropped, never
// queued. Job bodies execute on a bounded worker pool; the table lock is not
// held across invocations.
package scheduler
