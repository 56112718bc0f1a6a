package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		kind   SpecKind
		cron   string
		every  time.Duration
		source string
	}{
		{"*/5 * * * *", SpecCron, "*/5 * * * *", 0, "cron"},
		{"55 3 * * *", SpecCron, "55 3 * * *", 0, "cron"},
		{"@hourly", SpecCron, "@hourly", 0, "cron"},
		{"@every 55m", SpecCron, "@every 55m", 0, "cron"},
		{"cron: 0 4 * * 1", SpecCron, "0 4 * * 1", 0, "cron"},
		{"55m", SpecInterval, "", 55 * time.Minute, "duration"},
		{"2h30m", SpecInterval, "", 2*time.Hour + 30*time.Minute, "duration"},
		{"00:50", SpecInterval, "", 50 * time.Minute, "hhmm"},
		{"02:30", SpecInterval, "", 2*time.Hour + 30*time.Minute, "hhmm"},
		{"interval:45m", SpecInterval, "", 45 * time.Minute, "duration"},
		{"every: 01:30", SpecInterval, "", 90 * time.Minute, "hhmm"},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind || got.Cron != tc.cron || got.Every != tc.every || got.Source != tc.source {
			t.Fatalf("ParseSchedule(%q) = %+v", tc.in, got)
		}
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"",
		"   ",
		"cron:",
		"interval:",
		"every: nonsense",
		"-5m",
		"00:00",
		"02:61",
		"banana",
	} {
		if _, err := ParseSchedule(in); err == nil {
			t.Fatalf("ParseSchedule(%q): want error", in)
		}
	}
}
