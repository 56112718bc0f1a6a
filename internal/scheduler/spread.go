package scheduler

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// FireTime is one cron-style daily fire time.
type FireTime struct {
	Hour   int
	Minute int
}

// CronSpec renders the fire time as a 5-field cron spec.
func (f FireTime) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", f.Minute, f.Hour)
}

// Suffix renders the fire time as a physical-trigger suffix, "HH:MM".
func (f FireTime) Suffix() string {
	return fmt.Sprintf("%02d:%02d", f.Hour, f.Minute)
}

var spreadSeq uint64

// SpreadTimes returns n distinct (hour, minute) pairs pseudo-randomly spread
// across a 24-hour period. Each pair lands in its own slot of the day with
// random jitter inside the slot, so no two fire times are closer than half a
// slot where feasible. Used to fan one logical job out over many physical
// triggers, avoiding synchronized bursts against rate-limited targets; the
// logical job's exclusivity guard still prevents overlap when two fire times
// land close together.
func SpreadTimes(n int) []FireTime {
	const minutesPerDay = 24 * 60
	if n <= 0 {
		return nil
	}
	if n > minutesPerDay {
		n = minutesPerDay
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)<<16)
	rng := rand.New(rand.NewSource(seed))

	slot := minutesPerDay / n
	// Jitter stays inside the first half of each slot, which keeps adjacent
	// fire times at least slot/2 minutes apart.
	jitterMax := slot / 2
	if jitterMax < 1 {
		jitterMax = 1
	}

	out := make([]FireTime, 0, n)
	for i := 0; i < n; i++ {
		minuteOfDay := i*slot + rng.Intn(jitterMax)
		out = append(out, FireTime{Hour: minuteOfDay / 60, Minute: minuteOfDay % 60})
	}
	return out
}
