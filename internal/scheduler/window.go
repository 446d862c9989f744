// Package scheduler implements C15: the five background tasks spawned at
// daemon start (compaction, passive sleep, nightly consolidation,
// proactive check, vault watcher), each holding a shared DaemonState
// handle and a shutdown signal. Grounded on
// original_source/crates/runtime/src/server/sleep.rs.
package scheduler

import (
	"log/slog"
	"time"
)

// InWindow reports whether hour falls in the half-open window
// [start, end) — wrapping past midnight when start > end, and covering the
// whole day when start == end, per spec §4.13's testable window law.
func InWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// currentHour returns the current hour-of-day in the named IANA timezone,
// falling back to UTC on an unrecognized name.
func currentHour(now time.Time, timezone string) int {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Warn("scheduler: unrecognized timezone, falling back to UTC", "timezone", timezone, "err", err)
		loc = time.UTC
	}
	return now.In(loc).Hour()
}
