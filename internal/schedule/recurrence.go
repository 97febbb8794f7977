// Package schedule computes reminder fire times. Everything here is pure:
// no clock reads, no storage, same inputs always give the same output.
package schedule

import (
	"strings"
	"time"
)

var dayCodes = map[string]time.Weekday{
	"su": time.Sunday,
	"mo": time.Monday,
	"tu": time.Tuesday,
	"we": time.Wednesday,
	"th": time.Thursday,
	"fr": time.Friday,
	"sa": time.Saturday,
}

// rollCap bounds the re-roll loop in NextRunAfter. With the smallest step
// being 5 minutes, 4096 iterations cover two weeks of staleness.
const rollCap = 4096

// NextRun maps a recurrence descriptor and a reference time to the next
// fire time in UTC. ok=false means no further occurrence (one-time
// reminders after firing). Unrecognized descriptors degrade to the daily
// fallback; cron-like descriptors get a fixed +5 minute placeholder rather
// than a real cron evaluation. NextRun never fails.
func NextRun(recurrence string, ref time.Time) (next time.Time, ok bool) {
	ref = ref.UTC()
	rec := strings.ToLower(strings.TrimSpace(recurrence))

	switch {
	case rec == "" || rec == "once":
		return time.Time{}, false
	case rec == "daily":
		return ref.AddDate(0, 0, 1), true
	case strings.HasPrefix(rec, "weekly"):
		return nextWeekly(rec, ref), true
	case rec == "monthly":
		return ref.AddDate(0, 1, 0), true
	case strings.HasPrefix(rec, "cron:") || strings.Count(rec, " ") >= 4:
		// Placeholder, not a cron evaluator.
		return ref.Add(5 * time.Minute), true
	default:
		return ref.AddDate(0, 0, 1), true
	}
}

// nextWeekly picks the smallest positive day delta (1..7) from ref's
// weekday to any listed day. A delta of 0 (today) is forced to a full week
// so the result always moves forward. A list with no recognizable day
// codes falls back to +1 day.
func nextWeekly(rec string, ref time.Time) time.Time {
	list := ""
	if i := strings.IndexByte(rec, ':'); i >= 0 {
		list = rec[i+1:]
	}

	best := 0
	for _, code := range strings.Split(list, ",") {
		wd, known := dayCodes[strings.TrimSpace(code)]
		if !known {
			continue
		}
		delta := (int(wd) - int(ref.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		if best == 0 || delta < best {
			best = delta
		}
	}
	if best == 0 {
		best = 1
	}
	return ref.AddDate(0, 0, best)
}

// NextRunAfter re-rolls NextRun until the candidate is strictly after now.
// The client-side evaluation loop needs this when it sees stale rows; the
// dispatcher never does, since it only touches rows already due.
func NextRunAfter(recurrence string, ref, now time.Time) (time.Time, bool) {
	next, ok := NextRun(recurrence, ref)
	for i := 0; ok && !next.After(now) && i < rollCap; i++ {
		next, ok = NextRun(recurrence, next)
	}
	return next, ok
}

// InitialRun seeds next_run_at when a reminder is created or edited. The
// first candidate is start date + time-of-day; a past candidate stands for
// one-time reminders (they fire immediately on the next sweep) and rolls
// forward for recurring ones.
func InitialRun(recurrence, startDate, timeOfDay string, now time.Time) (time.Time, bool) {
	now = now.UTC()

	day := now
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(startDate)); err == nil {
		day = t
	}
	hour, min := ParseTimeOfDay(timeOfDay)
	candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, time.UTC)

	if candidate.After(now) {
		return candidate, true
	}
	rec := strings.ToLower(strings.TrimSpace(recurrence))
	if rec == "" || rec == "once" {
		// Past-dated one-time reminder: due right away, fires once.
		return candidate, true
	}
	return NextRunAfter(recurrence, candidate, now)
}

// ParseTimeOfDay parses "HH:MM"; malformed input degrades to 09:00 rather
// than failing.
func ParseTimeOfDay(s string) (hour, min int) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 9, 0
	}
	return t.Hour(), t.Minute()
}
