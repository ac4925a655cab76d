package engine

import (
	"time"

	"github.com/t77yq/tabsched/internal/model"
)

// maxAdvanceSteps bounds every recurrence-advance loop. A schedule that was
// suspended for longer than this many occurrences is a configuration fault,
// not something to loop on.
const maxAdvanceSteps = 365

// NextOccurrence returns the occurrence following t under the given repeat
// policy. It is pure and deterministic, and the result is always strictly
// after t so callers may iterate it without risking a stall.
//
// Month and year advances use calendar arithmetic with roll-over on
// day-of-month overflow (Jan 31 + 1 month lands in early March), matching
// time.Time.AddDate normalization.
func NextOccurrence(t time.Time, p model.RepeatPolicy) time.Time {
	n := p.Interval
	if n <= 0 {
		n = 1
	}

	switch p.Type {
	case model.RepeatEveryNMinutes:
		return t.Add(time.Duration(n) * time.Minute)
	case model.RepeatEveryNHours:
		return t.Add(time.Duration(n) * time.Hour)
	case model.RepeatWeekdays:
		return nextMatchingDay(t, func(d time.Weekday) bool {
			return d != time.Saturday && d != time.Sunday
		})
	case model.RepeatWeekends:
		return nextMatchingDay(t, func(d time.Weekday) bool {
			return d == time.Saturday || d == time.Sunday
		})
	case model.RepeatDaysOfWeek:
		allowed := make(map[time.Weekday]bool, len(p.Weekdays))
		for _, d := range p.Weekdays {
			if d >= time.Sunday && d <= time.Saturday {
				allowed[d] = true
			}
		}
		// An empty or entirely out-of-range set has no matching day at
		// all; treat it as daily so iteration still terminates.
		if len(allowed) == 0 {
			return t.AddDate(0, 0, 1)
		}
		return nextMatchingDay(t, func(d time.Weekday) bool { return allowed[d] })
	case model.RepeatWeekly:
		return t.AddDate(0, 0, 7)
	case model.RepeatEveryNWeeks:
		return t.AddDate(0, 0, 7*n)
	case model.RepeatMonthly:
		return t.AddDate(0, 1, 0)
	case model.RepeatEveryNMonths:
		return t.AddDate(0, n, 0)
	case model.RepeatYearly:
		return t.AddDate(1, 0, 0)
	case model.RepeatEveryNYears:
		return t.AddDate(n, 0, 0)
	case model.RepeatEveryNDays:
		return t.AddDate(0, 0, n)
	default:
		// Daily, plus the fallback for unknown types. Specific-dates
		// schedules are one-shot per listed date and are never advanced
		// here; a misconfigured one falls back to daily so bounded
		// catch-up loops still terminate.
		return t.AddDate(0, 0, 1)
	}
}

// AdvanceUntilAfter iterates NextOccurrence from t until the result is
// strictly after now. It returns ErrRunawayRecurrence when the safety cap
// is exhausted, which callers must surface as a schedule fault.
func AdvanceUntilAfter(t, now time.Time, p model.RepeatPolicy) (time.Time, error) {
	next := NextOccurrence(t, p)
	for steps := 1; !next.After(now); steps++ {
		if steps >= maxAdvanceSteps {
			return time.Time{}, ErrRunawayRecurrence
		}
		next = NextOccurrence(next, p)
	}
	return next, nil
}

// nextMatchingDay steps forward a day at a time until match accepts the
// weekday. Weekday predicates repeat with period seven, so a predicate that
// rejects a full week rejects every day; the step cap falls back to the
// next day instead of looping.
func nextMatchingDay(t time.Time, match func(time.Weekday) bool) time.Time {
	next := t.AddDate(0, 0, 1)
	for steps := 1; !match(next.Weekday()); steps++ {
		if steps >= 7 {
			return t.AddDate(0, 0, 1)
		}
		next = next.AddDate(0, 0, 1)
	}
	return next
}
