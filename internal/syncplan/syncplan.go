// Package syncplan decides which created_at window to request from the
// upstream API next.
package syncplan

import (
	"fmt"
	"time"

	"posdash/internal/domain"
)

const (
	ModeColdStart = "cold_start"
	ModeResume    = "resume"
	ModeFallback  = "fallback"

	ColdStartDays = 30
	SkewDays      = 7
)

// Plan returns the next window given the persisted created_at bounds. "today"
// is the calendar day of now in loc; a resume window works on exact instants
// so a same-day resume never refetches the boundary receipt.
func Plan(bounds domain.DateBounds, now time.Time, loc *time.Location) domain.SyncRange {
	if loc == nil {
		loc = time.UTC
	}

	if bounds.Empty() {
		r := lastDays(now, loc, ColdStartDays)
		r.Mode = ModeColdStart
		r.Reason = fmt.Sprintf("no receipts stored yet, fetching the last %d days", ColdStartDays)
		return r
	}

	latest, err := domain.ParseTimestamp(*bounds.Max)
	if err != nil {
		r := lastDays(now, loc, ColdStartDays)
		r.Mode = ModeFallback
		r.Reason = fmt.Sprintf("latest receipt timestamp %q is unreadable (%v), fetching the last %d days", *bounds.Max, err, ColdStartDays)
		return r
	}

	start := latest.Add(time.Second)
	end := now.UTC()
	if start.After(end) {
		r := lastDays(now, loc, SkewDays)
		r.Mode = ModeFallback
		r.Reason = fmt.Sprintf("latest receipt %s is ahead of now, fetching the last %d days", domain.FormatTimestamp(latest), SkewDays)
		return r
	}

	return domain.SyncRange{
		Start:  start,
		End:    end,
		Mode:   ModeResume,
		Reason: fmt.Sprintf("resuming after latest receipt %s", domain.FormatTimestamp(latest)),
	}
}

// DayWindow converts inclusive calendar dates in loc to a UTC instant range
// covering both whole days.
func DayWindow(startDate string, endDate string, loc *time.Location) (domain.SyncRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02", startDate, loc)
	if err != nil {
		return domain.SyncRange{}, fmt.Errorf("start date: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, loc)
	if err != nil {
		return domain.SyncRange{}, fmt.Errorf("end date: %w", err)
	}
	if end.Before(start) {
		return domain.SyncRange{}, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	return domain.SyncRange{
		Start:  start.UTC(),
		End:    endOfDay(end).UTC(),
		Mode:   "manual",
		Reason: fmt.Sprintf("requested %s to %s", startDate, endDate),
	}, nil
}

func lastDays(now time.Time, loc *time.Location, days int) domain.SyncRange {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return domain.SyncRange{
		Start: today.AddDate(0, 0, -days).UTC(),
		End:   endOfDay(today).UTC(),
	}
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999_000_000, day.Location())
}
