// Package stats derives reporting series from task history. Everything here
// is a pure function over history entries; the entries themselves are the
// single source of truth, never the current task rows.
package stats

import (
	"time"

	"fieldtasker/internal/domain"
)

const dayFormat = "2006-01-02"

// DailyProgress buckets history entries into one point per calendar day (UTC)
// from start through end inclusive and returns the cumulative mapped and
// validated counts at the close of each day. Entries dated before start roll
// into the first day's totals so the series never understates progress.
func DailyProgress(entries []domain.HistoryEntry, start, end time.Time) []domain.DailyCount {
	startDay := start.UTC().Truncate(24 * time.Hour)
	endDay := end.UTC().Truncate(24 * time.Hour)
	if endDay.Before(startDay) {
		return nil
	}

	mappedPerDay := map[string]int{}
	validatedPerDay := map[string]int{}
	var mappedBefore, validatedBefore int
	for _, e := range entries {
		if e.CurrentStatus == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, e.ActionDate)
		if err != nil {
			continue
		}
		day := ts.UTC().Truncate(24 * time.Hour)
		switch {
		case day.Before(startDay):
			switch *e.CurrentStatus {
			case domain.StatusMapped:
				mappedBefore++
			case domain.StatusValidated:
				validatedBefore++
			}
		case day.After(endDay):
			// Ignore; the caller asked for a closed window.
		default:
			key := day.Format(dayFormat)
			switch *e.CurrentStatus {
			case domain.StatusMapped:
				mappedPerDay[key]++
			case domain.StatusValidated:
				validatedPerDay[key]++
			}
		}
	}

	days := int(endDay.Sub(startDay)/(24*time.Hour)) + 1
	series := make([]domain.DailyCount, 0, days)
	mapped, validated := mappedBefore, validatedBefore
	for d := startDay; !d.After(endDay); d = d.Add(24 * time.Hour) {
		key := d.Format(dayFormat)
		mapped += mappedPerDay[key]
		validated += validatedPerDay[key]
		series = append(series, domain.DailyCount{
			Date:                key,
			CumulativeMapped:    mapped,
			CumulativeValidated: validated,
		})
	}
	return series
}
