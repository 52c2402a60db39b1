package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fieldtasker/internal/domain"
	"fieldtasker/internal/stats"
)

func entry(date string, status domain.TaskStatus) domain.HistoryEntry {
	return domain.HistoryEntry{
		ActionDate:    date,
		CurrentStatus: &status,
	}
}

func TestDailyProgressCumulative(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 4, 18, 0, 0, 0, time.UTC)
	entries := []domain.HistoryEntry{
		entry("2025-06-01T10:00:00Z", domain.StatusMapped),
		entry("2025-06-01T11:00:00Z", domain.StatusMapped),
		entry("2025-06-02T09:30:00Z", domain.StatusValidated),
		entry("2025-06-04T08:00:00Z", domain.StatusMapped),
	}

	series := stats.DailyProgress(entries, start, end)
	require.Len(t, series, 4)

	require.Equal(t, "2025-06-01", series[0].Date)
	require.Equal(t, 2, series[0].CumulativeMapped)
	require.Equal(t, 0, series[0].CumulativeValidated)

	require.Equal(t, "2025-06-02", series[1].Date)
	require.Equal(t, 2, series[1].CumulativeMapped)
	require.Equal(t, 1, series[1].CumulativeValidated)

	// A day with no activity still gets a point carrying prior totals.
	require.Equal(t, "2025-06-03", series[2].Date)
	require.Equal(t, 2, series[2].CumulativeMapped)
	require.Equal(t, 1, series[2].CumulativeValidated)

	require.Equal(t, "2025-06-04", series[3].Date)
	require.Equal(t, 3, series[3].CumulativeMapped)
	require.Equal(t, 1, series[3].CumulativeValidated)
}

func TestDailyProgressIgnoresNonStatusEntries(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.HistoryEntry{
		{ActionDate: "2025-06-01T10:00:00Z"}, // comment, no status
		entry("2025-06-01T10:00:00Z", domain.StatusLockedForMapping),
		entry("2025-06-01T12:00:00Z", domain.StatusMapped),
	}
	series := stats.DailyProgress(entries, start, start)
	require.Len(t, series, 1)
	require.Equal(t, 1, series[0].CumulativeMapped)
	require.Equal(t, 0, series[0].CumulativeValidated)
}

func TestDailyProgressRollsEarlierEntriesIntoFirstDay(t *testing.T) {
	start := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	entries := []domain.HistoryEntry{
		entry("2025-06-01T10:00:00Z", domain.StatusMapped),
		entry("2025-06-03T10:00:00Z", domain.StatusValidated),
	}
	series := stats.DailyProgress(entries, start, end)
	require.Len(t, series, 2)
	require.Equal(t, 1, series[0].CumulativeMapped)
	require.Equal(t, 1, series[0].CumulativeValidated)
}

func TestDailyProgressEmptyWindow(t *testing.T) {
	start := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	require.Nil(t, stats.DailyProgress(nil, start, start.Add(-48*time.Hour)))
}
