package resample

import (
	"fmt"
	"sort"
	"time"

	"github.com/septivank/energy-measurements-api/internal/db"
)

// Granularity is a calendar-aligned aggregation unit.
type Granularity string

const (
	Hourly  Granularity = "hourly"
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates a client-supplied granularity string.
func ParseGranularity(value string) (Granularity, error) {
	switch g := Granularity(value); g {
	case Hourly, Daily, Weekly, Monthly:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", value)
	}
}

// Aggregate is one calendar bucket: the mean over all rows of one muid whose
// truncated timestamp falls on Time, plus how many rows contributed.
type Aggregate struct {
	Time     time.Time
	Muid     string
	AvgValue float64
	Count    int64

	// minID is the smallest row id in the group, kept as the ordering
	// tie-break between buckets sharing a truncated timestamp.
	minID int64
}

// AggregateCalendar truncates each row to the start of its calendar unit
// (UTC boundaries, weeks starting Monday), groups by (truncated time, muid)
// and computes the arithmetic mean and count per group. Mean arithmetic is
// float64: precision loss against the decimal source is acceptable at the
// chart layer.
func AggregateCalendar(rows []db.Measurement, granularity Granularity) []Aggregate {
	if len(rows) == 0 {
		return nil
	}

	type key struct {
		ts   int64
		muid string
	}
	type group struct {
		sum   float64
		count int64
		minID int64
	}

	groups := make(map[key]*group)
	for _, row := range rows {
		truncated := Truncate(row.Timestamp, granularity)
		k := key{ts: truncated.UnixMilli(), muid: row.Muid}
		g, ok := groups[k]
		if !ok {
			g = &group{minID: row.ID}
			groups[k] = g
		}
		g.sum += row.Value.InexactFloat64()
		g.count++
		if row.ID < g.minID {
			g.minID = row.ID
		}
	}

	aggregates := make([]Aggregate, 0, len(groups))
	for k, g := range groups {
		aggregates = append(aggregates, Aggregate{
			Time:     time.UnixMilli(k.ts).UTC(),
			Muid:     k.muid,
			AvgValue: g.sum / float64(g.count),
			Count:    g.count,
			minID:    g.minID,
		})
	}
	sort.Slice(aggregates, func(i, j int) bool {
		if !aggregates[i].Time.Equal(aggregates[j].Time) {
			return aggregates[i].Time.Before(aggregates[j].Time)
		}
		return aggregates[i].minID < aggregates[j].minID
	})
	return aggregates
}

// Truncate rounds t down to the start of its containing calendar unit in UTC.
func Truncate(t time.Time, granularity Granularity) time.Time {
	t = t.UTC()
	switch granularity {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday counts Sunday as 0; shift so weeks start Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}
