// Package resample collapses raw measurement rows for display: either into
// fixed-width time buckets (latest reading wins) or into calendar-aligned
// buckets carrying the mean and count.
package resample

import (
	"sort"
	"time"

	"github.com/septivank/energy-measurements-api/internal/db"
)

// Point is one resampled measurement keyed by its bucket start.
type Point struct {
	Time  time.Time
	Value db.Measurement
}

// Resample snaps each row's timestamp to the nearest multiple of width
// (round half up) and keeps, per bucket, the row with the greatest original
// timestamp. Output is ordered by bucket start ascending.
//
// Running Resample over its own output with the same width reproduces it:
// every bucket start is already a multiple of width and holds one row.
func Resample(rows []db.Measurement, width time.Duration) []Point {
	if len(rows) == 0 {
		return nil
	}

	widthMs := width.Milliseconds()
	buckets := make(map[int64]db.Measurement)

	for _, row := range rows {
		start := bucketStart(row.Timestamp.UnixMilli(), widthMs)
		current, ok := buckets[start]
		if !ok || laterThan(row, current) {
			buckets[start] = row
		}
	}

	points := make([]Point, 0, len(buckets))
	for start, row := range buckets {
		points = append(points, Point{
			Time:  time.UnixMilli(start).UTC(),
			Value: row,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points
}

// bucketStart rounds ts to the nearest multiple of width, half up.
// Timestamps are epoch millis and non-negative in practice, so integer
// division is the floor we need.
func bucketStart(tsMs, widthMs int64) int64 {
	return (tsMs + widthMs/2) / widthMs * widthMs
}

// laterThan reports whether a should replace b inside one bucket. Latest
// original timestamp wins; equal timestamps fall back to the larger id so
// replacement stays deterministic.
func laterThan(a, b db.Measurement) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
