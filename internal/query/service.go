// Package query assembles measurement pages: it reads a filtered, ordered
// slice from the store, routes it through the resampler or the calendar
// aggregator, and computes the keyset cursor for the next page.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/internal/repository"
	"github.com/septivank/energy-measurements-api/internal/resample"
	"go.uber.org/zap"
)

// ErrInvariant marks states the pagination bookkeeping cannot legally reach.
var ErrInvariant = errors.New("internal invariant violated")

// MeasurementStore is the narrow read contract the orchestrator needs.
// *repository.Repository satisfies it; tests plug in an in-memory fake.
type MeasurementStore interface {
	ListMeasurements(ctx context.Context, filter repository.Filter) ([]db.Measurement, error)
	GetLatest(ctx context.Context) (*db.Measurement, error)
	GetTimeInterval(ctx context.Context) (min, max time.Time, err error)
}

// Params is one validated measurement query. Exactly one mode applies:
// fixed-width resampling when BucketWidth > 0, calendar mode when
// Granularity is set. WithAverage only matters in calendar mode; without it
// the raw rows pass through unmodified.
type Params struct {
	Muid        string
	Limit       int
	Cursor      int64
	Start       *time.Time
	End         *time.Time
	BucketWidth time.Duration
	Granularity resample.Granularity
	WithAverage bool
}

// ChartPoint is one point of a result page. Count is only set on
// calendar-aggregated points.
type ChartPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Muid  string  `json:"muid"`
	Count int64   `json:"count,omitempty"`
}

// Page is one page of chart data. NextCursor is absent on the terminal page.
type Page struct {
	ChartData  []ChartPoint `json:"chartData"`
	NextCursor *int64       `json:"nextCursor,omitempty"`
}

// Interval is the stored time range in epoch milliseconds.
type Interval struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Service orchestrates measurement queries.
type Service struct {
	store  MeasurementStore
	logger *zap.Logger
}

// NewService creates a query service over the given store.
func NewService(store MeasurementStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetAllMeasurements returns one page of (optionally resampled or
// aggregated) measurements.
//
// The store is asked for limit+1 rows; a full fetch means more data exists,
// and the extra row is popped from the page — its id becomes the next
// cursor, and the next call's fetch starts at that row. Mode processing runs
// over the raw fetched window, so after collapsing, a page can hold fewer
// points than the limit even when more raw rows remain. The "has more"
// signal stays raw-row based on purpose: the cursor must always be the id of
// a row actually observed in this fetch.
func (s *Service) GetAllMeasurements(ctx context.Context, params Params) (*Page, error) {
	if params.Limit < 1 {
		return nil, fmt.Errorf("%w: non-positive page limit %d", ErrInvariant, params.Limit)
	}

	rows, err := s.store.ListMeasurements(ctx, repository.Filter{
		Muid:   params.Muid,
		FromID: params.Cursor,
		Start:  params.Start,
		End:    params.End,
		Limit:  params.Limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch measurements: %w", err)
	}

	var nextCursor *int64
	if len(rows) > params.Limit {
		overflow := rows[len(rows)-1]
		if overflow.ID == 0 {
			return nil, fmt.Errorf("%w: overflow row without id", ErrInvariant)
		}
		nextCursor = &overflow.ID
	}

	// Mode processing runs over the whole fetched window, overflow row
	// included; the output is sliced to the limit afterwards.
	points := s.applyMode(rows, params)
	if len(points) > params.Limit {
		points = points[:params.Limit]
	}

	s.logger.Debug("assembled measurement page",
		zap.String("muid", params.Muid),
		zap.Int("fetched_rows", len(rows)),
		zap.Int("points", len(points)),
		zap.Bool("has_more", nextCursor != nil),
	)

	return &Page{ChartData: points, NextCursor: nextCursor}, nil
}

func (s *Service) applyMode(rows []db.Measurement, params Params) []ChartPoint {
	switch {
	case params.Granularity != "" && params.WithAverage:
		aggregates := resample.AggregateCalendar(rows, params.Granularity)
		points := make([]ChartPoint, 0, len(aggregates))
		for _, agg := range aggregates {
			points = append(points, ChartPoint{
				Time:  agg.Time.UnixMilli(),
				Value: agg.AvgValue,
				Muid:  agg.Muid,
				Count: agg.Count,
			})
		}
		return points

	case params.Granularity != "":
		// Calendar mode without averaging is the detail view: raw rows
		// pass through, the client picks the axis scale.
		points := make([]ChartPoint, 0, len(rows))
		for _, row := range rows {
			points = append(points, ChartPoint{
				Time:  row.Timestamp.UnixMilli(),
				Value: row.Value.InexactFloat64(),
				Muid:  row.Muid,
			})
		}
		return points

	default:
		resampled := resample.Resample(rows, params.BucketWidth)
		points := make([]ChartPoint, 0, len(resampled))
		for _, pt := range resampled {
			points = append(points, ChartPoint{
				Time:  pt.Time.UnixMilli(),
				Value: pt.Value.Value.InexactFloat64(),
				Muid:  pt.Value.Muid,
			})
		}
		return points
	}
}

// GetTimeInterval returns the stored min and max measurement timestamps.
// Fails with repository.ErrEmptyStore when nothing has been imported.
func (s *Service) GetTimeInterval(ctx context.Context) (*Interval, error) {
	min, max, err := s.store.GetTimeInterval(ctx)
	if err != nil {
		return nil, err
	}
	return &Interval{Min: min.UnixMilli(), Max: max.UnixMilli()}, nil
}

// GetLatest returns the newest stored measurement, or nil when the store is
// empty.
func (s *Service) GetLatest(ctx context.Context) (*db.Measurement, error) {
	return s.store.GetLatest(ctx)
}
