package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/shopspring/decimal"
)

// ErrEmptyStore is returned by interval queries when no measurement exists.
var ErrEmptyStore = errors.New("no measurements in store")

// Advisory lock key for the bulk import. Serializing the emptiness check and
// the batch insert behind this lock is what makes concurrent importData calls
// safe: the loser blocks until the winner commits, then sees its rows.
const importLockKey = 721_355_001

// Filter describes one keyset-paginated read of the measurement set.
// Muid is required; the rest is optional. FromID is the keyset lower bound
// taken from a cursor: the cursor row itself was popped from the previous
// page, so the bound is inclusive. Zero means no cursor.
type Filter struct {
	Muid   string
	FromID int64
	Start  *time.Time
	End    *time.Time
	Limit  int
}

// Repository handles database operations for energy measurements
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const measurementColumns = `id, timestamp, muid, meter_address, value::text, created_at`

func scanMeasurement(row pgx.Row) (*db.Measurement, error) {
	var (
		m        db.Measurement
		valueStr string
	)
	if err := row.Scan(&m.ID, &m.Timestamp, &m.Muid, &m.MeterAddress, &valueStr, &m.CreatedAt); err != nil {
		return nil, err
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored value %q: %w", valueStr, err)
	}
	m.Value = value
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}

// ListMeasurements returns rows matching the filter ordered by
// (timestamp ASC, id ASC). Timestamps alone are not unique, so the id
// tie-break is what gives pages a stable total order.
func (r *Repository) ListMeasurements(ctx context.Context, filter Filter) ([]db.Measurement, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)

	sb.WriteString(`SELECT ` + measurementColumns + ` FROM energy_measurements WHERE muid = $1`)
	args = append(args, filter.Muid)

	if filter.FromID > 0 {
		args = append(args, filter.FromID)
		fmt.Fprintf(&sb, " AND id >= $%d", len(args))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		fmt.Fprintf(&sb, " AND timestamp >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		fmt.Fprintf(&sb, " AND timestamp <= $%d", len(args))
	}

	sb.WriteString(" ORDER BY timestamp ASC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []db.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		measurements = append(measurements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return measurements, nil
}

// GetLatest returns the newest measurement by timestamp, or nil when the
// store is empty.
func (r *Repository) GetLatest(ctx context.Context) (*db.Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM energy_measurements
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	m, err := scanMeasurement(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest measurement: %w", err)
	}
	return m, nil
}

// GetTimeInterval returns the earliest and latest measurement timestamps.
func (r *Repository) GetTimeInterval(ctx context.Context) (min, max time.Time, err error) {
	query := `SELECT MIN(timestamp), MAX(timestamp) FROM energy_measurements`

	var minPtr, maxPtr *time.Time
	if err := r.pool.QueryRow(ctx, query).Scan(&minPtr, &maxPtr); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to query time interval: %w", err)
	}
	if minPtr == nil || maxPtr == nil {
		return time.Time{}, time.Time{}, ErrEmptyStore
	}
	return minPtr.UTC(), maxPtr.UTC(), nil
}

// ImportTx scopes the bulk import. All operations run in one database
// transaction holding the import advisory lock, so the emptiness check and
// the batch insert are atomic with respect to concurrent imports.
type ImportTx interface {
	HasMeasurements(ctx context.Context) (bool, error)
	InsertMeasurements(ctx context.Context, measurements []db.Measurement) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginImportTx starts the bulk-import transaction and takes the import
// advisory lock. The lock is released automatically at commit or rollback.
// A concurrent import blocks here until the first one finishes, then
// observes its rows through HasMeasurements.
func (r *Repository) BeginImportTx(ctx context.Context) (ImportTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, importLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to take import lock: %w", err)
	}
	return &importTx{tx: tx}, nil
}

type importTx struct {
	tx pgx.Tx
}

// HasMeasurements reports whether any measurement row exists, observed under
// the import transaction.
func (t *importTx) HasMeasurements(ctx context.Context) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM energy_measurements)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check store emptiness: %w", err)
	}
	return exists, nil
}

// InsertMeasurements inserts the whole batch and returns the inserted count.
func (t *importTx) InsertMeasurements(ctx context.Context, measurements []db.Measurement) (int64, error) {
	query := `
		INSERT INTO energy_measurements (timestamp, muid, meter_address, value)
		VALUES ($1, $2, $3, $4::numeric)
	`

	batch := &pgx.Batch{}
	for _, m := range measurements {
		batch.Queue(query, m.Timestamp, m.Muid, m.MeterAddress, m.Value.String())
	}

	results := t.tx.SendBatch(ctx, batch)

	var inserted int64
	for range measurements {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert measurement: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}
	return inserted, nil
}

func (t *importTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *importTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
