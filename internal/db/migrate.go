package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The compound index matches the query path exactly: muid equality, timestamp
// range, id tie-break. Keyset pagination depends on (timestamp, id) being a
// total order per muid.
const schema = `
CREATE TABLE IF NOT EXISTS energy_measurements (
	id            BIGSERIAL PRIMARY KEY,
	timestamp     TIMESTAMPTZ NOT NULL,
	muid          VARCHAR(256) NOT NULL,
	meter_address VARCHAR(256) NOT NULL,
	value         NUMERIC NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS energy_measurements_muid_ts_id_idx
	ON energy_measurements (muid, timestamp, id);
`

// Migrate creates the measurement table and its index if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
