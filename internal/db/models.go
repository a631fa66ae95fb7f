package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Register codes (meter addresses) a raw record may carry. Exactly one of
// these keys holds the reading value; when a record nominally carries more
// than one the record is rejected during import. The order here is the
// declared selection priority.
var RegisterCodes = []string{
	"0100011D00FF",
	"0100021D00FF",
}

// Measurement is one canonical energy measurement row. Rows are append-only:
// once inserted they are never updated or deleted.
type Measurement struct {
	ID           int64           `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Muid         string          `json:"muid"`
	MeterAddress string          `json:"meterAddress"`
	Value        decimal.Decimal `json:"value"`
	CreatedAt    time.Time       `json:"createdAt"`
}
