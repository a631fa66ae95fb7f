// Package importer implements the one-time bulk load: it guards against
// repeat imports, fetches the configured raw dumps, validates every record,
// and inserts the whole batch atomically.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/internal/mq"
	"github.com/septivank/energy-measurements-api/internal/repository"
	"github.com/septivank/energy-measurements-api/internal/validator"
	"go.uber.org/zap"
)

// ErrAlreadyImported means the store already holds measurements; the import
// runs at most once per database.
var ErrAlreadyImported = errors.New("data already imported")

// Store is the write-side contract the importer needs from the repository.
type Store interface {
	BeginImportTx(ctx context.Context) (repository.ImportTx, error)
	GetLatest(ctx context.Context) (*db.Measurement, error)
}

// Result summarizes a successful import.
type Result struct {
	InsertedCount int64           `json:"insertedCount"`
	Latest        *db.Measurement `json:"latestMeasurement"`
}

// Service runs the bulk import.
type Service struct {
	store      Store
	fetcher    *Fetcher
	validator  *validator.Validator
	publisher  mq.ImportPublisher
	sourceURLs []string
	logger     *zap.Logger
}

// NewService creates an importer over the given store and dump sources.
func NewService(
	store Store,
	fetcher *Fetcher,
	v *validator.Validator,
	publisher mq.ImportPublisher,
	sourceURLs []string,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		fetcher:    fetcher,
		validator:  v,
		publisher:  publisher,
		sourceURLs: sourceURLs,
		logger:     logger,
	}
}

// Import performs the bulk load. The emptiness check, the dump fetches and
// the batch insert all happen under one import transaction holding the
// store's advisory lock, so two concurrent calls cannot both insert: the
// second blocks on the lock and then fails with ErrAlreadyImported.
//
// The load is all-or-nothing. A malformed container or a single invalid
// record aborts the whole import with nothing written.
func (s *Service) Import(ctx context.Context) (*Result, error) {
	importID := uuid.NewString()
	logger := s.logger.With(zap.String("import_id", importID))

	tx, err := s.store.BeginImportTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	exists, err := tx.HasMeasurements(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyImported
	}

	measurements, err := s.fetchAndMap(ctx, logger)
	if err != nil {
		return nil, err
	}

	inserted, err := tx.InsertMeasurements(ctx, measurements)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	latest, err := s.store.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest measurement after import: %w", err)
	}

	logger.Info("import completed",
		zap.Int64("inserted_count", inserted),
		zap.Int("source_count", len(s.sourceURLs)),
	)

	// Best effort: downstream consumers get the event, but a broker outage
	// does not undo a committed import.
	event := mq.ImportCompletedEvent{
		ImportID:      importID,
		InsertedCount: inserted,
	}
	if latest != nil {
		event.LatestTimestamp = latest.Timestamp.Format(time.RFC3339)
	}
	if err := s.publisher.PublishImportCompleted(ctx, event); err != nil {
		logger.Error("failed to publish import completed event", zap.Error(err))
	}

	return &Result{InsertedCount: inserted, Latest: latest}, nil
}

// fetchAndMap downloads every configured dump and maps its records to
// canonical rows, failing on the first invalid record.
func (s *Service) fetchAndMap(ctx context.Context, logger *zap.Logger) ([]db.Measurement, error) {
	var measurements []db.Measurement

	for _, url := range s.sourceURLs {
		records, err := s.fetcher.FetchDump(ctx, url)
		if err != nil {
			return nil, err
		}
		logger.Debug("fetched dump",
			zap.String("url", url),
			zap.Int("record_count", len(records)),
		)

		mapped, err := s.mapRecords(url, records)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, mapped...)
	}

	return measurements, nil
}

func (s *Service) mapRecords(url string, records []json.RawMessage) ([]db.Measurement, error) {
	measurements := make([]db.Measurement, 0, len(records))
	for i, record := range records {
		m, err := s.validator.MapRecord(record)
		if err != nil {
			return nil, &UpstreamError{
				URL:    url,
				Reason: fmt.Sprintf("record %d rejected", i),
				Err:    err,
			}
		}
		measurements = append(measurements, *m)
	}
	return measurements, nil
}
