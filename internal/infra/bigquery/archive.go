package bigquery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// insertBatchSize keeps each streaming insert request small.
const insertBatchSize = 500

// Source provides the unpaginated transaction list.
type Source interface {
	ListAll(ctx context.Context) (domain.Page, error)
}

// Archiver copies the confirmed transaction list into the archive.
type Archiver struct {
	source   Source
	repo     Repository
	currency string
	log      zerolog.Logger
	now      func() time.Time
}

func NewArchiver(source Source, repo Repository, currency string, log zerolog.Logger) *Archiver {
	return &Archiver{
		source:   source,
		repo:     repo,
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// Archive writes one snapshot and returns its id and row count. Rows under a
// temporary id are skipped.
func (a *Archiver) Archive(ctx context.Context) (string, int, error) {
	page, err := a.source.ListAll(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("Archive: list transactions: %w", err)
	}

	snapshotID := uuid.NewString()
	archivedAt := a.now()
	rows := make([]*TransactionRow, 0, len(page.Data))
	for _, tx := range page.Data {
		if domain.IsTemporaryID(tx.ID) {
			continue
		}
		rows = append(rows, ToRow(tx, snapshotID, a.currency, archivedAt))
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := a.repo.InsertTransactions(ctx, rows[start:end]); err != nil {
			return snapshotID, start, fmt.Errorf("Archive: batch at %d: %w", start, err)
		}
	}

	a.log.Info().
		Str("snapshot_id", snapshotID).
		Int("rows", len(rows)).
		Msg("Transactions archived")
	return snapshotID, len(rows), nil
}

// Verify reads a snapshot back and checks that it holds want rows, each
// transaction once.
func (a *Archiver) Verify(ctx context.Context, snapshotID string, want int) error {
	rows, err := a.repo.ListSnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("Verify: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.TransactionID] {
			return fmt.Errorf("Verify: snapshot %s holds transaction %s twice", snapshotID, row.TransactionID)
		}
		seen[row.TransactionID] = true
	}
	if len(rows) != want {
		return fmt.Errorf("Verify: snapshot %s holds %d rows, want %d", snapshotID, len(rows), want)
	}

	a.log.Info().Str("snapshot_id", snapshotID).Int("rows", len(rows)).Msg("Archive verified")
	return nil
}
