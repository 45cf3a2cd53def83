package bigquery

import "context"

// Repository stores archive rows and reads snapshots back.
type Repository interface {
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error
	ListSnapshot(ctx context.Context, snapshotID string) ([]*TransactionRow, error)
}
