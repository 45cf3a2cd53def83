package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// TransactionRow is one archived transaction. Rows from the same archive run
// share a SnapshotID.
type TransactionRow struct {
	SnapshotID    string `bigquery:"snapshot_id"`    // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	Title    string              `bigquery:"title"`    // REQUIRED STRING
	Category bigquery.NullString `bigquery:"category"` // NULLABLE

	// Amount is the magnitude; SignedAmount is negative for outcome rows.
	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC
	SignedAmount *big.Rat `bigquery:"signed_amount"` // REQUIRED NUMERIC
	Currency     string   `bigquery:"currency"`      // REQUIRED STRING
	Direction    string   `bigquery:"direction"`     // INCOME | OUTCOME

	TransactionDate civil.Date             `bigquery:"transaction_date"` // REQUIRED
	TransactionTS   bigquery.NullTimestamp `bigquery:"transaction_ts"`   // NULLABLE

	ArchivedTS time.Time `bigquery:"archived_ts"` // REQUIRED
}

// ToRow converts a confirmed transaction into an archive row.
func ToRow(tx domain.Transaction, snapshotID, currency string, archivedAt time.Time) *TransactionRow {
	amount := decimal.NewFromFloat(tx.Price)
	signed := decimal.NewFromFloat(tx.SignedPrice())

	row := &TransactionRow{
		SnapshotID:    snapshotID,
		TransactionID: tx.ID,
		Title:         tx.Title,
		Amount:        amount.Rat(),
		SignedAmount:  signed.Rat(),
		Currency:      currency,
		Direction:     string(tx.Type),
		ArchivedTS:    archivedAt.UTC(),
	}
	if tx.Category != "" {
		row.Category = bigquery.NullString{StringVal: tx.Category, Valid: true}
	}
	if !tx.Date.IsZero() {
		row.TransactionDate = civil.DateOf(tx.Date.UTC())
		row.TransactionTS = bigquery.NullTimestamp{Timestamp: tx.Date.UTC(), Valid: true}
	} else {
		row.TransactionDate = civil.DateOf(archivedAt.UTC())
	}
	return row
}
