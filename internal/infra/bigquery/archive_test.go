package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
)

// mockRepository is a mock implementation of Repository.
type mockRepository struct {
	InsertTransactionsFunc func(ctx context.Context, rows []*TransactionRow) error
	ListSnapshotFunc       func(ctx context.Context, snapshotID string) ([]*TransactionRow, error)
	batches                [][]*TransactionRow
}

func (m *mockRepository) ListSnapshot(ctx context.Context, snapshotID string) ([]*TransactionRow, error) {
	if m.ListSnapshotFunc != nil {
		return m.ListSnapshotFunc(ctx, snapshotID)
	}
	var out []*TransactionRow
	for _, batch := range m.batches {
		for _, row := range batch {
			if row.SnapshotID == snapshotID {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (m *mockRepository) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	m.batches = append(m.batches, rows)
	if m.InsertTransactionsFunc != nil {
		return m.InsertTransactionsFunc(ctx, rows)
	}
	return nil
}

// mockSource is a mock implementation of Source.
type mockSource struct {
	page domain.Page
	err  error
}

func (m *mockSource) ListAll(ctx context.Context) (domain.Page, error) {
	return m.page, m.err
}

func TestToRow(t *testing.T) {
	archivedAt := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		tx           domain.Transaction
		wantSigned   string
		wantDate     civil.Date
		wantCategory bool
	}{
		{
			name:         "income",
			tx:           domain.Transaction{ID: "1", Title: "Salary", Price: 5000, Type: domain.TransactionTypeIncome, Category: "Work", Date: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)},
			wantSigned:   "5000.00",
			wantDate:     civil.Date{Year: 2024, Month: time.March, Day: 5},
			wantCategory: true,
		},
		{
			name:       "outcome without date or category",
			tx:         domain.Transaction{ID: "2", Title: "Coffee", Price: 12.5, Type: domain.TransactionTypeOutcome},
			wantSigned: "-12.50",
			wantDate:   civil.Date{Year: 2024, Month: time.March, Day: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ToRow(tt.tx, "snap-1", "BRL", archivedAt)

			if row.SnapshotID != "snap-1" || row.TransactionID != tt.tx.ID || row.Currency != "BRL" {
				t.Errorf("identity fields = %+v", row)
			}
			if got := row.SignedAmount.FloatString(2); got != tt.wantSigned {
				t.Errorf("SignedAmount = %s, want %s", got, tt.wantSigned)
			}
			if row.Amount.Sign() < 0 {
				t.Errorf("Amount = %s, want a magnitude", row.Amount.FloatString(2))
			}
			if row.TransactionDate != tt.wantDate {
				t.Errorf("TransactionDate = %v, want %v", row.TransactionDate, tt.wantDate)
			}
			if row.TransactionTS.Valid != !tt.tx.Date.IsZero() {
				t.Errorf("TransactionTS.Valid = %v", row.TransactionTS.Valid)
			}
			if row.Category.Valid != tt.wantCategory {
				t.Errorf("Category.Valid = %v, want %v", row.Category.Valid, tt.wantCategory)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	names := map[string]bool{}
	for _, f := range schema {
		names[f.Name] = true
	}
	for _, want := range []string{"snapshot_id", "transaction_id", "amount", "signed_amount", "transaction_date", "archived_ts"} {
		if !names[want] {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestArchiver_SkipsTemporaryRowsAndBatches(t *testing.T) {
	var data []domain.Transaction
	for i := 0; i < insertBatchSize+3; i++ {
		data = append(data, domain.Transaction{ID: fmt.Sprintf("%d", i), Title: "t", Price: 1, Type: domain.TransactionTypeIncome})
	}
	data = append(data, domain.Transaction{ID: domain.NewTemporaryID(), Title: "pending", Price: 1, Type: domain.TransactionTypeIncome})

	repo := &mockRepository{}
	a := NewArchiver(&mockSource{page: domain.Page{Data: data, Total: len(data)}}, repo, "BRL", logger.NewWithWriter(io.Discard))

	snapshotID, n, err := a.Archive(context.Background())
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if n != insertBatchSize+3 {
		t.Errorf("rows = %d, want %d", n, insertBatchSize+3)
	}
	if len(repo.batches) != 2 || len(repo.batches[0]) != insertBatchSize || len(repo.batches[1]) != 3 {
		t.Errorf("batches = %d", len(repo.batches))
	}
	for _, batch := range repo.batches {
		for _, row := range batch {
			if row.SnapshotID != snapshotID {
				t.Fatalf("row snapshot %q, want %q", row.SnapshotID, snapshotID)
			}
			if domain.IsTemporaryID(row.TransactionID) {
				t.Fatalf("temporary row archived: %s", row.TransactionID)
			}
		}
	}
}

func TestArchiver_Errors(t *testing.T) {
	listErr := errors.New("could not connect to server")
	a := NewArchiver(&mockSource{err: listErr}, &mockRepository{}, "BRL", logger.NewWithWriter(io.Discard))
	if _, _, err := a.Archive(context.Background()); !errors.Is(err, listErr) {
		t.Errorf("err = %v, want list error", err)
	}

	insertErr := errors.New("quota exceeded")
	repo := &mockRepository{InsertTransactionsFunc: func(ctx context.Context, rows []*TransactionRow) error { return insertErr }}
	page := domain.Page{Data: []domain.Transaction{{ID: "1", Title: "a", Type: domain.TransactionTypeIncome}}}
	a = NewArchiver(&mockSource{page: page}, repo, "BRL", logger.NewWithWriter(io.Discard))
	if _, n, err := a.Archive(context.Background()); !errors.Is(err, insertErr) || n != 0 {
		t.Errorf("Archive() = %d, %v", n, err)
	}
}

func TestArchiver_Verify(t *testing.T) {
	page := domain.Page{Data: []domain.Transaction{
		{ID: "1", Title: "a", Price: 1, Type: domain.TransactionTypeIncome},
		{ID: "2", Title: "b", Price: 2, Type: domain.TransactionTypeOutcome},
	}}
	repo := &mockRepository{}
	a := NewArchiver(&mockSource{page: page}, repo, "BRL", logger.NewWithWriter(io.Discard))

	snapshotID, n, err := a.Archive(context.Background())
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := a.Verify(context.Background(), snapshotID, n); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := a.Verify(context.Background(), snapshotID, n+1); err == nil {
		t.Error("Verify() with a wrong count should fail")
	}
	if err := a.Verify(context.Background(), "other-snapshot", n); err == nil {
		t.Error("Verify() of an unknown snapshot should fail")
	}

	dup := ToRow(page.Data[0], "snap", "BRL", time.Now())
	repo.ListSnapshotFunc = func(ctx context.Context, snapshotID string) ([]*TransactionRow, error) {
		return []*TransactionRow{dup, dup}, nil
	}
	if err := a.Verify(context.Background(), "snap", 2); err == nil {
		t.Error("Verify() should reject duplicated transactions")
	}

	queryErr := errors.New("access denied")
	repo.ListSnapshotFunc = func(ctx context.Context, snapshotID string) ([]*TransactionRow, error) {
		return nil, queryErr
	}
	if err := a.Verify(context.Background(), "snap", 2); !errors.Is(err, queryErr) {
		t.Errorf("Verify() err = %v, want query error", err)
	}
}
