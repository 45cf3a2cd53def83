package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryArchiveRepository is the concrete implementation of Repository
// backed by one BigQuery table.
type BigQueryArchiveRepository struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryArchiveRepository creates a repository with a shared BigQuery client.
func NewBigQueryArchiveRepository(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (*BigQueryArchiveRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryArchiveRepository: creating client: %w", err)
	}
	return &BigQueryArchiveRepository{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryArchiveRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the archive table, partitioned by transaction date,
// if it does not exist yet.
func (r *BigQueryArchiveRepository) EnsureTable(ctx context.Context) error {
	schema, err := Schema()
	if err != nil {
		return err
	}

	t := r.client.Dataset(r.dataset).Table(r.table)
	err = t.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "transaction_date",
		},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", r.dataset, r.table, err)
	}
	return nil
}

// InsertTransactions streams a batch of rows into the archive table.
func (r *BigQueryArchiveRepository) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := r.client.Dataset(r.dataset).Table(r.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ListSnapshot reads back the rows of one archive run.
func (r *BigQueryArchiveRepository) ListSnapshot(ctx context.Context, snapshotID string) ([]*TransactionRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			snapshot_id,
			transaction_id,
			title,
			category,
			amount,
			signed_amount,
			currency,
			direction,
			transaction_date,
			transaction_ts,
			archived_ts
		FROM `+"`%s.%s`"+`
		WHERE snapshot_id = @snapshot_id
		ORDER BY transaction_date, transaction_id
	`, r.dataset, r.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "snapshot_id", Value: snapshotID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSnapshot: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSnapshot: iter next: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// Schema is the table schema inferred from TransactionRow.
func Schema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return nil, fmt.Errorf("Schema: inferring schema: %w", err)
	}
	return schema, nil
}
