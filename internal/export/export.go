// Package export writes snapshots of the transaction list to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// Format is the encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) contentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Source walks every transaction page by page.
type Source interface {
	ListInfinite(ctx context.Context, pageSize int) ([]domain.Transaction, error)
}

// Result describes an uploaded snapshot.
type Result struct {
	URI    string
	Rows   int
	Totals domain.Totals
}

// Exporter uploads snapshots of the confirmed transaction list.
type Exporter struct {
	source   Source
	writer   ObjectWriter
	bucket   string
	prefix   string
	pageSize int
	log      zerolog.Logger
	now      func() time.Time
}

// NewExporter creates an exporter writing under gs://bucket/prefix.
func NewExporter(source Source, writer ObjectWriter, bucket, prefix string, pageSize int, log zerolog.Logger) *Exporter {
	if pageSize < 1 {
		pageSize = domain.DefaultTake
	}
	return &Exporter{
		source:   source,
		writer:   writer,
		bucket:   bucket,
		prefix:   prefix,
		pageSize: pageSize,
		log:      log,
		now:      time.Now,
	}
}

// Export reads every page and uploads one object in the given format.
// Rows still carrying a temporary id are left out: the server has not
// confirmed them.
func (e *Exporter) Export(ctx context.Context, format Format) (Result, error) {
	txs, err := e.source.ListInfinite(ctx, e.pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("Export: list transactions: %w", err)
	}

	confirmed := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !domain.IsTemporaryID(tx.ID) {
			confirmed = append(confirmed, tx)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, format, confirmed); err != nil {
		return Result{}, fmt.Errorf("Export: encode: %w", err)
	}

	object := e.objectName(format)
	if err := e.writer.WriteObject(ctx, e.bucket, object, format.contentType(), &buf); err != nil {
		return Result{}, fmt.Errorf("Export: upload %s: %w", object, err)
	}

	res := Result{
		URI:    URI(e.bucket, object),
		Rows:   len(confirmed),
		Totals: domain.ComputeTotals(confirmed),
	}
	e.log.Info().
		Str("uri", res.URI).
		Int("rows", res.Rows).
		Str("total", res.Totals.Total.StringFixed(2)).
		Msg("Export uploaded")
	return res, nil
}

func (e *Exporter) objectName(format Format) string {
	name := fmt.Sprintf("transactions-%s.%s", e.now().UTC().Format("20060102T150405Z"), format)
	if e.prefix == "" {
		return name
	}
	return e.prefix + "/" + name
}

// Verify reads an uploaded snapshot back and checks that it holds the rows
// and balance that Export reported.
func (e *Exporter) Verify(ctx context.Context, reader ObjectReader, res Result, format Format) error {
	bucket, object, err := ParseURI(res.URI)
	if err != nil {
		return fmt.Errorf("Verify: %w", err)
	}
	data, err := reader.ReadObject(ctx, bucket, object)
	if err != nil {
		return fmt.Errorf("Verify: %w", err)
	}
	txs, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return fmt.Errorf("Verify: decode %s: %w", res.URI, err)
	}
	if len(txs) != res.Rows {
		return fmt.Errorf("Verify: %s holds %d rows, want %d", res.URI, len(txs), res.Rows)
	}
	// CSV prices are rounded to cents, so compare at that precision.
	got := domain.ComputeTotals(txs).Total.StringFixed(2)
	if want := res.Totals.Total.StringFixed(2); got != want {
		return fmt.Errorf("Verify: %s balances to %s, want %s", res.URI, got, want)
	}

	e.log.Info().Str("uri", res.URI).Int("rows", len(txs)).Msg("Export verified")
	return nil
}

var csvHeader = []string{"id", "title", "price", "type", "category", "date"}

// Encode writes transactions in the given format.
func Encode(w io.Writer, format Format, txs []domain.Transaction) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if txs == nil {
			txs = []domain.Transaction{}
		}
		return enc.Encode(txs)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, tx := range txs {
			record := []string{
				tx.ID,
				tx.Title,
				decimal.NewFromFloat(tx.Price).StringFixed(2),
				string(tx.Type),
				tx.Category,
				tx.Date.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("unknown export format %q", format)
}

// Decode is the inverse of Encode.
func Decode(r io.Reader, format Format) ([]domain.Transaction, error) {
	switch format {
	case FormatJSON:
		var txs []domain.Transaction
		if err := json.NewDecoder(r).Decode(&txs); err != nil {
			return nil, err
		}
		return txs, nil
	case FormatCSV:
		records, err := csv.NewReader(r).ReadAll()
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("missing header")
		}
		txs := make([]domain.Transaction, 0, len(records)-1)
		for i, rec := range records[1:] {
			if len(rec) != len(csvHeader) {
				return nil, fmt.Errorf("line %d: %d fields, want %d", i+2, len(rec), len(csvHeader))
			}
			price, err := strconv.ParseFloat(rec[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: price: %w", i+2, err)
			}
			date, err := time.Parse(time.RFC3339, rec[5])
			if err != nil {
				return nil, fmt.Errorf("line %d: date: %w", i+2, err)
			}
			txs = append(txs, domain.Transaction{
				ID:       rec[0],
				Title:    rec[1],
				Price:    price,
				Type:     domain.TransactionType(rec[3]),
				Category: rec[4],
				Date:     date,
			})
		}
		return txs, nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}
