package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
)

// mockSource is a mock implementation of Source.
type mockSource struct {
	ListInfiniteFunc func(ctx context.Context, pageSize int) ([]domain.Transaction, error)
}

func (m *mockSource) ListInfinite(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
	return m.ListInfiniteFunc(ctx, pageSize)
}

// mockWriter is a mock implementation of ObjectWriter.
type mockWriter struct {
	bucket, object, contentType string
	data                        []byte
	err                         error
}

func (m *mockWriter) WriteObject(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	if m.err != nil {
		return m.err
	}
	m.bucket, m.object, m.contentType = bucket, object, contentType
	data, err := io.ReadAll(r)
	m.data = data
	return err
}

var rows = []domain.Transaction{
	{ID: "1", Title: "Salary", Price: 5000, Type: domain.TransactionTypeIncome, Category: "Work", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	{ID: "2", Title: "Rent, flat", Price: 1500.5, Type: domain.TransactionTypeOutcome, Category: "Home", Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)},
	{ID: domain.TemporaryIDPrefix + "abc", Title: "Pending", Price: 1, Type: domain.TransactionTypeIncome},
}

func newTestExporter(src Source, w ObjectWriter) *Exporter {
	e := NewExporter(src, w, "exports-bucket", "daily", 50, logger.NewWithWriter(io.Discard))
	e.now = func() time.Time { return time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC) }
	return e
}

func TestExporter_CSV(t *testing.T) {
	var gotPageSize int
	src := &mockSource{ListInfiniteFunc: func(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
		gotPageSize = pageSize
		return rows, nil
	}}
	w := &mockWriter{}

	res, err := newTestExporter(src, w).Export(context.Background(), FormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if gotPageSize != 50 {
		t.Errorf("page size = %d, want 50", gotPageSize)
	}
	if w.bucket != "exports-bucket" || w.object != "daily/transactions-20240308T093000Z.csv" || w.contentType != "text/csv" {
		t.Errorf("object = %s/%s (%s)", w.bucket, w.object, w.contentType)
	}
	if res.URI != "gs://exports-bucket/daily/transactions-20240308T093000Z.csv" || res.Rows != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.Totals.Total.StringFixed(2) != "3499.50" {
		t.Errorf("total = %s, want 3499.50", res.Totals.Total.StringFixed(2))
	}

	records, err := csv.NewReader(bytes.NewReader(w.data)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header plus 2", len(records))
	}
	want := []string{"2", "Rent, flat", "1500.50", "OUTCOME", "Home", "2024-03-06T00:00:00Z"}
	for i, field := range want {
		if records[2][i] != field {
			t.Errorf("record[2][%d] = %q, want %q", i, records[2][i], field)
		}
	}
}

func TestExporter_JSON(t *testing.T) {
	src := &mockSource{ListInfiniteFunc: func(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
		return nil, nil
	}}
	w := &mockWriter{}

	res, err := newTestExporter(src, w).Export(context.Background(), FormatJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Rows != 0 || w.contentType != "application/json" {
		t.Errorf("result = %+v content type %q", res, w.contentType)
	}
	var decoded []domain.Transaction
	if err := json.Unmarshal(w.data, &decoded); err != nil || decoded == nil {
		t.Errorf("body %q should be an empty JSON array (err %v)", w.data, err)
	}
}

func TestExporter_Errors(t *testing.T) {
	listErr := errors.New("could not connect to server")
	src := &mockSource{ListInfiniteFunc: func(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
		return nil, listErr
	}}
	if _, err := newTestExporter(src, &mockWriter{}).Export(context.Background(), FormatCSV); !errors.Is(err, listErr) {
		t.Errorf("list failure: err = %v", err)
	}

	uploadErr := errors.New("permission denied")
	src = &mockSource{ListInfiniteFunc: func(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
		return rows, nil
	}}
	if _, err := newTestExporter(src, &mockWriter{err: uploadErr}).Export(context.Background(), FormatCSV); !errors.Is(err, uploadErr) {
		t.Errorf("upload failure: err = %v", err)
	}
}

// memoryBucket stores written objects so they can be read back.
type memoryBucket struct {
	objects map[string][]byte
	readErr error
}

func (m *memoryBucket) WriteObject(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucket+"/"+object] = data
	return nil
}

func (m *memoryBucket) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func TestExporter_Verify(t *testing.T) {
	src := &mockSource{ListInfiniteFunc: func(ctx context.Context, pageSize int) ([]domain.Transaction, error) {
		return rows, nil
	}}

	for _, format := range []Format{FormatCSV, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			bucket := &memoryBucket{}
			e := newTestExporter(src, bucket)

			res, err := e.Export(context.Background(), format)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if err := e.Verify(context.Background(), bucket, res, format); err != nil {
				t.Errorf("Verify() error = %v", err)
			}

			short := res
			short.Rows = 3
			if err := e.Verify(context.Background(), bucket, short, format); err == nil {
				t.Error("Verify() with a wrong row count should fail")
			}
		})
	}

	readErr := errors.New("permission denied")
	e := newTestExporter(src, &memoryBucket{})
	res := Result{URI: "gs://exports-bucket/daily/x.csv", Rows: 2}
	if err := e.Verify(context.Background(), &memoryBucket{readErr: readErr}, res, FormatCSV); !errors.Is(err, readErr) {
		t.Errorf("Verify() read failure: err = %v", err)
	}
}

func TestDecode_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatCSV, rows[:2]); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf, FormatCSV)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 2 || got[1].Title != "Rent, flat" || got[1].Price != 1500.5 || !got[1].Date.Equal(rows[1].Date) {
		t.Errorf("Decode() = %+v", got)
	}

	if _, err := Decode(bytes.NewBufferString("id,title\n1\n"), FormatCSV); err == nil {
		t.Error("Decode() of a ragged file should fail")
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/path/to/file.csv", "bucket", "path/to/file.csv", false},
		{"gs://bucket/file.json", "bucket", "file.json", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"s3://bucket/file", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q", bucket, object)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}
