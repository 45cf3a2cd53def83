package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/jobs"
	"github.com/dvloznov/finance-tracker-web/internal/jobs/inmemory"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
	"github.com/dvloznov/finance-tracker-web/internal/transport"
)

// mockTransport is a mock implementation of cachestore.Transport.
type mockTransport struct {
	ListFunc   func(ctx context.Context, params domain.ListParams) (domain.Page, error)
	CreateFunc func(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error)
	UpdateFunc func(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error)
	DeleteFunc func(ctx context.Context, id string) error
}

func (m *mockTransport) List(ctx context.Context, params domain.ListParams) (domain.Page, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, params)
	}
	return domain.Page{Data: []domain.Transaction{}}, nil
}

func (m *mockTransport) Create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return in.WithID("srv-1"), nil
}

func (m *mockTransport) Update(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, in)
	}
	return in.WithID(id), nil
}

func (m *mockTransport) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func fixturePage(params domain.ListParams) domain.Page {
	all := []domain.Transaction{
		{ID: "1", Title: "Salary", Price: 5000, Type: domain.TransactionTypeIncome, Category: "Work"},
		{ID: "2", Title: "Rent", Price: 1500, Type: domain.TransactionTypeOutcome, Category: "Home"},
		{ID: "3", Title: "Coffee", Price: 12.5, Type: domain.TransactionTypeOutcome, Category: "Food"},
	}
	if !params.Paginated() {
		return domain.Page{Data: all, Total: len(all), Take: len(all)}
	}
	end := params.Skip + params.Take
	if end > len(all) {
		end = len(all)
	}
	start := params.Skip
	if start > end {
		start = end
	}
	return domain.Page{
		Data:    append([]domain.Transaction{}, all[start:end]...),
		Total:   len(all),
		Skip:    params.Skip,
		Take:    params.Take,
		HasMore: domain.HasMoreFor(params.Skip, params.Take, len(all)),
	}
}

func newTestHandler(t *testing.T, tr *mockTransport) (*TransactionsHandler, *cachestore.Store) {
	t.Helper()
	if tr.ListFunc == nil {
		tr.ListFunc = func(ctx context.Context, params domain.ListParams) (domain.Page, error) {
			return fixturePage(params), nil
		}
	}
	log := logger.NewWithWriter(io.Discard)
	store := cachestore.New(tr, log, cachestore.Options{})
	t.Cleanup(store.Close)
	return NewTransactionsHandler(store, 2, log), store
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestListTransactions(t *testing.T) {
	h, _ := newTestHandler(t, &mockTransport{})

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?skip=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	var page domain.Page
	if err := json.Unmarshal(body["page"], &page); err != nil {
		t.Fatal(err)
	}
	if page.Skip != 2 || page.Take != 2 || len(page.Data) != 1 || page.Data[0].ID != "3" {
		t.Errorf("page = %+v, want skip 2 take 2 with row 3", page)
	}

	var totals domain.Totals
	if err := json.Unmarshal(body["totals"], &totals); err != nil {
		t.Fatal(err)
	}
	if totals.Total.String() != "-12.5" {
		t.Errorf("page-local total = %s, want -12.5", totals.Total)
	}

	var status cachestore.Status
	if err := json.Unmarshal(body["status"], &status); err != nil {
		t.Fatal(err)
	}
	if status != cachestore.StatusFresh {
		t.Errorf("status = %q, want fresh", status)
	}
}

func TestListTransactions_BadParams(t *testing.T) {
	h, _ := newTestHandler(t, &mockTransport{})

	for _, target := range []string{
		"/api/transactions?skip=-1",
		"/api/transactions?skip=abc",
		"/api/transactions?take=0",
	} {
		rec := httptest.NewRecorder()
		h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestListTransactions_ServesCachedPageOnFailure(t *testing.T) {
	fail := false
	tr := &mockTransport{
		ListFunc: func(ctx context.Context, params domain.ListParams) (domain.Page, error) {
			if fail {
				return domain.Page{}, &transport.Error{Kind: transport.KindNetwork, Op: transport.OpList}
			}
			return fixturePage(params), nil
		},
	}
	h, store := newTestHandler(t, tr)

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first read status = %d", rec.Code)
	}

	fail = true
	store.Invalidate()

	rec = httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with cached data", rec.Code)
	}
	body := decodeBody(t, rec)
	if !strings.Contains(string(body["error"]), "could not connect to server") {
		t.Errorf("error = %s, want network message", body["error"])
	}
	var page domain.Page
	json.Unmarshal(body["page"], &page)
	if len(page.Data) != 2 {
		t.Errorf("cached rows = %d, want 2", len(page.Data))
	}
}

func TestListTransactions_FailureWithoutData(t *testing.T) {
	tr := &mockTransport{
		ListFunc: func(ctx context.Context, params domain.ListParams) (domain.Page, error) {
			return domain.Page{}, &transport.Error{Kind: transport.KindServer, Op: transport.OpList, Status: 503}
		},
	}
	h, _ := newTestHandler(t, tr)

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSummary_UsesFullList(t *testing.T) {
	h, _ := newTestHandler(t, &mockTransport{})

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/all", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var totals domain.Totals
	json.Unmarshal(decodeBody(t, rec)["totals"], &totals)
	if totals.TotalIncome.String() != "5000" || totals.TotalOutcome.String() != "1512.5" || totals.Total.String() != "3487.5" {
		t.Errorf("totals = %+v", totals)
	}
}

func TestCreateTransaction(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
	}{
		{
			name:       "created",
			body:       `{"title":"Book","price":40,"type":"OUTCOME","category":"Leisure"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed json",
			body:       `{"title":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid type",
			body:       `{"title":"Book","price":40,"type":"GIFT"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "server rejects",
			body:       `{"title":"Book","price":40,"type":"INCOME"}`,
			createErr:  &transport.Error{Kind: transport.KindServer, Op: transport.OpCreate, Status: 422, Message: "price too high"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "network down",
			body:       `{"title":"Book","price":40,"type":"INCOME"}`,
			createErr:  &transport.Error{Kind: transport.KindNetwork, Op: transport.OpCreate},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{
				CreateFunc: func(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
					if tt.createErr != nil {
						return domain.Transaction{}, tt.createErr
					}
					return in.WithID("srv-9"), nil
				},
			}
			h, _ := newTestHandler(t, tr)

			rec := httptest.NewRecorder()
			h.CreateTransaction(rec, httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusCreated {
				var tx domain.Transaction
				json.Unmarshal(rec.Body.Bytes(), &tx)
				if tx.ID != "srv-9" || tx.Title != "Book" {
					t.Errorf("created = %+v", tx)
				}
			}
		})
	}
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	var updated, deleted string
	tr := &mockTransport{
		UpdateFunc: func(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
			updated = id
			return in.WithID(id), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	h, _ := newTestHandler(t, tr)

	rec := httptest.NewRecorder()
	body := `{"title":"Rent","price":1600,"type":"OUTCOME","category":"Home"}`
	h.UpdateTransaction(rec, httptest.NewRequest(http.MethodPatch, "/api/transactions/2", strings.NewReader(body)), "2")
	if rec.Code != http.StatusOK || updated != "2" {
		t.Errorf("update: status %d, transport saw %q", rec.Code, updated)
	}

	rec = httptest.NewRecorder()
	h.DeleteTransaction(rec, httptest.NewRequest(http.MethodDelete, "/api/transactions/3", nil), "3")
	if rec.Code != http.StatusNoContent || deleted != "3" {
		t.Errorf("delete: status %d, transport saw %q", rec.Code, deleted)
	}
}

func TestDeleteTransaction_TemporaryID(t *testing.T) {
	h, _ := newTestHandler(t, &mockTransport{
		DeleteFunc: func(ctx context.Context, id string) error {
			t.Errorf("transport called for temporary id %q", id)
			return nil
		},
	})

	rec := httptest.NewRecorder()
	h.DeleteTransaction(rec, httptest.NewRequest(http.MethodDelete, "/", nil), domain.NewTemporaryID())
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: title is required", domain.ErrInvalidTransaction), http.StatusBadRequest},
		{"temporary id", cachestore.ErrTemporaryID, http.StatusConflict},
		{"not found", cachestore.ErrNotFound, http.StatusNotFound},
		{"closed", cachestore.ErrClosed, http.StatusServiceUnavailable},
		{"server with status", &transport.Error{Kind: transport.KindServer, Status: 404}, http.StatusNotFound},
		{"server without status", &transport.Error{Kind: transport.KindServer}, http.StatusBadGateway},
		{"network", &transport.Error{Kind: transport.KindNetwork}, http.StatusBadGateway},
		{"malformed", &transport.Error{Kind: transport.KindMalformed}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJobsHandler(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()
	now := time.Now()
	for i, key := range []string{"transactions/all", "transactions/paginated/0/10", "transactions/all"} {
		store.SaveJob(ctx, &jobs.RefetchJob{
			JobID:     fmt.Sprintf("job-%d", i),
			Key:       key,
			Status:    jobs.JobStatusCompleted,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	h := NewJobsHandler(store, logger.NewWithWriter(io.Discard))

	rec := httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?key=transactions/all&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list struct {
		Jobs  []jobs.RefetchJob `json:"jobs"`
		Count int               `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 2 || list.Jobs[0].JobID != "job-2" {
		t.Errorf("jobs = %+v, want job-2 then job-0", list.Jobs)
	}

	rec = httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil), "missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}
}
