package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
)

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []error
}

func (n *recordingNotifier) Success(op, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, op+": "+message)
}

func (n *recordingNotifier) Failure(op string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingNotifier, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	buf := &bytes.Buffer{}
	n := &recordingNotifier{}
	return NewClient(srv.URL, logger.NewWithWriter(buf), WithNotifier(n)), n, buf
}

func TestClient_ListQueryParams(t *testing.T) {
	tests := []struct {
		name      string
		params    domain.ListParams
		wantQuery string
	}{
		{"all", domain.ListParams{}, ""},
		{"first page", domain.ListParams{Skip: 0, Take: 10}, "skip=0&take=10"},
		{"third page", domain.ListParams{Skip: 20, Take: 10}, "skip=20&take=10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery, gotPath string
			c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				w.Write([]byte(`{"data":[],"total":0,"skip":0,"take":10,"hasMore":false}`))
			})

			if _, err := c.List(context.Background(), tt.params); err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if gotPath != "/transaction" {
				t.Errorf("path = %q, want /transaction", gotPath)
			}
			if gotQuery != tt.wantQuery {
				t.Errorf("query = %q, want %q", gotQuery, tt.wantQuery)
			}
		})
	}
}

func TestClient_ListLegacyArray(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"t1","title":"Salary","price":100,"type":"INCOME","category":"Work","date":"2024-01-01T00:00:00Z"},
			{"id":"t2","title":"Rent","price":30,"type":"OUTCOME","category":"Home","date":"2024-01-02T00:00:00Z"}]`))
	})

	page, err := c.List(context.Background(), domain.ListParams{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Data) != 2 || page.Total != 2 || page.Skip != 0 || page.Take != 2 || page.HasMore {
		t.Errorf("List() = %+v, want 2 items, total 2, skip 0, take 2, hasMore false", page)
	}
}

func TestClient_Create(t *testing.T) {
	var gotBody domain.TransactionInput
	var gotMethod, gotContentType string
	c, n, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-1","title":"Salary","price":100,"type":"INCOME","category":"Work","date":"2024-01-01T00:00:00Z"}`))
	})

	in := domain.TransactionInput{Title: "Salary", Price: 100, Type: domain.TransactionTypeIncome, Category: "Work"}
	tx, err := c.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tx.ID != "srv-1" {
		t.Errorf("Create() id = %q, want srv-1", tx.ID)
	}
	if gotMethod != http.MethodPost || gotContentType != "application/json" {
		t.Errorf("request = %s with Content-Type %q", gotMethod, gotContentType)
	}
	if gotBody.Title != "Salary" || gotBody.Price != 100 {
		t.Errorf("request body = %+v", gotBody)
	}
	if len(n.successes) != 1 || !strings.Contains(n.successes[0], "Transaction added") {
		t.Errorf("successes = %v, want one create notification", n.successes)
	}
}

func TestClient_UpdateAndDeletePaths(t *testing.T) {
	var requests []string
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"id":"abc","title":"Rent","price":40,"type":"OUTCOME","category":"Home","date":"2024-01-01T00:00:00Z"}`))
	})

	if _, err := c.Update(context.Background(), "abc", domain.TransactionInput{Title: "Rent", Price: 40, Type: domain.TransactionTypeOutcome}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := c.Delete(context.Background(), "abc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	want := []string{"PATCH /transaction/abc", "DELETE /transaction/abc"}
	if strings.Join(requests, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", requests, want)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantKind     Kind
		wantSentinel error
		wantMessage  string
	}{
		{
			name:         "server message",
			status:       http.StatusBadRequest,
			body:         `{"message":"price must be positive"}`,
			wantKind:     KindServer,
			wantSentinel: ErrServerRejected,
			wantMessage:  "failed to create transaction: price must be positive",
		},
		{
			name:         "validation list",
			status:       http.StatusBadRequest,
			body:         `{"message":["title should not be empty","price must be a number"]}`,
			wantKind:     KindServer,
			wantSentinel: ErrServerRejected,
			wantMessage:  "failed to create transaction: title should not be empty; price must be a number",
		},
		{
			name:         "no message",
			status:       http.StatusInternalServerError,
			body:         `oops`,
			wantKind:     KindServer,
			wantSentinel: ErrServerRejected,
			wantMessage:  "failed to create transaction: server error",
		},
		{
			name:         "malformed success",
			status:       http.StatusCreated,
			body:         `"created"`,
			wantKind:     KindMalformed,
			wantSentinel: ErrMalformedResponse,
			wantMessage:  "failed to create transaction: malformed response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, n, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Create(context.Background(), domain.TransactionInput{Title: "x", Type: domain.TransactionTypeIncome})
			if err == nil {
				t.Fatal("Create() error = nil, want error")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
			if !errors.Is(err, tt.wantSentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantSentinel)
			}
			if err.Error() != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMessage)
			}
			if len(n.failures) != 1 {
				t.Errorf("failures = %d, want 1", len(n.failures))
			}
		})
	}
}

func TestClient_NetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	buf := &bytes.Buffer{}
	c := NewClient(addr, logger.NewWithWriter(buf))

	_, err := c.List(context.Background(), domain.ListParams{Take: 10})
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("List() error = %v, want network unreachable", err)
	}
	if err.Error() != "could not connect to server" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(buf.String(), "server is not responding") {
		t.Errorf("expected unreachable log line, got: %s", buf.String())
	}
}

func TestClient_ListMalformed(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":"nope"}`))
	})

	_, err := c.List(context.Background(), domain.ListParams{Take: 10})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("List() error = %v, want malformed response", err)
	}
	if err.Error() != "failed to fetch transactions: malformed response" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLoggingTransport_StatusHint(t *testing.T) {
	c, _, buf := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c.Delete(context.Background(), "missing")

	out := buf.String()
	if !strings.Contains(out, "resource not found") || !strings.Contains(out, "404") {
		t.Errorf("expected 404 hint in log output, got: %s", out)
	}
}
