package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-tracker-web/internal/api/middleware"
	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/jobs"
	"github.com/dvloznov/finance-tracker-web/internal/transport"
)

// TransactionStore is the part of the cache store the JSON API uses.
type TransactionStore interface {
	ListPaginated(ctx context.Context, skip, take int) (domain.Page, error)
	ListAll(ctx context.Context) (domain.Page, error)
	Create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error)
	Update(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error)
	Delete(ctx context.Context, id string) error
	Peek(key cachestore.Key) (cachestore.Snapshot, bool)
	Loading() cachestore.LoadingState
}

// TransactionsHandler serves the cached transaction views as JSON.
type TransactionsHandler struct {
	store       TransactionStore
	defaultTake int
	log         zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store TransactionStore, defaultTake int, log zerolog.Logger) *TransactionsHandler {
	if defaultTake < 1 {
		defaultTake = domain.DefaultTake
	}
	return &TransactionsHandler{
		store:       store,
		defaultTake: defaultTake,
		log:         log,
	}
}

// ListTransactions handles GET /api/transactions?skip=&take=
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	skip := 0
	if s := query.Get("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		skip = v
	}
	take := h.defaultTake
	if s := query.Get("take"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "take must be a positive integer")
			return
		}
		take = v
	}

	page, err := h.store.ListPaginated(ctx, skip, take)
	if err != nil && len(page.Data) == 0 {
		h.writeStoreError(w, err, "Failed to list transactions")
		return
	}

	resp := map[string]interface{}{
		"page":    page,
		"totals":  domain.ComputeTotals(page.Data),
		"loading": h.store.Loading(),
	}
	if snap, ok := h.store.Peek(cachestore.PaginatedKey(skip, take)); ok {
		resp["status"] = snap.Status
	}
	if err != nil {
		// Stale data is still served; the error travels alongside it.
		h.log.Warn().Err(err).Int("skip", skip).Int("take", take).Msg("Serving cached page after read failure")
		resp["error"] = err.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Summary handles GET /api/transactions/all
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.ListAll(r.Context())
	if err != nil && len(page.Data) == 0 {
		h.writeStoreError(w, err, "Failed to load transactions")
		return
	}

	resp := map[string]interface{}{
		"page":   page,
		"totals": domain.ComputeTotals(page.Data),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	tx, err := h.store.Create(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, err, "Failed to create transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// UpdateTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	tx, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		h.writeStoreError(w, err, "Failed to update transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionsHandler) decodeInput(w http.ResponseWriter, r *http.Request) (domain.TransactionInput, bool) {
	var in domain.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return in, false
	}
	if err := in.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func (h *TransactionsHandler) writeStoreError(w http.ResponseWriter, err error, msg string) {
	status := StatusFor(err)
	evt := h.log.Warn()
	if status >= 500 {
		evt = h.log.Error()
	}
	evt.Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, err.Error())
}

// StatusFor maps store and transport errors to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, cachestore.ErrTemporaryID):
		return http.StatusConflict
	case errors.Is(err, cachestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cachestore.ErrClosed):
		return http.StatusServiceUnavailable
	}

	var te *transport.Error
	if errors.As(err, &te) {
		switch te.Kind {
		case transport.KindServer:
			if te.Status >= 400 {
				return te.Status
			}
			return http.StatusBadGateway
		case transport.KindNetwork, transport.KindMalformed:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// JobsHandler handles refetch job endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Key:    query.Get("key"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
