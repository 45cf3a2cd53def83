// Package web serves the server-rendered transactions page.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
	"github.com/dvloznov/finance-tracker-web/internal/notify"
	"github.com/dvloznov/finance-tracker-web/internal/pagination"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Store is the part of the cache store the page reads and writes through.
type Store interface {
	ListPaginated(ctx context.Context, skip, take int) (domain.Page, error)
	ListAll(ctx context.Context) (domain.Page, error)
	GetByID(ctx context.Context, id string) (domain.Transaction, error)
	CreateAsync(ctx context.Context, in domain.TransactionInput) (*cachestore.Mutation, error)
	UpdateAsync(ctx context.Context, id string, in domain.TransactionInput) (*cachestore.Mutation, error)
	DeleteAsync(ctx context.Context, id string) (*cachestore.Mutation, error)
	Loading() cachestore.LoadingState
}

// Notices is where mutation outcomes are recorded and later shown as flash
// messages. notify.Recorder implements it.
type Notices interface {
	notify.Notifier
	Drain() []notify.Notification
}

// Handler renders the page and turns form posts into store intents.
type Handler struct {
	store   Store
	pager   *pagination.State
	notices Notices
	format  *Formatter
	tmpl    *template.Template
	log     zerolog.Logger
}

// NewHandler parses the embedded templates and creates the page handler.
func NewHandler(store Store, notices Notices, format *Formatter, pageSize int, log zerolog.Logger) (*Handler, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("NewHandler: parse templates: %w", err)
	}
	return &Handler{
		store:   store,
		pager:   pagination.New(1, pageSize, 0),
		notices: notices,
		format:  format,
		tmpl:    tmpl,
		log:     log,
	}, nil
}

// Static serves the embedded stylesheet under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type summaryView struct {
	Income   string
	Outcome  string
	Total    string
	Negative bool
}

type rowView struct {
	ID       string
	Title    string
	Price    string
	Category string
	Date     string
	Outcome  bool
	Pending  bool
}

type modalView struct {
	Heading  string
	Submit   string
	Action   string
	Title    string
	Price    string
	Category string
	Date     string
	Outcome  bool
}

type pageData struct {
	Lang       string
	Summary    summaryView
	PageTotals summaryView
	Rows       []rowView
	Pager      pagination.View
	Links      []pagination.PageLink
	PageSizes  []int
	Notices    []notify.Notification
	Loading    cachestore.LoadingState
	Error      string
	Modal      *modalView
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var readErrs []error

	all, err := h.store.ListAll(ctx)
	if err != nil {
		readErrs = append(readErrs, err)
	}
	if err == nil || len(all.Data) > 0 {
		h.pager.SetTotalItems(all.Total)
	}

	h.applyQuery(r)

	v := h.pager.View()
	page, err := h.store.ListPaginated(ctx, v.Skip, v.ItemsPerPage)
	if err != nil {
		readErrs = append(readErrs, err)
	}
	if err == nil || len(page.Data) > 0 {
		h.pager.SetTotalItems(page.Total)
		if nv := h.pager.View(); nv.Skip != v.Skip {
			// The total shrank under the current page; read the clamped one.
			v = nv
			if page, err = h.store.ListPaginated(ctx, v.Skip, v.ItemsPerPage); err != nil {
				readErrs = append(readErrs, err)
			}
		}
	}
	v = h.pager.View()

	loading := h.store.Loading()
	data := pageData{
		Lang:       h.format.tag.String(),
		Summary:    h.summary(domain.ComputeTotals(all.Data)),
		PageTotals: h.summary(domain.ComputeTotals(page.Data)),
		Rows:       h.rows(page.Data, loading),
		Pager:      v,
		Links:      pagination.Window(v.CurrentPage, v.TotalPages),
		PageSizes:  pagination.PageSizeOptions,
		Notices:    h.notices.Drain(),
		Loading:    loading,
	}
	if len(readErrs) > 0 {
		err := errors.Join(readErrs...)
		log.Warn().Err(err).Msg("Rendering cached transactions after read failure")
		data.Error = readErrs[0].Error()
	}
	data.Modal = h.modal(ctx, r, &data)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
	}
}

// applyQuery dispatches ?perPage and ?page to the pagination state.
func (h *Handler) applyQuery(r *http.Request) {
	query := r.URL.Query()
	if s := query.Get("perPage"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n != h.pager.ItemsPerPage() {
			h.pager.OnItemsPerPageChange(n)
		}
	}
	if s := query.Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			h.pager.OnPageChange(n)
		}
	}
}

func (h *Handler) summary(t domain.Totals) summaryView {
	return summaryView{
		Income:   h.format.Decimal(t.TotalIncome),
		Outcome:  h.format.Decimal(t.TotalOutcome),
		Total:    h.format.Decimal(t.Total),
		Negative: t.Total.IsNegative(),
	}
}

func (h *Handler) rows(txs []domain.Transaction, loading cachestore.LoadingState) []rowView {
	rows := make([]rowView, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, rowView{
			ID:       tx.ID,
			Title:    tx.Title,
			Price:    h.format.Price(tx),
			Category: tx.Category,
			Date:     h.format.Date(tx.Date),
			Outcome:  tx.Type == domain.TransactionTypeOutcome,
			Pending:  domain.IsTemporaryID(tx.ID) || loading.Busy(tx.ID),
		})
	}
	return rows
}

func (h *Handler) modal(ctx context.Context, r *http.Request, data *pageData) *modalView {
	query := r.URL.Query()
	switch query.Get("modal") {
	case "new":
		return &modalView{
			Heading: "Cadastrar transação",
			Submit:  "Cadastrar",
			Action:  "/transactions",
			Date:    time.Now().Format(formDateLayout),
		}
	case "edit":
		id := query.Get("id")
		if domain.IsTemporaryID(id) {
			data.Error = cachestore.ErrTemporaryID.Error()
			return nil
		}
		tx, err := h.store.GetByID(ctx, id)
		if err != nil {
			data.Error = err.Error()
			return nil
		}
		m := &modalView{
			Heading:  "Editar transação",
			Submit:   "Salvar",
			Action:   "/transactions/" + tx.ID + "/edit",
			Title:    tx.Title,
			Price:    strconv.FormatFloat(tx.Price, 'f', 2, 64),
			Category: tx.Category,
			Outcome:  tx.Type == domain.TransactionTypeOutcome,
		}
		if !tx.Date.IsZero() {
			m.Date = tx.Date.Format(formDateLayout)
		}
		return m
	}
	return nil
}

// Transactions handles the form posts:
//
//	POST /transactions              create
//	POST /transactions/{id}/edit    update
//	POST /transactions/{id}/delete  delete
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/transactions"), "/")
	if path == "" {
		h.create(w, r)
		return
	}

	id, action, ok := strings.Cut(path, "/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "edit":
		h.update(w, r, id)
	case "delete":
		h.delete(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, err := parseForm(r)
	if err != nil {
		h.notices.Failure("create", err)
		http.Redirect(w, r, "/?modal=new", http.StatusSeeOther)
		return
	}
	if _, err := h.store.CreateAsync(r.Context(), in); err != nil {
		h.notices.Failure("create", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, id string) {
	in, err := parseForm(r)
	if err != nil {
		h.notices.Failure("update", err)
		http.Redirect(w, r, "/?modal=edit&id="+id, http.StatusSeeOther)
		return
	}
	if _, err := h.store.UpdateAsync(r.Context(), id, in); err != nil {
		h.notices.Failure("update", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.DeleteAsync(r.Context(), id); err != nil {
		h.notices.Failure("delete", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// parseForm reads and validates the modal form. Prices accept either a
// decimal comma or a decimal point.
func parseForm(r *http.Request) (domain.TransactionInput, error) {
	var in domain.TransactionInput
	if err := r.ParseForm(); err != nil {
		return in, fmt.Errorf("%w: %v", domain.ErrInvalidTransaction, err)
	}

	in.Title = strings.TrimSpace(r.PostFormValue("title"))
	in.Category = strings.TrimSpace(r.PostFormValue("category"))
	in.Type = domain.TransactionType(r.PostFormValue("type"))

	raw := strings.TrimSpace(r.PostFormValue("price"))
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return in, fmt.Errorf("%w: price %q is not a number", domain.ErrInvalidTransaction, r.PostFormValue("price"))
	}
	in.Price = price

	in.Date = time.Now().UTC()
	if s := r.PostFormValue("date"); s != "" {
		d, err := time.Parse(formDateLayout, s)
		if err != nil {
			return in, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidTransaction, s)
		}
		in.Date = d
	}

	return in, in.Validate()
}
