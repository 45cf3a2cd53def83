package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/notify"
)

const (
	defaultTimeout  = 15 * time.Second
	transactionPath = "/transaction"
)

var successMessages = map[Op]string{
	OpCreate: "Transaction added",
	OpUpdate: "Transaction updated",
	OpDelete: "Transaction deleted",
}

// Client talks to the transactions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	notifier   notify.Notifier
	log        zerolog.Logger
	tracer     trace.Tracer
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client. The caller's
// client is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// NewClient creates a client for the API rooted at baseURL. Requests go
// through the logging round tripper on top of an otelhttp transport.
func NewClient(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: NewLoggingTransport(otelhttp.NewTransport(http.DefaultTransport), log),
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		notifier: notify.Nop{},
		log:      log,
		tracer:   otel.Tracer("finance-tracker-web/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches one window of transactions. Zero params omit skip and take,
// which asks the server for the whole list.
func (c *Client) List(ctx context.Context, params domain.ListParams) (domain.Page, error) {
	ctx, span := c.startSpan(ctx, OpList)
	defer span.End()

	query := url.Values{}
	if params.Skip > 0 || params.Paginated() {
		query.Set("skip", strconv.Itoa(params.Skip))
	}
	if params.Paginated() {
		query.Set("take", strconv.Itoa(params.Take))
	}
	path := transactionPath
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := c.do(ctx, OpList, http.MethodGet, path, nil)
	if err != nil {
		recordError(span, err)
		return domain.Page{}, err
	}

	resp, err := DecodeListResponse(body)
	if err != nil {
		err = &Error{Kind: KindMalformed, Op: OpList, Status: http.StatusOK, Err: err}
		recordError(span, err)
		return domain.Page{}, err
	}
	page := resp.Normalize(params)
	span.SetAttributes(attribute.Int("transactions.count", len(page.Data)))
	return page, nil
}

func (c *Client) Create(ctx context.Context, in domain.TransactionInput) (domain.Transaction, error) {
	ctx, span := c.startSpan(ctx, OpCreate)
	defer span.End()

	body, err := c.do(ctx, OpCreate, http.MethodPost, transactionPath, in)
	if err != nil {
		return domain.Transaction{}, c.fail(span, OpCreate, err)
	}
	tx, err := decodeTransaction(OpCreate, body, in.WithID(""))
	if err != nil {
		return domain.Transaction{}, c.fail(span, OpCreate, err)
	}
	c.succeed(OpCreate)
	return tx, nil
}

func (c *Client) Update(ctx context.Context, id string, in domain.TransactionInput) (domain.Transaction, error) {
	ctx, span := c.startSpan(ctx, OpUpdate, attribute.String("transaction.id", id))
	defer span.End()

	body, err := c.do(ctx, OpUpdate, http.MethodPatch, transactionPath+"/"+url.PathEscape(id), in)
	if err != nil {
		return domain.Transaction{}, c.fail(span, OpUpdate, err)
	}
	tx, err := decodeTransaction(OpUpdate, body, in.WithID(id))
	if err != nil {
		return domain.Transaction{}, c.fail(span, OpUpdate, err)
	}
	c.succeed(OpUpdate)
	return tx, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, span := c.startSpan(ctx, OpDelete, attribute.String("transaction.id", id))
	defer span.End()

	if _, err := c.do(ctx, OpDelete, http.MethodDelete, transactionPath+"/"+url.PathEscape(id), nil); err != nil {
		return c.fail(span, OpDelete, err)
	}
	c.succeed(OpDelete)
	return nil
}

func (c *Client) do(ctx context.Context, op Op, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &Error{Kind: KindUnknown, Op: op, Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:    KindServer,
			Op:      op,
			Status:  resp.StatusCode,
			Message: serverMessage(body),
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return body, nil
}

func (c *Client) startSpan(ctx context.Context, op Op, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("transport.op", string(op)))
	return c.tracer.Start(ctx, "transport."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (c *Client) succeed(op Op) {
	c.notifier.Success(string(op), successMessages[op])
}

func (c *Client) fail(span trace.Span, op Op, err error) error {
	recordError(span, err)
	c.notifier.Failure(string(op), err)
	return err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// decodeTransaction reads a mutation response. An empty body falls back to
// the submitted transaction; the refetch after settlement corrects it.
func decodeTransaction(op Op, body []byte, fallback domain.Transaction) (domain.Transaction, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return fallback, nil
	}
	var tx domain.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return domain.Transaction{}, &Error{
			Kind:   KindMalformed,
			Op:     op,
			Status: http.StatusOK,
			Err:    fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return tx, nil
}

// serverMessage extracts "message" from an error body. Validation errors may
// carry a list of messages, which are joined.
func serverMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Message) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(payload.Message, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(payload.Message, &many); err == nil {
		return strings.Join(many, "; ")
	}
	return ""
}
