package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// Shape tells which form the list endpoint answered with.
type Shape int

const (
	// ShapeArray is the legacy bare array of transactions.
	ShapeArray Shape = iota + 1
	// ShapeEnvelope is {data, total, skip, take, hasMore}.
	ShapeEnvelope
)

// Envelope is the paginated list response. Pointer fields distinguish an
// absent field from a zero one.
type Envelope struct {
	Data    []domain.Transaction `json:"data"`
	Total   *int                 `json:"total"`
	Skip    *int                 `json:"skip"`
	Take    *int                 `json:"take"`
	HasMore *bool                `json:"hasMore"`
}

// ListResponse holds exactly one of Items or Envelope, selected by Shape.
type ListResponse struct {
	Shape    Shape
	Items    []domain.Transaction
	Envelope Envelope
}

// DecodeListResponse classifies and decodes a list body. Anything other than
// an array or an object with an array-valued data field is malformed.
func DecodeListResponse(body []byte) (ListResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ListResponse{}, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	switch trimmed[0] {
	case '[':
		var items []domain.Transaction
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return ListResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return ListResponse{Shape: ShapeArray, Items: items}, nil
	case '{':
		var env Envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return ListResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return ListResponse{Shape: ShapeEnvelope, Envelope: env}, nil
	default:
		return ListResponse{}, fmt.Errorf("%w: unexpected JSON value", ErrMalformedResponse)
	}
}

// Normalize maps either shape to a Page for the request that produced it.
func (r ListResponse) Normalize(params domain.ListParams) domain.Page {
	if r.Shape == ShapeArray {
		data := nonNil(r.Items)
		take := params.Take
		if take <= 0 {
			take = len(data)
		}
		return domain.Page{
			Data:    data,
			Total:   len(data),
			Skip:    params.Skip,
			Take:    take,
			HasMore: false,
		}
	}

	env := r.Envelope
	page := domain.Page{
		Data: nonNil(env.Data),
	}
	page.Total = len(page.Data)
	if env.Total != nil {
		page.Total = *env.Total
	}
	if env.Skip != nil {
		page.Skip = *env.Skip
	}
	switch {
	case env.Take != nil:
		page.Take = *env.Take
	case params.Take > 0:
		page.Take = params.Take
	default:
		page.Take = domain.DefaultTake
	}
	if env.HasMore != nil {
		page.HasMore = *env.HasMore
	}
	return page
}

func nonNil(items []domain.Transaction) []domain.Transaction {
	if items == nil {
		return []domain.Transaction{}
	}
	return items
}
