package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType tells whether a transaction adds to or subtracts from the balance.
type TransactionType string

const (
	// TransactionTypeIncome is money coming in.
	TransactionTypeIncome TransactionType = "INCOME"
	// TransactionTypeOutcome is money going out.
	TransactionTypeOutcome TransactionType = "OUTCOME"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeOutcome
}

// TemporaryIDPrefix marks identifiers generated on the client for records
// the server has not confirmed yet.
const TemporaryIDPrefix = "temp-"

// Transaction is a single financial transaction as exchanged with the API.
// Price is always a non-negative magnitude; Type carries the sign.
type Transaction struct {
	ID       string          `json:"id,omitempty"`
	Title    string          `json:"title"`
	Price    float64         `json:"price"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Date     time.Time       `json:"date"`
}

// TransactionInput is the payload for create and update calls. It has no id:
// ids are assigned by the server.
type TransactionInput struct {
	Title    string          `json:"title"`
	Price    float64         `json:"price"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Date     time.Time       `json:"date"`
}

// ErrInvalidTransaction is wrapped by every validation failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Validate checks the input before it is dispatched as an intent.
func (in TransactionInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTransaction)
	}
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return fmt.Errorf("%w: price must be a finite number", ErrInvalidTransaction)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidTransaction)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, in.Type)
	}
	return nil
}

// WithID builds the Transaction that the input describes under the given id.
func (in TransactionInput) WithID(id string) Transaction {
	return Transaction{
		ID:       id,
		Title:    in.Title,
		Price:    in.Price,
		Type:     in.Type,
		Category: in.Category,
		Date:     in.Date,
	}
}

// Input strips the id from a transaction.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Title:    t.Title,
		Price:    t.Price,
		Type:     t.Type,
		Category: t.Category,
		Date:     t.Date,
	}
}

// SignedPrice returns the price with outcome transactions negated.
func (t Transaction) SignedPrice() float64 {
	if t.Type == TransactionTypeOutcome {
		return -t.Price
	}
	return t.Price
}

// NewTemporaryID generates a client-side identifier that can never collide
// with a server id.
func NewTemporaryID() string {
	return TemporaryIDPrefix + uuid.NewString()
}

// IsTemporaryID reports whether id was generated by NewTemporaryID.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}
