package web

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

const (
	DefaultLocale   = "pt-BR"
	DefaultCurrency = "BRL"

	formDateLayout = "2006-01-02"
)

// Formatter renders money and dates for one locale.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
	tag     language.Tag
}

// NewFormatter builds a formatter for a BCP 47 locale and an ISO 4217 code.
func NewFormatter(locale, code string) (*Formatter, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if code == "" {
		code = DefaultCurrency
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("NewFormatter: parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("NewFormatter: parse currency %q: %w", code, err)
	}
	return &Formatter{
		printer: message.NewPrinter(tag),
		unit:    unit,
		tag:     tag,
	}, nil
}

// Money formats an amount with the currency symbol, negative values
// prefixed with a minus sign.
func (f *Formatter) Money(v float64) string {
	if v < 0 {
		return "- " + f.printer.Sprint(currency.Symbol(f.unit.Amount(-v)))
	}
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(v)))
}

// Decimal formats a computed total.
func (f *Formatter) Decimal(d decimal.Decimal) string {
	return f.Money(d.InexactFloat64())
}

// Price formats a row's price; outcome rows are shown negative.
func (f *Formatter) Price(tx domain.Transaction) string {
	return f.Money(tx.SignedPrice())
}

// Date formats a transaction date in the locale's short numeric form.
func (f *Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	base, _ := f.tag.Base()
	switch base.String() {
	case "en":
		if region, _ := f.tag.Region(); region.String() == "US" {
			return t.Format("01/02/2006")
		}
	case "ja", "zh", "ko":
		return t.Format("2006/01/02")
	}
	return t.Format("02/01/2006")
}
