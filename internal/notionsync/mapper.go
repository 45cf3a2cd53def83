package notionsync

import (
	"math"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// Property names of the transactions database.
const (
	propTitle         = "Title"
	propTransactionID = "Transaction ID"
	propAmount        = "Amount"
	propType          = "Type"
	propCategory      = "Category"
	propCurrency      = "Currency"
	propDate          = "Date"
)

// TransactionToNotionProperties converts a transaction to Notion properties.
// Amount is signed: outcome rows are negative so the database can sum it.
func TransactionToNotionProperties(tx domain.Transaction, currency string) notionapi.Properties {
	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Title,
					},
				},
			},
		},
		propTransactionID: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.ID,
					},
				},
			},
		},
		propAmount: notionapi.NumberProperty{
			Number: tx.SignedPrice(),
		},
		propType: notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(tx.Type),
			},
		},
	}

	if currency != "" {
		props[propCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: currency,
			},
		}
	}

	if tx.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Category,
			},
		}
	}

	if !tx.Date.IsZero() {
		d := notionapi.Date(dateOnly(tx.Date))
		props[propDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &d,
			},
		}
	}

	return props
}

// pageMatches reports whether a mirrored page already shows tx as it is now.
func pageMatches(page notionapi.Page, tx domain.Transaction) bool {
	if plainTitle(page, propTitle) != tx.Title {
		return false
	}
	if selectName(page, propType) != string(tx.Type) || selectName(page, propCategory) != tx.Category {
		return false
	}
	if prop, ok := page.Properties[propAmount].(*notionapi.NumberProperty); !ok || math.Abs(prop.Number-tx.SignedPrice()) > 0.005 {
		return false
	}

	var pageDate time.Time
	if prop, ok := page.Properties[propDate].(*notionapi.DateProperty); ok && prop.Date != nil && prop.Date.Start != nil {
		pageDate = dateOnly(time.Time(*prop.Date.Start))
	}
	var txDate time.Time
	if !tx.Date.IsZero() {
		txDate = dateOnly(tx.Date)
	}
	return pageDate.Equal(txDate)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func plainTitle(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name].(*notionapi.TitleProperty); ok && len(prop.Title) > 0 {
		return prop.Title[0].PlainText
	}
	return ""
}

func selectName(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name].(*notionapi.SelectProperty); ok {
		return prop.Select.Name
	}
	return ""
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[propTransactionID].(*notionapi.RichTextProperty); ok {
		if len(prop.RichText) > 0 {
			return prop.RichText[0].PlainText
		}
	}
	return ""
}
