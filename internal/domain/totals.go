package domain

import "github.com/shopspring/decimal"

// Totals summarises a set of transactions. It is always derived, never stored.
type Totals struct {
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalOutcome decimal.Decimal `json:"totalOutcome"`
	Total        decimal.Decimal `json:"total"`
}

// ComputeTotals folds the transactions: income adds to TotalIncome and Total,
// outcome adds to TotalOutcome and subtracts from Total.
//
// Callers pass either a single page (page-local figures) or the full list
// (the summary cards); the two must not be mixed up.
func ComputeTotals(transactions []Transaction) Totals {
	totals := Totals{
		TotalIncome:  decimal.Zero,
		TotalOutcome: decimal.Zero,
		Total:        decimal.Zero,
	}
	for _, tx := range transactions {
		price := decimal.NewFromFloat(tx.Price)
		switch tx.Type {
		case TransactionTypeIncome:
			totals.TotalIncome = totals.TotalIncome.Add(price)
			totals.Total = totals.Total.Add(price)
		case TransactionTypeOutcome:
			totals.TotalOutcome = totals.TotalOutcome.Add(price)
			totals.Total = totals.Total.Sub(price)
		}
	}
	return totals
}
