package domain

// DefaultTake is the page size assumed when the server omits it.
const DefaultTake = 10

// ListParams selects a window of the transaction list. A zero Take asks for
// the whole list.
type ListParams struct {
	Skip int
	Take int
}

// Paginated reports whether the params describe a bounded window.
func (p ListParams) Paginated() bool {
	return p.Take > 0
}

// Page is one window of the transaction list plus pagination metadata.
// Invariants: len(Data) <= Take for bounded pages, and HasMore == (Skip+Take < Total).
type Page struct {
	Data    []Transaction `json:"data"`
	Total   int           `json:"total"`
	Skip    int           `json:"skip"`
	Take    int           `json:"take"`
	HasMore bool          `json:"hasMore"`
}

// Clone returns a copy of p that shares no backing array with it.
func (p Page) Clone() Page {
	out := p
	if p.Data != nil {
		out.Data = make([]Transaction, len(p.Data))
		copy(out.Data, p.Data)
	}
	return out
}

// HasMoreFor computes the hasMore flag for a window.
func HasMoreFor(skip, take, total int) bool {
	return skip+take < total
}

// IndexOf returns the position of the transaction with the given id, or -1.
func (p Page) IndexOf(id string) int {
	for i, tx := range p.Data {
		if tx.ID == id {
			return i
		}
	}
	return -1
}
