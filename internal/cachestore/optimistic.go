package cachestore

import "github.com/dvloznov/finance-tracker-web/internal/domain"

// Page transforms used by optimistic mutations. Each returns a new page and
// never touches the backing array of its input, so the input can serve as a
// rollback snapshot.

// applyCreate counts the new row on every page. The row itself is appended to
// the unpaginated view, and to a paginated page only when that page is the
// last one and still has room.
func applyCreate(key Key, p domain.Page, tx domain.Transaction) domain.Page {
	out := p.Clone()
	lastPage := p.Skip+len(p.Data) >= p.Total

	out.Total++
	switch {
	case key.Kind == KeyAll:
		out.Data = append(out.Data, tx)
		if out.Take < len(out.Data) {
			out.Take = len(out.Data)
		}
	case lastPage && len(p.Data) < p.Take:
		out.Data = append(out.Data, tx)
	}
	out.HasMore = domain.HasMoreFor(out.Skip, out.Take, out.Total)
	return out
}

// applyUpdate replaces the row in place, keeping its id. ok is false when the
// page does not hold the row.
func applyUpdate(p domain.Page, id string, in domain.TransactionInput) (domain.Page, bool) {
	idx := p.IndexOf(id)
	if idx < 0 {
		return p, false
	}
	out := p.Clone()
	out.Data[idx] = in.WithID(id)
	return out, true
}

// applyDelete removes the row if present and counts it out of the total.
func applyDelete(p domain.Page, id string) domain.Page {
	out := p.Clone()
	if idx := out.IndexOf(id); idx >= 0 {
		out.Data = append(out.Data[:idx], out.Data[idx+1:]...)
	}
	if out.Total > 0 {
		out.Total--
	}
	out.HasMore = domain.HasMoreFor(out.Skip, out.Take, out.Total)
	return out
}

// replaceRow swaps a temporary row for the server's version after a create commits.
func replaceRow(p domain.Page, tempID string, tx domain.Transaction) (domain.Page, bool) {
	idx := p.IndexOf(tempID)
	if idx < 0 || tx.ID == "" {
		return p, false
	}
	out := p.Clone()
	out.Data[idx] = tx
	return out, true
}
