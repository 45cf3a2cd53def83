// Package pagination keeps page/offset bookkeeping for the transactions table.
package pagination

import "sync"

const (
	// DefaultItemsPerPage is the page size used when none is configured.
	DefaultItemsPerPage = 10

	maxVisiblePages = 5
)

// PageSizeOptions are the page sizes offered by the page-size selector.
var PageSizeOptions = []int{5, 10, 20, 50}

// State tracks the current page, page size and total item count.
// Every accessor first clamps the current page into [1, TotalPages], so a
// total that shrinks while a request is in flight is corrected on the next
// evaluation. State is safe for concurrent use.
type State struct {
	mu           sync.Mutex
	currentPage  int
	itemsPerPage int
	totalItems   int
}

// New creates a pagination state. Non-positive arguments fall back to
// page 1, DefaultItemsPerPage and zero items.
func New(initialPage, initialItemsPerPage, totalItems int) *State {
	if initialPage < 1 {
		initialPage = 1
	}
	if initialItemsPerPage < 1 {
		initialItemsPerPage = DefaultItemsPerPage
	}
	if totalItems < 0 {
		totalItems = 0
	}
	s := &State{
		currentPage:  initialPage,
		itemsPerPage: initialItemsPerPage,
		totalItems:   totalItems,
	}
	s.clamp()
	return s
}

// OnPageChange moves to page. Out-of-range pages are ignored.
func (s *State) OnPageChange(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()

	if page >= 1 && page <= s.totalPages() {
		s.currentPage = page
	}
}

// OnItemsPerPageChange sets the page size and goes back to the first page,
// since offsets computed for the old size are meaningless.
func (s *State) OnItemsPerPageChange(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.itemsPerPage = n
	s.currentPage = 1
}

// GoToFirstPage moves to page 1.
func (s *State) GoToFirstPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPage = 1
}

// GoToLastPage moves to the last page.
func (s *State) GoToLastPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPage = s.totalPages()
}

// SetTotalItems records the total reported by the server.
func (s *State) SetTotalItems(total int) {
	if total < 0 {
		total = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalItems = total
	s.clamp()
}

// CurrentPage returns the 1-based current page.
func (s *State) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()
	return s.currentPage
}

// ItemsPerPage returns the page size.
func (s *State) ItemsPerPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsPerPage
}

// TotalPages returns max(1, ceil(total / itemsPerPage)).
func (s *State) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPages()
}

// Skip returns the offset of the current page.
func (s *State) Skip() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()
	return (s.currentPage - 1) * s.itemsPerPage
}

// CanGoNext reports whether a next page exists.
func (s *State) CanGoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()
	return s.currentPage < s.totalPages()
}

// CanGoPrevious reports whether a previous page exists.
func (s *State) CanGoPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()
	return s.currentPage > 1
}

// View is a consistent snapshot of the pagination state.
type View struct {
	CurrentPage   int
	ItemsPerPage  int
	TotalPages    int
	TotalItems    int
	Skip          int
	StartItem     int
	EndItem       int
	CanGoNext     bool
	CanGoPrevious bool
}

// View returns all derived values computed under a single lock.
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp()

	totalPages := s.totalPages()
	skip := (s.currentPage - 1) * s.itemsPerPage

	v := View{
		CurrentPage:   s.currentPage,
		ItemsPerPage:  s.itemsPerPage,
		TotalPages:    totalPages,
		TotalItems:    s.totalItems,
		Skip:          skip,
		CanGoNext:     s.currentPage < totalPages,
		CanGoPrevious: s.currentPage > 1,
	}
	if s.totalItems > 0 {
		v.StartItem = skip + 1
		v.EndItem = min(s.currentPage*s.itemsPerPage, s.totalItems)
	}
	return v
}

func (s *State) totalPages() int {
	pages := (s.totalItems + s.itemsPerPage - 1) / s.itemsPerPage
	return max(1, pages)
}

// clamp must be called with mu held.
func (s *State) clamp() {
	if tp := s.totalPages(); s.currentPage > tp {
		s.currentPage = tp
	}
	if s.currentPage < 1 {
		s.currentPage = 1
	}
}
