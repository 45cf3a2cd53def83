package pagination

// PageLink is one slot of the page-number strip. Ellipsis slots have Number 0.
type PageLink struct {
	Number   int
	Current  bool
	Ellipsis bool
}

// PageNumbers returns the page-number strip for the current state.
func (s *State) PageNumbers() []PageLink {
	v := s.View()
	return Window(v.CurrentPage, v.TotalPages)
}

// Window lays out at most five numbered slots around current, using
// ellipses to skip the rest:
//
//	1 2 3 4 … N        when current <= 3
//	1 … N-3 N-2 N-1 N  when current >= N-2
//	1 … c-1 c c+1 … N  otherwise
func Window(current, totalPages int) []PageLink {
	if totalPages < 1 {
		totalPages = 1
	}
	var numbers []int
	switch {
	case totalPages <= maxVisiblePages:
		for i := 1; i <= totalPages; i++ {
			numbers = append(numbers, i)
		}
	case current <= 3:
		numbers = []int{1, 2, 3, 4, 0, totalPages}
	case current >= totalPages-2:
		numbers = []int{1, 0, totalPages - 3, totalPages - 2, totalPages - 1, totalPages}
	default:
		numbers = []int{1, 0, current - 1, current, current + 1, 0, totalPages}
	}

	links := make([]PageLink, 0, len(numbers))
	for _, n := range numbers {
		if n == 0 {
			links = append(links, PageLink{Ellipsis: true})
			continue
		}
		links = append(links, PageLink{Number: n, Current: n == current})
	}
	return links
}
