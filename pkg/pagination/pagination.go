package pagination

const (
	DefaultItemsPerPage = 25
	MaxItemsPerPage     = 1000
)

// Params holds 1-based page pagination.
type Params struct {
	Page         int
	ItemsPerPage int
}

func (p Params) normalized() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.ItemsPerPage < 1 {
		p.ItemsPerPage = DefaultItemsPerPage
	}
	if p.ItemsPerPage > MaxItemsPerPage {
		p.ItemsPerPage = MaxItemsPerPage
	}
	return p
}

// Offset returns the index of the first item on the page.
func (p Params) Offset() int {
	p = p.normalized()
	return (p.Page - 1) * p.ItemsPerPage
}

// Limit returns the page size.
func (p Params) Limit() int {
	return p.normalized().ItemsPerPage
}

// TotalPages returns how many pages total items span. Zero items is one
// (empty) page.
func (p Params) TotalPages(total int) int {
	per := p.Limit()
	if total <= 0 {
		return 1
	}
	return (total + per - 1) / per
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit() < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset() > 0
}
