package listing

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize is the page size requested from the feed when none is configured.
const DefaultPageSize = 12

// Location is the navigable location of the listing view. The current page is
// kept in its query so a reload lands on the same page.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation parses a path with an optional query string.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parsing location %q: %w", raw, err)
	}
	return Location{Path: u.Path, Query: u.Query()}, nil
}

// Page returns the page recorded in the location, 1 when absent or invalid.
func (l Location) Page() int {
	n, err := strconv.Atoi(l.Query.Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// WithPage returns a copy of l pointing at page n.
func (l Location) WithPage(n int) Location {
	q := make(url.Values, len(l.Query)+1)
	for k, v := range l.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(n))
	return Location{Path: l.Path, Query: q}
}

func (l Location) String() string {
	u := url.URL{Path: l.Path, RawQuery: l.Query.Encode()}
	return u.String()
}

// Pager coordinates the current page with the server-reported total. It is
// not safe for concurrent use; the owning view serializes access.
type Pager struct {
	Page     int
	PageSize int
	Total    int
	Location Location

	// OnChange is invoked after the page changes, normally to force a refresh.
	OnChange func(page int)
}

// NewPager starts on the page recorded in loc.
func NewPager(loc Location, pageSize int, onChange func(int)) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		Page:     loc.Page(),
		PageSize: pageSize,
		Location: loc.WithPage(loc.Page()),
		OnChange: onChange,
	}
}

// PageCount derives the number of pages from the server total only; the
// locally filtered subset never changes it.
func (p *Pager) PageCount() int {
	if p.Total <= 0 || p.PageSize <= 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// SetPage moves to page n, clamped to at least 1. It reports whether the page
// changed; only then is the location rewritten and OnChange invoked.
func (p *Pager) SetPage(n int) bool {
	if n < 1 {
		n = 1
	}
	if n == p.Page {
		return false
	}
	p.Page = n
	p.Location = p.Location.WithPage(n)
	if p.OnChange != nil {
		p.OnChange(n)
	}
	return true
}

// SetTotal records the server-reported total.
func (p *Pager) SetTotal(total int) {
	if total >= 0 {
		p.Total = total
	}
}
