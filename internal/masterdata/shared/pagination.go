package shared

import "strings"

// ListFilters represents standard list filters for master data.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortDir string
}

// Normalize applies defaults and bounds.
func (f ListFilters) Normalize() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if !strings.EqualFold(f.SortDir, SortDesc) {
		f.SortDir = SortAsc
	} else {
		f.SortDir = SortDesc
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Matches reports whether any of the values contains the search term, case-insensitively.
func (f ListFilters) Matches(values ...string) bool {
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
