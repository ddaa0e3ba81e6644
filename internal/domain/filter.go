package domain

// FilterCriteria is the per-client event filter. Every field is optional;
// a nil field matches everything. A session's criteria are replaced
// wholesale on update, never merged.
type FilterCriteria struct {
	Creator      *string `json:"creator,omitempty"`      // exact, case-sensitive
	Symbol       *string `json:"symbol,omitempty"`       // exact, case-insensitive
	NameContains *string `json:"nameContains,omitempty"` // substring, case-insensitive
}

// IsEmpty reports whether no predicate is set, i.e. the criteria match all.
func (f FilterCriteria) IsEmpty() bool {
	return f.Creator == nil && f.Symbol == nil && f.NameContains == nil
}
