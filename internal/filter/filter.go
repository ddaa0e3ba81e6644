// Package filter evaluates client filter criteria against token creation
// events. Matching is pure: no state, no I/O, safe for concurrent use.
package filter

import (
	"strings"

	"pumpmonitor/internal/domain"
)

// Matches reports whether the event satisfies every predicate present in
// the criteria. Absent predicates are wildcards, so empty criteria match
// every event. Creator comparison is exact and case-sensitive; symbol and
// name comparisons upper-case both sides first, which is not
// Unicode-locale-aware.
func Matches(event *domain.TokenCreatedEvent, criteria domain.FilterCriteria) bool {
	if criteria.Creator != nil && event.Token.Creator != *criteria.Creator {
		return false
	}

	if criteria.Symbol != nil &&
		strings.ToUpper(event.Token.Symbol) != strings.ToUpper(*criteria.Symbol) {
		return false
	}

	if criteria.NameContains != nil &&
		!strings.Contains(strings.ToUpper(event.Token.Name), strings.ToUpper(*criteria.NameContains)) {
		return false
	}

	return true
}
