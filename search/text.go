package search

import (
	"strings"
	"unicode"
)

// Words ignored when checking for verbatim matches
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "in": {}, "that": {}, "have": {}, "it": {},
	"for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "by": {}, "from": {}, "or": {}, "what": {},
	"how": {}, "which": {},
}

// significantWords lowercases text, splits it on anything that is not a
// letter or digit and drops stop words.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, w := range fields {
		if _, stop := stopWords[w]; !stop {
			words = append(words, w)
		}
	}
	return words
}

// containsAllQueryWords reports whether every significant word of query
// appears in content. A query with no significant words never matches.
func containsAllQueryWords(content, query string) bool {
	queryWords := significantWords(query)
	if len(queryWords) == 0 {
		return false
	}

	present := make(map[string]struct{})
	for _, w := range significantWords(content) {
		present[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
