package service

import "strings"

// Tokenize lowercases text and splits it on every run of characters outside
// [a-z0-9]. Empty tokens are dropped.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// KeywordOverlapScore counts the candidate tokens that also occur in the
// query. Repeated candidate tokens count each time; repeated query tokens do
// not.
func KeywordOverlapScore(query, candidate string) int {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		set[t] = struct{}{}
	}

	hits := 0
	for _, t := range Tokenize(candidate) {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return hits
}
