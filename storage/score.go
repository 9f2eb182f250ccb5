package storage

import (
	"strings"

	"github.com/poiesic/notekit/core"
)

// Relevance weights for the term-match scorer. Shared by the key-value
// backend's scan search, the relational backend's fallback tier and the
// search coordinator's hybrid re-scoring, so scores stay comparable across
// tiers.
const (
	WeightTitle = 3.0
	WeightTags  = 2.0
	WeightBody  = 1.0
)

// Stop words filtered out when tokenizing queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// Tokenize splits a query into lowercased terms, trimming punctuation and
// dropping stop words. If filtering would leave nothing (the whole query is
// stop words), the unfiltered terms are kept so that a record titled exactly
// after the query still matches.
func Tokenize(query string) []string {
	words := strings.Fields(query)
	raw := make([]string, 0, len(words))
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned == "" {
			continue
		}
		raw = append(raw, cleaned)
		if !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	if len(filtered) == 0 {
		return raw
	}
	return filtered
}

// ScoreRecord computes the weighted term-match relevance of a record for the
// given terms. Per term: title matches weigh 3, tag matches 2, body matches
// 1; a term matching several fields scores in each. Matching is
// case-insensitive substring containment. Returns 0 when nothing matches.
func ScoreRecord(r *core.Record, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	title := strings.ToLower(r.Title)
	body := strings.ToLower(r.Body)
	tags := make([]string, len(r.Tags))
	for i, tag := range r.Tags {
		tags[i] = strings.ToLower(tag)
	}

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += WeightTitle
		}
		for _, tag := range tags {
			if strings.Contains(tag, term) {
				score += WeightTags
				break
			}
		}
		if strings.Contains(body, term) {
			score += WeightBody
		}
	}
	return score
}
