package badger

import (
	"context"
	"iter"
	"slices"

	"github.com/poiesic/notekit/storage"
)

// Search performs a case-insensitive term scan over title, body and tags of
// every live record, scored with the shared weighted-term formula. This is
// the engine's only tier: O(n) over the record count.
func (b *Backend) Search(ctx context.Context, query string, rep *storage.ScanReport) iter.Seq[*storage.Match] {
	return func(yield func(*storage.Match) bool) {
		terms := storage.Tokenize(query)
		if len(terms) == 0 {
			return
		}

		records, err := b.scan(ctx, storage.Filter{}, rep)
		if err != nil {
			rep.Report("", err)
			return
		}

		var matches []*storage.Match
		for _, record := range records {
			score := storage.ScoreRecord(record, terms)
			if score > 0 {
				matches = append(matches, &storage.Match{
					Record: record,
					Score:  score,
					Tier:   storage.TierScan,
				})
			}
		}

		sortMatches(matches)
		for _, m := range matches {
			if !yield(m) {
				return
			}
		}
	}
}

// sortMatches orders by score descending, UpdatedAt descending, ID ascending.
func sortMatches(matches []*storage.Match) {
	slices.SortFunc(matches, func(a, b *storage.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Record.UpdatedAt.After(b.Record.UpdatedAt) {
			return -1
		}
		if a.Record.UpdatedAt.Before(b.Record.UpdatedAt) {
			return 1
		}
		if a.Record.Id < b.Record.Id {
			return -1
		}
		if a.Record.Id > b.Record.Id {
			return 1
		}
		return 0
	})
}
