package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
)

// Search queries the FTS index when available and unions in LIKE-scan hits
// the index missed; without FTS5 the scan serves everything. The Tier on each
// match reports which strategy served it.
func (b *Backend) Search(ctx context.Context, query string, rep *storage.ScanReport) iter.Seq[*storage.Match] {
	return func(yield func(*storage.Match) bool) {
		terms := storage.Tokenize(query)
		if len(terms) == 0 {
			return
		}

		var matches []*storage.Match
		if b.fts {
			var err error
			matches, err = b.searchFullText(ctx, terms, rep)
			if err != nil {
				b.logger.Warn("full-text query failed, serving fallback tier", "query", query, "err", err)
				matches = nil
			}
		}

		// The LIKE scan always runs. FTS5 matches token prefixes only, so the
		// scan supplies the mid-word hits the index cannot see, keeping match
		// membership substring-based on every engine. Records the index
		// already returned keep their full-text rank.
		scanned, err := b.searchFallback(ctx, terms, rep)
		if err != nil {
			if matches == nil {
				rep.Report("", err)
				return
			}
			b.logger.Warn("fallback scan failed, serving full-text tier only", "query", query, "err", err)
		} else {
			seen := make(map[string]struct{}, len(matches))
			for _, m := range matches {
				seen[m.Record.Id] = struct{}{}
			}
			for _, m := range scanned {
				if _, ok := seen[m.Record.Id]; !ok {
					matches = append(matches, m)
				}
			}
		}

		for _, m := range matches {
			if !yield(m) {
				return
			}
		}
	}
}

// searchFullText runs the terms as an OR of quoted prefix tokens against the
// FTS5 index. bm25 rank orders the result (lower is better); ties broken by
// recency then ID.
func (b *Backend) searchFullText(ctx context.Context, terms []string, rep *storage.ScanReport) ([]*storage.Match, error) {
	exprs := make([]string, len(terms))
	for i, term := range terms {
		exprs[i] = fmt.Sprintf(`"%s"*`, strings.ReplaceAll(term, `"`, `""`))
	}
	match := strings.Join(exprs, " OR ")

	rows, err := b.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.body, r.category, r.created_at, r.updated_at,
			r.favorite, r.archived, r.deleted, r.sync_state, r.remote_version,
			r.conflict_title, r.conflict_body, r.conflict_version, r.conflict_updated_at,
			bm25(records_fts) AS rank
		FROM records_fts
		JOIN records r ON r.id = records_fts.id
		WHERE records_fts MATCH ? AND r.deleted = 0
		ORDER BY rank ASC, r.updated_at DESC, r.id ASC`, match)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*storage.Match
	for rows.Next() {
		record, rank, err := scanRankedRecord(rows)
		if err != nil {
			rep.Report("", fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err))
			continue
		}
		matches = append(matches, &storage.Match{
			Record: record,
			Score:  -rank, // bm25 is lower-is-better; flip so higher wins
			Tier:   storage.TierFullText,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range matches {
		if err := b.loadTags(ctx, b.db, m.Record); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// searchFallback pre-filters candidates with LIKE over title, body and tags,
// then scores them with the shared weighted-term formula so ranking stays
// comparable with the key-value backend.
func (b *Backend) searchFallback(ctx context.Context, terms []string, rep *storage.ScanReport) ([]*storage.Match, error) {
	var conds []string
	var args []any
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		conds = append(conds,
			`(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR EXISTS (
				SELECT 1 FROM record_tags t WHERE t.record_id = records.id AND t.tag LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}

	query := "SELECT " + recordColumns + " FROM records WHERE deleted = 0 AND (" +
		strings.Join(conds, " OR ") + ")"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			rep.Report("", fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err))
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var matches []*storage.Match
	for _, record := range records {
		if err := b.loadTags(ctx, b.db, record); err != nil {
			return nil, err
		}
		score := storage.ScoreRecord(record, terms)
		if score > 0 {
			matches = append(matches, &storage.Match{
				Record: record,
				Score:  score,
				Tier:   storage.TierScan,
			})
		}
	}

	slices.SortFunc(matches, func(a, c *storage.Match) int {
		if a.Score > c.Score {
			return -1
		}
		if a.Score < c.Score {
			return 1
		}
		if a.Record.UpdatedAt.After(c.Record.UpdatedAt) {
			return -1
		}
		if a.Record.UpdatedAt.Before(c.Record.UpdatedAt) {
			return 1
		}
		return strings.Compare(a.Record.Id, c.Record.Id)
	})
	return matches, nil
}

// scanRankedRecord decodes a record row followed by its bm25 rank.
func scanRankedRecord(rows rowScanner) (*core.Record, float64, error) {
	var record core.Record
	var createdAt, updatedAt int64
	var syncState int
	var conflictTitle, conflictBody, conflictVersion sql.NullString
	var conflictUpdated sql.NullInt64
	var rank float64

	err := rows.Scan(
		&record.Id, &record.Title, &record.Body, &record.Category,
		&createdAt, &updatedAt,
		&record.Favorite, &record.Archived, &record.Deleted,
		&syncState, &record.RemoteVersion,
		&conflictTitle, &conflictBody, &conflictVersion, &conflictUpdated,
		&rank,
	)
	if err != nil {
		return nil, 0, err
	}

	record.CreatedAt = decodeTime(createdAt)
	record.UpdatedAt = decodeTime(updatedAt)
	record.SyncState = core.SyncState(syncState)
	if err := core.ValidateSyncState(record.SyncState); err != nil {
		return nil, 0, err
	}
	if conflictTitle.Valid {
		record.Conflict = &core.RemoteRevision{
			Title:   conflictTitle.String,
			Body:    conflictBody.String,
			Version: conflictVersion.String,
		}
		if conflictUpdated.Valid {
			record.Conflict.UpdatedAt = decodeTime(conflictUpdated.Int64)
		}
	}
	return &record, rank, nil
}

// escapeLike escapes LIKE metacharacters in a term.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return term
}
