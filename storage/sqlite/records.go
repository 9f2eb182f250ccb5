package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
)

const recordColumns = `id, title, body, category, created_at, updated_at,
	favorite, archived, deleted, sync_state, remote_version,
	conflict_title, conflict_body, conflict_version, conflict_updated_at`

// Put upserts a record by ID, rewriting its tag rows and FTS entry inside a
// single transaction.
func (b *Backend) Put(ctx context.Context, record *core.Record) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		return b.putRecord(ctx, tx, record)
	})
}

// Get retrieves a single record by ID.
func (b *Backend) Get(ctx context.Context, id string) (*core.Record, error) {
	row := b.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ?", id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := b.loadTags(ctx, b.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a record, its tag rows and its FTS entry.
// Deleting a missing ID is not an error.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id = ?", id); err != nil {
			return err
		}
		if b.fts {
			if _, err := tx.ExecContext(ctx, "DELETE FROM records_fts WHERE id = ?", id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
		return err
	})
}

// BulkPut upserts all records inside a single transaction; a failure midway
// rolls the whole batch back.
func (b *Backend) BulkPut(ctx context.Context, records []*core.Record) error {
	if len(records) == 0 {
		return nil
	}
	return b.withTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			if err := b.putRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFiltered yields records satisfying the filter, ordered by UpdatedAt
// descending, ID ascending.
func (b *Backend) ListFiltered(ctx context.Context, f storage.Filter, rep *storage.ScanReport) iter.Seq[*core.Record] {
	return func(yield func(*core.Record) bool) {
		records, err := b.queryFiltered(ctx, f, rep)
		if err != nil {
			rep.Report("", err)
			return
		}
		for _, record := range records {
			if !yield(record) {
				return
			}
		}
	}
}

// TagCounts counts live records per tag via the join table.
func (b *Backend) TagCounts(ctx context.Context) (map[string]int, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT t.tag, COUNT(*)
		FROM record_tags t
		JOIN records r ON r.id = t.record_id
		WHERE r.deleted = 0
		GROUP BY t.tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		counts[tag] = n
	}
	return counts, rows.Err()
}

// putRecord writes the record row, tag rows and FTS entry into tx.
func (b *Backend) putRecord(ctx context.Context, tx *sql.Tx, record *core.Record) error {
	var conflictTitle, conflictBody, conflictVersion sql.NullString
	var conflictUpdated sql.NullInt64
	if record.Conflict != nil {
		conflictTitle = sql.NullString{String: record.Conflict.Title, Valid: true}
		conflictBody = sql.NullString{String: record.Conflict.Body, Valid: true}
		conflictVersion = sql.NullString{String: record.Conflict.Version, Valid: true}
		conflictUpdated = sql.NullInt64{Int64: record.Conflict.UpdatedAt.UnixMicro(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			category = excluded.category,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			favorite = excluded.favorite,
			archived = excluded.archived,
			deleted = excluded.deleted,
			sync_state = excluded.sync_state,
			remote_version = excluded.remote_version,
			conflict_title = excluded.conflict_title,
			conflict_body = excluded.conflict_body,
			conflict_version = excluded.conflict_version,
			conflict_updated_at = excluded.conflict_updated_at`,
		record.Id, record.Title, record.Body, record.Category,
		encodeTime(record.CreatedAt), encodeTime(record.UpdatedAt),
		record.Favorite, record.Archived, record.Deleted,
		int(record.SyncState), record.RemoteVersion,
		conflictTitle, conflictBody, conflictVersion, conflictUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id = ?", record.Id); err != nil {
		return err
	}
	for i, tag := range record.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO record_tags (record_id, tag, pos) VALUES (?, ?, ?)",
			record.Id, tag, i); err != nil {
			return fmt.Errorf("failed to insert tag row: %w", err)
		}
	}

	if b.fts {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records_fts WHERE id = ?", record.Id); err != nil {
			return err
		}
		// Tombstones stay out of the index. Tags are denormalized into the
		// index row; the join table stays authoritative.
		if !record.Deleted {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO records_fts (id, title, body, category, tags) VALUES (?, ?, ?, ?, ?)",
				record.Id, record.Title, record.Body, record.Category,
				strings.Join(record.Tags, " ")); err != nil {
				return fmt.Errorf("failed to index record: %w", err)
			}
		}
	}

	return nil
}

// queryFiltered runs the filter as SQL and materializes the result set.
// Rows that fail to decode are skipped and reported.
func (b *Backend) queryFiltered(ctx context.Context, f storage.Filter, rep *storage.ScanReport) ([]*core.Record, error) {
	var where []string
	var args []any

	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	for _, tag := range f.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM record_tags t WHERE t.record_id = records.id AND t.tag = ?)")
		args = append(args, tag)
	}
	if f.Favorite != nil {
		where = append(where, "favorite = ?")
		args = append(args, *f.Favorite)
	}
	if f.Archived != nil {
		where = append(where, "archived = ?")
		args = append(args, *f.Archived)
	}
	if !f.Since.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, f.Since.UnixMicro())
	}
	if !f.Until.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, f.Until.UnixMicro())
	}

	query := "SELECT " + recordColumns + " FROM records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
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

	for _, record := range records {
		if err := b.loadTags(ctx, b.db, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// queryRower covers *sql.DB and *sql.Tx for tag loading.
type queryRower interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadTags populates record.Tags in insertion order.
func (b *Backend) loadTags(ctx context.Context, q queryRower, record *core.Record) error {
	rows, err := q.QueryContext(ctx,
		"SELECT tag FROM record_tags WHERE record_id = ? ORDER BY pos", record.Id)
	if err != nil {
		return err
	}
	defer rows.Close()

	record.Tags = nil
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err
		}
		record.Tags = append(record.Tags, tag)
	}
	return rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes a record row (without tags).
func scanRecord(row rowScanner) (*core.Record, error) {
	var record core.Record
	var createdAt, updatedAt int64
	var syncState int
	var conflictTitle, conflictBody, conflictVersion sql.NullString
	var conflictUpdated sql.NullInt64

	err := row.Scan(
		&record.Id, &record.Title, &record.Body, &record.Category,
		&createdAt, &updatedAt,
		&record.Favorite, &record.Archived, &record.Deleted,
		&syncState, &record.RemoteVersion,
		&conflictTitle, &conflictBody, &conflictVersion, &conflictUpdated,
	)
	if err != nil {
		return nil, err
	}

	record.CreatedAt = decodeTime(createdAt)
	record.UpdatedAt = decodeTime(updatedAt)
	record.SyncState = core.SyncState(syncState)
	if err := core.ValidateSyncState(record.SyncState); err != nil {
		return nil, err
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

	return &record, nil
}

// encodeTime stores a timestamp as Unix microseconds, zero time as 0.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// decodeTime is the inverse of encodeTime.
func decodeTime(micro int64) time.Time {
	if micro == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micro).UTC()
}
