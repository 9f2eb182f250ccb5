package badger

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/storage"
)

// Put upserts a record by ID, adjusting tag counters for the difference
// between the old and new tag sets in the same transaction.
func (b *Backend) Put(ctx context.Context, record *core.Record) error {
	return b.WithTx(func(tx *badger.Txn) error {
		if err := b.putRecord(tx, record); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a single record by ID.
func (b *Backend) Get(ctx context.Context, id string) (*core.Record, error) {
	var result *core.Record
	err := b.WithTx(func(tx *badger.Txn) error {
		record, err := readRecord(tx, makeRecordKey(id))
		if err != nil {
			return err
		}
		result = record
		return nil
	}, false)
	return result, err
}

// Delete removes a record by ID, decrementing its tag counters.
// Deleting a missing ID is not an error.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(id)
		old, err := readRecord(tx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil && !errors.Is(err, storage.ErrCorruptRecord) {
			return err
		}
		if old != nil {
			if err := b.adjustTagCounters(tx, effectiveTags(old), nil); err != nil {
				return err
			}
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// BulkPut upserts all records inside a single transaction.
func (b *Backend) BulkPut(ctx context.Context, records []*core.Record) error {
	if len(records) == 0 {
		return nil
	}
	return b.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			if err := b.putRecord(tx, record); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListFiltered yields records satisfying the filter, ordered by UpdatedAt
// descending, ID ascending. Each range performs a fresh scan.
func (b *Backend) ListFiltered(ctx context.Context, f storage.Filter, rep *storage.ScanReport) iter.Seq[*core.Record] {
	return func(yield func(*core.Record) bool) {
		records, err := b.scan(ctx, f, rep)
		if err != nil {
			rep.Report("", err)
			return
		}
		sortByRecency(records)
		for _, record := range records {
			if !yield(record) {
				return
			}
		}
	}
}

// TagCounts returns the tag-usage counters.
func (b *Backend) TagCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tagCounterPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			tag := tagFromCounterKey(item.Key())
			err := item.Value(func(val []byte) error {
				if n := decodeCounter(val); n > 0 {
					counts[tag] = int(n)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// putRecord writes a record and its counter adjustments into tx without
// committing.
func (b *Backend) putRecord(tx *badger.Txn, record *core.Record) error {
	key := makeRecordKey(record.Id)

	old, err := readRecord(tx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		if !errors.Is(err, storage.ErrCorruptRecord) {
			return err
		}
		// Overwriting a corrupt record repairs it; its tags are unknowable.
		b.logger.Warn("overwriting corrupt record", "id", record.Id)
		old = nil
	}

	var oldTags []string
	if old != nil {
		oldTags = effectiveTags(old)
	}
	if err := b.adjustTagCounters(tx, oldTags, effectiveTags(record)); err != nil {
		return err
	}

	return tx.Set(key, storage.MarshalRecord(record))
}

// effectiveTags returns the tags that count toward usage totals.
// Tombstoned records contribute nothing.
func effectiveTags(r *core.Record) []string {
	if r.Deleted {
		return nil
	}
	return r.Tags
}

// adjustTagCounters applies the counter delta between two tag sets.
func (b *Backend) adjustTagCounters(tx *badger.Txn, before, after []string) error {
	delta := make(map[string]int)
	for _, tag := range before {
		delta[tag]--
	}
	for _, tag := range after {
		delta[tag]++
	}

	for tag, d := range delta {
		if d == 0 {
			continue
		}
		key := makeTagCounterKey(tag)
		var current uint64
		item, err := tx.Get(key)
		if err == nil {
			err = item.Value(func(val []byte) error {
				current = decodeCounter(val)
				return nil
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		next := int64(current) + int64(d)
		if next <= 0 {
			if err := tx.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := tx.Set(key, encodeCounter(uint64(next))); err != nil {
			return err
		}
	}
	return nil
}

// readRecord reads and deserializes a record from tx.
// Returns storage.ErrNotFound if the key is absent.
func readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var uerr error
		record, uerr = storage.UnmarshalRecord(val)
		return uerr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// scan reads all records matching the filter. Corrupt records are skipped
// and reported.
func (b *Backend) scan(ctx context.Context, f storage.Filter, rep *storage.ScanReport) ([]*core.Record, error) {
	var records []*core.Record
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()

			var record *core.Record
			err := item.Value(func(val []byte) error {
				var uerr error
				record, uerr = storage.UnmarshalRecord(val)
				return uerr
			})
			if err != nil {
				rep.Report(recordIDFromKey(item.Key()), err)
				continue
			}

			if f.Matches(record) {
				records = append(records, record)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// sortByRecency orders records by UpdatedAt descending, ID ascending.
func sortByRecency(records []*core.Record) {
	slices.SortFunc(records, func(a, b *core.Record) int {
		if a.UpdatedAt.After(b.UpdatedAt) {
			return -1
		}
		if a.UpdatedAt.Before(b.UpdatedAt) {
			return 1
		}
		if a.Id < b.Id {
			return -1
		}
		if a.Id > b.Id {
			return 1
		}
		return 0
	})
}
