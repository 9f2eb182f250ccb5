package badger

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key prefixes for different data types
const (
	recordPrefix     = "notrec"
	tagCounterPrefix = "nottag"
)

// makeRecordKey generates a key for a record by ID.
func makeRecordKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", recordPrefix, id))
}

// recordIDFromKey extracts the record ID from a record key.
func recordIDFromKey(key []byte) string {
	return strings.TrimPrefix(string(key), recordPrefix+":")
}

// makeTagCounterKey generates a key for a tag-usage counter.
func makeTagCounterKey(tag string) []byte {
	return []byte(fmt.Sprintf("%s:%s", tagCounterPrefix, tag))
}

// tagFromCounterKey extracts the tag from a counter key.
func tagFromCounterKey(key []byte) string {
	return strings.TrimPrefix(string(key), tagCounterPrefix+":")
}

// encodeCounter encodes a tag counter value.
func encodeCounter(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// decodeCounter decodes a tag counter value.
func decodeCounter(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
