package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-composed MUS serializers for the persisted types. The key-value
// backend stores records as MUS blobs; the relational backend maps fields to
// columns and does not use these.

// TimeMUS serializes a time.Time as Unix microseconds.
// The zero time round-trips as the zero time (encoded as 0, so an
// epoch-exact timestamp is indistinguishable from unset).
var TimeMUS = timeMUS{}

type timeMUS struct{}

func (s timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	if v.IsZero() {
		return varint.Int64.Marshal(0, bs)
	}
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func (s timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	micro, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micro == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micro).UTC(), n, nil
}

func (s timeMUS) Size(v time.Time) (size int) {
	if v.IsZero() {
		return varint.Int64.Size(0)
	}
	return varint.Int64.Size(v.UnixMicro())
}

// SyncStateMUS serializes a SyncState.
var SyncStateMUS = syncStateMUS{}

type syncStateMUS struct{}

func (s syncStateMUS) Marshal(v SyncState, bs []byte) (n int) {
	return varint.PositiveInt.Marshal(int(v), bs)
}

func (s syncStateMUS) Unmarshal(bs []byte) (v SyncState, n int, err error) {
	raw, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return 0, n, err
	}
	state := SyncState(raw)
	if err := ValidateSyncState(state); err != nil {
		return 0, n, err
	}
	return state, n, nil
}

func (s syncStateMUS) Size(v SyncState) (size int) {
	return varint.PositiveInt.Size(int(v))
}

// stringSliceMUS serializes a []string with a varint length prefix.
var stringSliceMUS = stringSliceSer{}

type stringSliceSer struct{}

func (s stringSliceSer) Marshal(v []string, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for _, e := range v {
		n += ord.String.Marshal(e, bs[n:])
	}
	return n
}

func (s stringSliceSer) Unmarshal(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	v = make([]string, length)
	for i := range v {
		var n1 int
		v[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (s stringSliceSer) Size(v []string) (size int) {
	size = varint.PositiveInt.Size(len(v))
	for _, e := range v {
		size += ord.String.Size(e)
	}
	return size
}

// RemoteRevisionMUS serializes a RemoteRevision.
var RemoteRevisionMUS = remoteRevisionMUS{}

type remoteRevisionMUS struct{}

func (s remoteRevisionMUS) Marshal(v RemoteRevision, bs []byte) (n int) {
	n = ord.String.Marshal(v.Title, bs)
	n += ord.String.Marshal(v.Body, bs[n:])
	n += ord.String.Marshal(v.Version, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (s remoteRevisionMUS) Unmarshal(bs []byte) (v RemoteRevision, n int, err error) {
	var n1 int
	v.Title, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return v, n, err
	}
	v.Body, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Version, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.UpdatedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	return v, n, err
}

func (s remoteRevisionMUS) Size(v RemoteRevision) (size int) {
	size = ord.String.Size(v.Title)
	size += ord.String.Size(v.Body)
	size += ord.String.Size(v.Version)
	size += TimeMUS.Size(v.UpdatedAt)
	return size
}

// RecordMUS serializes a Record.
var RecordMUS = recordMUS{}

type recordMUS struct{}

func (s recordMUS) Marshal(v Record, bs []byte) (n int) {
	n = ord.String.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Body, bs[n:])
	n += stringSliceMUS.Marshal(v.Tags, bs[n:])
	n += ord.String.Marshal(v.Category, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	n += ord.Bool.Marshal(v.Favorite, bs[n:])
	n += ord.Bool.Marshal(v.Archived, bs[n:])
	n += ord.Bool.Marshal(v.Deleted, bs[n:])
	n += SyncStateMUS.Marshal(v.SyncState, bs[n:])
	n += ord.String.Marshal(v.RemoteVersion, bs[n:])
	n += ord.Bool.Marshal(v.Conflict != nil, bs[n:])
	if v.Conflict != nil {
		n += RemoteRevisionMUS.Marshal(*v.Conflict, bs[n:])
	}
	return n
}

func (s recordMUS) Unmarshal(bs []byte) (v Record, n int, err error) {
	var n1 int
	v.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return v, n, err
	}
	v.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Body, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Tags, n1, err = stringSliceMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Category, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.CreatedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.UpdatedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Favorite, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Archived, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Deleted, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.SyncState, n1, err = SyncStateMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.RemoteVersion, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	hasConflict, n1, err := ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	if hasConflict {
		var rev RemoteRevision
		rev, n1, err = RemoteRevisionMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return v, n, err
		}
		v.Conflict = &rev
	}
	return v, n, nil
}

func (s recordMUS) Size(v Record) (size int) {
	size = ord.String.Size(v.Id)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Body)
	size += stringSliceMUS.Size(v.Tags)
	size += ord.String.Size(v.Category)
	size += TimeMUS.Size(v.CreatedAt)
	size += TimeMUS.Size(v.UpdatedAt)
	size += ord.Bool.Size(v.Favorite)
	size += ord.Bool.Size(v.Archived)
	size += ord.Bool.Size(v.Deleted)
	size += SyncStateMUS.Size(v.SyncState)
	size += ord.String.Size(v.RemoteVersion)
	size += ord.Bool.Size(v.Conflict != nil)
	if v.Conflict != nil {
		size += RemoteRevisionMUS.Size(*v.Conflict)
	}
	return size
}
