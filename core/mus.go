package core

import (
	"errors"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// ErrNegativeLength is returned when a decoded collection length is negative.
var ErrNegativeLength = errors.New("negative length")

// Serializers for the persisted domain types. Time values are stored as
// Unix microseconds so a zero time round-trips as the zero time.
var (
	ManifestEntryMUS = manifestEntryMUS{}
	IndexEntryMUS    = indexEntryMUS{}
)

type manifestEntryMUS struct{}

func (manifestEntryMUS) Marshal(v ManifestEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.Path, bs)
	n += ord.String.Marshal(string(v.Fingerprint), bs[n:])
	n += varint.Int.Marshal(int(v.Format), bs[n:])
	n += varint.Int64.Marshal(v.Size, bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.ModTime), bs[n:])
	n += stringsMarshal(v.ChunkIDs, bs[n:])
	n += ord.String.Marshal(v.EmbeddingModel, bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.LastIngestedAt), bs[n:])
	return
}

func (manifestEntryMUS) Unmarshal(bs []byte) (v ManifestEntry, n int, err error) {
	var (
		n1     int
		s      string
		i      int
		i64    int64
		chunks []string
	)
	if v.Path, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if s, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.Fingerprint = Fingerprint(s)
	if i, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.Format = Format(i)
	if v.Size, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	if i64, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.ModTime = microToTime(i64)
	if chunks, n1, err = stringsUnmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.ChunkIDs = chunks
	if v.EmbeddingModel, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	if i64, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.LastIngestedAt = microToTime(i64)
	return
}

func (manifestEntryMUS) Size(v ManifestEntry) (size int) {
	size = ord.String.Size(v.Path)
	size += ord.String.Size(string(v.Fingerprint))
	size += varint.Int.Size(int(v.Format))
	size += varint.Int64.Size(v.Size)
	size += varint.Int64.Size(timeToMicro(v.ModTime))
	size += stringsSize(v.ChunkIDs)
	size += ord.String.Size(v.EmbeddingModel)
	size += varint.Int64.Size(timeToMicro(v.LastIngestedAt))
	return
}

type indexEntryMUS struct{}

func (indexEntryMUS) Marshal(v IndexEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += ord.String.Marshal(v.Text, bs[n:])
	n += metadataMarshal(v.Metadata, bs[n:])
	return
}

func (indexEntryMUS) Unmarshal(bs []byte) (v IndexEntry, n int, err error) {
	var (
		n1     int
		length int
	)
	if v.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if length, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	if length < 0 {
		err = ErrNegativeLength
		return
	}
	if length > 0 {
		v.Vector = make([]float32, length)
		for i := range v.Vector {
			if v.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
				n += n1
				return
			}
			n += n1
		}
	}
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	if v.Metadata, n1, err = metadataUnmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	return
}

func (indexEntryMUS) Size(v IndexEntry) (size int) {
	size = ord.String.Size(v.ID)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	size += ord.String.Size(v.Text)
	size += metadataSize(v.Metadata)
	return
}

func stringsMarshal(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return
}

func stringsUnmarshal(bs []byte) (v []string, n int, err error) {
	var (
		n1     int
		length int
	)
	if length, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if length < 0 {
		err = ErrNegativeLength
		return
	}
	if length == 0 {
		return
	}
	v = make([]string, length)
	for i := range v {
		if v[i], n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			n += n1
			return
		}
		n += n1
	}
	return
}

func stringsSize(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return
}

func metadataMarshal(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return
}

func metadataUnmarshal(bs []byte) (m map[string]string, n int, err error) {
	var (
		n1     int
		length int
		k, v   string
	)
	if length, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if length < 0 {
		err = ErrNegativeLength
		return
	}
	if length == 0 {
		return
	}
	m = make(map[string]string, length)
	for range length {
		if k, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			n += n1
			return
		}
		n += n1
		if v, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			n += n1
			return
		}
		n += n1
		m[k] = v
	}
	return
}

func metadataSize(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return
}

func timeToMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microToTime(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
