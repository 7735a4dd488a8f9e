package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1

	// KindPlain is a store-TTL entry: the store expires it, no embedded clock.
	KindPlain byte = 1
	// KindLogical never expires at the store; staleness is judged by the
	// embedded expiry timestamp.
	KindLogical byte = 2
	// KindNull marks a key confirmed absent in the source-of-truth.
	KindNull byte = 3
)

var (
	ErrCorrupt = errors.New("flashcache: corrupt entry")
	magic4     = [...]byte{'F', 'L', 'S', 'H'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry is a decoded cache envelope. Expiry is zero for KindPlain and
// KindNull; Payload is nil for KindNull.
type Entry struct {
	Kind    byte
	Expiry  time.Time
	Payload []byte
}

// Stale reports whether a logical-expiry entry has passed its embedded
// expiry at the given instant. Plain and null entries are never stale.
func (e Entry) Stale(now time.Time) bool {
	return e.Kind == KindLogical && !e.Expiry.After(now)
}

// EncodePlain frames a store-TTL entry:
// magic(4) | ver(1) | kind(1=plain) | vlen(u32 be) | payload(vlen)
func EncodePlain(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(KindPlain)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// EncodeLogical frames a logical-expiry entry:
// magic(4) | ver(1) | kind(1=logical) | expiry(u64 be, unix milli) | vlen(u32 be) | payload(vlen)
func EncodeLogical(payload []byte, expiry time.Time) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(KindLogical)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiry.UnixMilli()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// EncodeNull frames the null marker: magic(4) | ver(1) | kind(1=null)
func EncodeNull() []byte {
	out := make([]byte, 0, 6)
	out = append(out, magic4[:]...)
	out = append(out, version, KindNull)
	return out
}

func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}

	kind := b[5]
	off := hdr

	var e Entry
	e.Kind = kind

	switch kind {
	case KindNull:
		if len(b) != hdr {
			return Entry{}, ErrCorrupt
		}
		return e, nil

	case KindLogical:
		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		e.Expiry = time.UnixMilli(int64(binary.BigEndian.Uint64(b[off : off+8])))
		off += 8

	case KindPlain:
		// no extra header

	default:
		return Entry{}, ErrCorrupt
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return Entry{}, ErrCorrupt
	}

	e.Payload = b[off : off+vlen]
	return e, nil
}
