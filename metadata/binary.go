package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrTruncated is returned when a binary document ends mid-value.
var ErrTruncated = errors.New("metadata: truncated binary document")

// AppendBinary appends a deterministic binary encoding of d to dst and
// returns the extended slice.
//
// Keys are written in sorted order so that the same document always
// produces the same bytes. Floats are written as raw IEEE-754 bits, so
// a decode restores them exactly.
func AppendBinary(dst []byte, d Document) []byte {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dst = binary.AppendUvarint(dst, uint64(len(keys)))
	for _, k := range keys {
		dst = binary.AppendUvarint(dst, uint64(len(k)))
		dst = append(dst, k...)
		dst = appendValue(dst, d[k])
	}
	return dst
}

// DecodeBinary decodes a document produced by AppendBinary from the start
// of data. It returns the document and the number of bytes consumed.
func DecodeBinary(data []byte) (Document, int, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, ErrTruncated
	}
	off := n

	if count == 0 {
		return nil, off, nil
	}

	doc := make(Document, count)
	for i := uint64(0); i < count; i++ {
		keyLen, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, 0, ErrTruncated
		}
		off += n
		if uint64(len(data)-off) < keyLen {
			return nil, 0, ErrTruncated
		}
		key := string(data[off : off+int(keyLen)])
		off += int(keyLen)

		value, n, err := decodeValue(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		doc[key] = value
	}
	return doc, off, nil
}

func appendValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// Kind byte only.
	case KindInt:
		dst = binary.AppendVarint(dst, v.I64)
	case KindFloat:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.F64))
	case KindString:
		s := v.s.Value()
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	case KindBool:
		if v.B {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindArray:
		dst = binary.AppendUvarint(dst, uint64(len(v.A)))
		for _, item := range v.A {
			dst = appendValue(dst, item)
		}
	}
	return dst
}

func decodeValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, ErrTruncated
	}
	kind := Kind(data[0])
	off := 1

	switch kind {
	case KindNull:
		return Null(), off, nil
	case KindInt:
		i, n := binary.Varint(data[off:])
		if n <= 0 {
			return Value{}, 0, ErrTruncated
		}
		return Int(i), off + n, nil
	case KindFloat:
		if len(data)-off < 8 {
			return Value{}, 0, ErrTruncated
		}
		bits := binary.LittleEndian.Uint64(data[off:])
		return Float(math.Float64frombits(bits)), off + 8, nil
	case KindString:
		strLen, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return Value{}, 0, ErrTruncated
		}
		off += n
		if uint64(len(data)-off) < strLen {
			return Value{}, 0, ErrTruncated
		}
		return String(string(data[off : off+int(strLen)])), off + int(strLen), nil
	case KindBool:
		if len(data)-off < 1 {
			return Value{}, 0, ErrTruncated
		}
		return Bool(data[off] == 1), off + 1, nil
	case KindArray:
		count, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return Value{}, 0, ErrTruncated
		}
		off += n
		items := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			item, n, err := decodeValue(data[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += n
			items = append(items, item)
		}
		return Array(items...), off, nil
	default:
		return Value{}, 0, fmt.Errorf("metadata: unknown value kind %d", kind)
	}
}
