// Package kv adapts the byte-oriented transaction contract into typed maps.
// Keys are tuples of fixed-width big-endian integers and uvarint
// length-prefixed strings, so encodings of distinct keys never collide.
package kv

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"unitledger/pkg/domain"
)

// ErrMalformed reports bytes that do not decode under the expected codec.
var ErrMalformed = errors.New("malformed encoding")

// Codec appends the encoding of a value and reads one back, reporting how
// many bytes it consumed so codecs can be concatenated into tuple keys.
type Codec[T any] interface {
	Append(dst []byte, v T) ([]byte, error)
	Read(src []byte) (T, int, error)
}

// Encode returns the standalone encoding of v.
func Encode[T any](c Codec[T], v T) ([]byte, error) {
	return c.Append(nil, v)
}

// Decode reads v from b and rejects trailing bytes.
func Decode[T any](c Codec[T], b []byte) (T, error) {
	v, n, err := c.Read(b)
	if err != nil {
		var zero T
		return zero, err
	}
	if n != len(b) {
		var zero T
		return zero, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-n)
	}
	return v, nil
}

// Uint32 encodes ~uint32 values as 4 big-endian bytes.
type Uint32[T ~uint32] struct{}

func (Uint32[T]) Append(dst []byte, v T) ([]byte, error) {
	return binary.BigEndian.AppendUint32(dst, uint32(v)), nil
}

func (Uint32[T]) Read(src []byte) (T, int, error) {
	if len(src) < 4 {
		return 0, 0, fmt.Errorf("%w: need 4 bytes, have %d", ErrMalformed, len(src))
	}
	return T(binary.BigEndian.Uint32(src)), 4, nil
}

// String encodes ~string values with a uvarint length prefix.
type String[T ~string] struct{}

func (String[T]) Append(dst []byte, v T) ([]byte, error) {
	dst = binary.AppendUvarint(dst, uint64(len(v)))
	return append(dst, string(v)...), nil
}

func (String[T]) Read(src []byte) (T, int, error) {
	n, w := binary.Uvarint(src)
	if w <= 0 {
		return "", 0, fmt.Errorf("%w: bad string length", ErrMalformed)
	}
	if n > uint64(len(src)-w) {
		return "", 0, fmt.Errorf("%w: string overruns input", ErrMalformed)
	}
	end := w + int(n)
	return T(src[w:end]), end, nil
}

// Raw stores ~string values verbatim. It consumes the whole input, so it
// must be the last component of a tuple.
type Raw[T ~string] struct{}

func (Raw[T]) Append(dst []byte, v T) ([]byte, error) { return append(dst, string(v)...), nil }

func (Raw[T]) Read(src []byte) (T, int, error) { return T(src), len(src), nil }

// DNA stores the fixed 16-byte payload.
type DNA struct{}

func (DNA) Append(dst []byte, v domain.DNA) ([]byte, error) { return append(dst, v[:]...), nil }

func (DNA) Read(src []byte) (domain.DNA, int, error) {
	var out domain.DNA
	if len(src) < domain.DNALength {
		return out, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, domain.DNALength, len(src))
	}
	copy(out[:], src)
	return out, domain.DNALength, nil
}

// JSON encodes composite values; it consumes the whole input.
type JSON[T any] struct{}

func (JSON[T]) Append(dst []byte, v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return append(dst, b...), nil
}

func (JSON[T]) Read(src []byte) (T, int, error) {
	var v T
	if err := json.Unmarshal(src, &v); err != nil {
		return v, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, len(src), nil
}

// Optional tags a value with 0 (absent) or 1 (present).
type Optional[T any] struct {
	Inner Codec[T]
}

func (o Optional[T]) Append(dst []byte, v *T) ([]byte, error) {
	if v == nil {
		return append(dst, 0), nil
	}
	return o.Inner.Append(append(dst, 1), *v)
}

func (o Optional[T]) Read(src []byte) (*T, int, error) {
	if len(src) == 0 {
		return nil, 0, fmt.Errorf("%w: missing option tag", ErrMalformed)
	}
	switch src[0] {
	case 0:
		return nil, 1, nil
	case 1:
		v, n, err := o.Inner.Read(src[1:])
		if err != nil {
			return nil, 0, err
		}
		return &v, n + 1, nil
	default:
		return nil, 0, fmt.Errorf("%w: option tag %d", ErrMalformed, src[0])
	}
}

// Pair is a two-component tuple key.
type Pair[A, B any] struct {
	First  A
	Second B
}

// PairOf builds a Pair.
func PairOf[A, B any](a A, b B) Pair[A, B] { return Pair[A, B]{First: a, Second: b} }

// Tuple concatenates two codecs.
type Tuple[A, B any] struct {
	First  Codec[A]
	Second Codec[B]
}

func (t Tuple[A, B]) Append(dst []byte, v Pair[A, B]) ([]byte, error) {
	dst, err := t.First.Append(dst, v.First)
	if err != nil {
		return nil, err
	}
	return t.Second.Append(dst, v.Second)
}

func (t Tuple[A, B]) Read(src []byte) (Pair[A, B], int, error) {
	a, n, err := t.First.Read(src)
	if err != nil {
		return Pair[A, B]{}, 0, err
	}
	b, m, err := t.Second.Read(src[n:])
	if err != nil {
		return Pair[A, B]{}, 0, err
	}
	return Pair[A, B]{First: a, Second: b}, n + m, nil
}
