package codec

import (
	"encoding/binary"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/callback-runtime/errors"
)

// Reader is a cursor over an encoded buffer.
type Reader struct {
	buf  []byte
	path []string
	pos  int
}

// NewReader creates a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current byte offset.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Finish reports an error if unread bytes remain.
func (r *Reader) Finish() error {
	if n := r.Remaining(); n > 0 {
		return errors.TrailingBytes(n)
	}
	return nil
}

// Enter pushes a path segment used in decode errors.
func (r *Reader) Enter(name string) {
	r.path = append(r.path, name)
}

// EnterIndex pushes a numeric path segment.
func (r *Reader) EnterIndex(i int) {
	r.Enter(strconv.Itoa(i))
}

// Leave pops the last path segment.
func (r *Reader) Leave() {
	if len(r.path) > 0 {
		r.path = r.path[:len(r.path)-1]
	}
}

func (r *Reader) currentPath() []string {
	if len(r.path) == 0 {
		return nil
	}
	return append([]string(nil), r.path...)
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.ShortBuffer(r.currentPath(), n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// ReadBool reads a 1-byte flag. Values other than 0 and 1 are invalid.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.currentPath()...).
			WireType("bool").
			Value(v).
			Detail("invalid bool byte %d", v).
			Build()
	}
}

// ReadLen reads a 4-byte length or count prefix. Negative values are invalid.
func (r *Reader) ReadLen() (int, error) {
	n, err := r.ReadI32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.currentPath()...).
			Value(n).
			Detail("negative length %d", n).
			Build()
	}
	return int(n), nil
}

// ReadBytes reads a length-prefixed byte slice. The result is a copy.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadLen()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadLen()
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, r.currentPath(), b)
	}
	return string(b), nil
}

// ReadRaw reads exactly n unprefixed bytes without copying.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	return r.take(n)
}
