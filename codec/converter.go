package codec

import (
	"math"
	"time"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

// Converter pairs the write and read rule for one Go type.
type Converter[T any] interface {
	Write(w *Writer, v T)
	Read(r *Reader) (T, error)
}

// Lower encodes v into a fresh buffer.
func Lower[T any](c Converter[T], v T) ([]byte, error) {
	w := NewWriter(16)
	c.Write(w, v)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Lift decodes a complete buffer. Bytes left after the value are an error.
func Lift[T any](c Converter[T], buf []byte) (T, error) {
	r := NewReader(buf)
	v, err := c.Read(r)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := r.Finish(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

type scalar[T any] struct {
	write func(*Writer, T)
	read  func(*Reader) (T, error)
}

func (s scalar[T]) Write(w *Writer, v T)      { s.write(w, v) }
func (s scalar[T]) Read(r *Reader) (T, error) { return s.read(r) }

var (
	Bool    Converter[bool]    = scalar[bool]{(*Writer).WriteBool, (*Reader).ReadBool}
	Uint8   Converter[uint8]   = scalar[uint8]{(*Writer).WriteU8, (*Reader).ReadU8}
	Uint16  Converter[uint16]  = scalar[uint16]{(*Writer).WriteU16, (*Reader).ReadU16}
	Uint32  Converter[uint32]  = scalar[uint32]{(*Writer).WriteU32, (*Reader).ReadU32}
	Uint64  Converter[uint64]  = scalar[uint64]{(*Writer).WriteU64, (*Reader).ReadU64}
	Int8    Converter[int8]    = scalar[int8]{(*Writer).WriteI8, (*Reader).ReadI8}
	Int16   Converter[int16]   = scalar[int16]{(*Writer).WriteI16, (*Reader).ReadI16}
	Int32   Converter[int32]   = scalar[int32]{(*Writer).WriteI32, (*Reader).ReadI32}
	Int64   Converter[int64]   = scalar[int64]{(*Writer).WriteI64, (*Reader).ReadI64}
	Float32 Converter[float32] = scalar[float32]{(*Writer).WriteF32, (*Reader).ReadF32}
	Float64 Converter[float64] = scalar[float64]{(*Writer).WriteF64, (*Reader).ReadF64}
	String  Converter[string]  = scalar[string]{(*Writer).WriteString, (*Reader).ReadString}
	Bytes   Converter[[]byte]  = scalar[[]byte]{(*Writer).WriteBytes, (*Reader).ReadBytes}

	Duration Converter[time.Duration]     = durationConverter{}
	Handle   Converter[callbackrt.Handle] = handleConverter{}
)

// Unit encodes nothing. It is the return converter of methods without a result.
var Unit Converter[struct{}] = unitConverter{}

type unitConverter struct{}

func (unitConverter) Write(*Writer, struct{}) {}

func (unitConverter) Read(*Reader) (struct{}, error) { return struct{}{}, nil }

type durationConverter struct{}

func (durationConverter) Write(w *Writer, d time.Duration) {
	if d < 0 {
		w.Fail(errors.Overflow(errors.PhaseEncode, nil, d, "duration"))
		return
	}
	w.WriteU64(uint64(d / time.Second))
	w.WriteU32(uint32(d % time.Second))
}

func (durationConverter) Read(r *Reader) (time.Duration, error) {
	secs, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	nanos, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if nanos >= uint32(time.Second) {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.currentPath()...).
			WireType("duration").
			Detail("nanoseconds %d out of range", nanos).
			Build()
	}
	const maxSecs = uint64(math.MaxInt64) / uint64(time.Second)
	const maxNanos = uint32(math.MaxInt64 % int64(time.Second))
	if secs > maxSecs || (secs == maxSecs && nanos > maxNanos) {
		return 0, errors.Overflow(errors.PhaseDecode, r.currentPath(), secs, "duration")
	}
	return time.Duration(secs)*time.Second + time.Duration(nanos), nil
}

type handleConverter struct{}

func (handleConverter) Write(w *Writer, h callbackrt.Handle) {
	w.WriteU64(uint64(h))
}

func (handleConverter) Read(r *Reader) (callbackrt.Handle, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(r.currentPath()...).
			WireType("handle").
			Detail("handle 0 is never valid").
			Build()
	}
	return callbackrt.Handle(v), nil
}
