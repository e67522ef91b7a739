package codec

import (
	"bytes"
	"math"
	"reflect"
	"testing"
	"testing/quick"
	"time"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

func roundTrip[T any](t *testing.T, c Converter[T], v T) T {
	t.Helper()
	buf, err := Lower(c, v)
	if err != nil {
		t.Fatalf("Lower(%v) failed: %v", v, err)
	}
	got, err := Lift(c, buf)
	if err != nil {
		t.Fatalf("Lift(%x) failed: %v", buf, err)
	}
	return got
}

func checkQuick[T comparable](t *testing.T, c Converter[T]) {
	t.Helper()
	f := func(v T) bool {
		buf, err := Lower(c, v)
		if err != nil {
			return false
		}
		got, err := Lift(c, buf)
		return err == nil && got == v
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestRoundTrip_Scalars(t *testing.T) {
	t.Run("bool", func(t *testing.T) { checkQuick(t, Bool) })
	t.Run("u8", func(t *testing.T) { checkQuick(t, Uint8) })
	t.Run("u16", func(t *testing.T) { checkQuick(t, Uint16) })
	t.Run("u32", func(t *testing.T) { checkQuick(t, Uint32) })
	t.Run("u64", func(t *testing.T) { checkQuick(t, Uint64) })
	t.Run("i8", func(t *testing.T) { checkQuick(t, Int8) })
	t.Run("i16", func(t *testing.T) { checkQuick(t, Int16) })
	t.Run("i32", func(t *testing.T) { checkQuick(t, Int32) })
	t.Run("i64", func(t *testing.T) { checkQuick(t, Int64) })
	t.Run("string", func(t *testing.T) { checkQuick(t, String) })

	t.Run("floats", func(t *testing.T) {
		for _, v := range []float64{0, -0.5, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
			if got := roundTrip(t, Float64, v); got != v {
				t.Errorf("f64 %v -> %v", v, got)
			}
			f := float32(v)
			if got := roundTrip(t, Float32, f); got != f {
				t.Errorf("f32 %v -> %v", f, got)
			}
		}
		if got := roundTrip(t, Float64, math.NaN()); !math.IsNaN(got) {
			t.Errorf("NaN -> %v", got)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		for _, v := range [][]byte{{}, {0}, []byte("hello"), bytes.Repeat([]byte{0xab}, 1000)} {
			if got := roundTrip(t, Bytes, v); !bytes.Equal(got, v) {
				t.Errorf("bytes %x -> %x", v, got)
			}
		}
	})

	t.Run("duration", func(t *testing.T) {
		for _, v := range []time.Duration{0, time.Nanosecond, 1500 * time.Millisecond, 90 * time.Hour, math.MaxInt64} {
			if got := roundTrip(t, Duration, v); got != v {
				t.Errorf("duration %v -> %v", v, got)
			}
		}
	})

	t.Run("handle", func(t *testing.T) {
		if got := roundTrip(t, Handle, callbackrt.Handle(42)); got != 42 {
			t.Errorf("handle -> %d", got)
		}
	})
}

func TestRoundTrip_Composites(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		c := Optional(Int32)
		if got := roundTrip(t, c, nil); got != nil {
			t.Errorf("nil -> %v", *got)
		}
		v := int32(-7)
		got := roundTrip(t, c, &v)
		if got == nil || *got != v {
			t.Errorf("&-7 -> %v", got)
		}
	})

	t.Run("nested optional", func(t *testing.T) {
		c := Optional(Optional(String))
		s := "x"
		inner := &s
		got := roundTrip(t, c, &inner)
		if got == nil || *got == nil || **got != "x" {
			t.Errorf("nested optional did not round-trip")
		}
		var absent *string
		got = roundTrip(t, c, &absent)
		if got == nil || *got != nil {
			t.Errorf("present-but-empty optional did not round-trip")
		}
	})

	t.Run("sequence", func(t *testing.T) {
		c := Sequence(String)
		v := []string{"a", "", "héllo"}
		if got := roundTrip(t, c, v); !reflect.DeepEqual(got, v) {
			t.Errorf("%v -> %v", v, got)
		}
		if got := roundTrip(t, c, nil); len(got) != 0 {
			t.Errorf("empty -> %v", got)
		}
	})

	t.Run("sequence of sequences", func(t *testing.T) {
		c := Sequence(Sequence(Uint16))
		v := [][]uint16{{1, 2}, {}, {65535}}
		if got := roundTrip(t, c, v); !reflect.DeepEqual(got, v) {
			t.Errorf("%v -> %v", v, got)
		}
	})

	t.Run("map", func(t *testing.T) {
		c := Map(String, Optional(Int64))
		one := int64(1)
		v := map[string]*int64{"b": &one, "a": nil}
		got := roundTrip(t, c, v)
		if len(got) != 2 || got["a"] != nil || got["b"] == nil || *got["b"] != 1 {
			t.Errorf("%v -> %v", v, got)
		}
	})

	t.Run("map encoding is canonical", func(t *testing.T) {
		c := Map(Uint8, Uint8)
		a, _ := Lower(c, map[uint8]uint8{3: 1, 1: 2, 2: 3})
		b, _ := Lower(c, map[uint8]uint8{1: 2, 2: 3, 3: 1})
		if !bytes.Equal(a, b) {
			t.Errorf("equal maps encoded differently: %x vs %x", a, b)
		}
	})
}

type point struct {
	Label string
	X, Y  int32
}

var pointConv = Func(
	func(w *Writer, p point) {
		String.Write(w, p.Label)
		Int32.Write(w, p.X)
		Int32.Write(w, p.Y)
	},
	func(r *Reader) (point, error) {
		var p point
		var err error
		if p.Label, err = String.Read(r); err != nil {
			return p, err
		}
		if p.X, err = Int32.Read(r); err != nil {
			return p, err
		}
		p.Y, err = Int32.Read(r)
		return p, err
	},
)

func TestRoundTrip_Record(t *testing.T) {
	v := []point{{"origin", 0, 0}, {"p", -3, 9}}
	got := roundTrip(t, Sequence(pointConv), v)
	if !reflect.DeepEqual(got, v) {
		t.Errorf("%v -> %v", v, got)
	}
}

func TestWireLayout(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  []byte
	}{
		{"u32 big-endian", func(w *Writer) { Uint32.Write(w, 17) }, []byte{0, 0, 0, 17}},
		{"i16 negative", func(w *Writer) { Int16.Write(w, -2) }, []byte{0xff, 0xfe}},
		{"string", func(w *Writer) { String.Write(w, "hi") }, []byte{0, 0, 0, 2, 'h', 'i'}},
		{"absent optional", func(w *Writer) { Optional(Uint8).Write(w, nil) }, []byte{0}},
		{"sequence", func(w *Writer) { Sequence(Uint8).Write(w, []uint8{7, 8}) }, []byte{0, 0, 0, 2, 7, 8}},
		{"bool", func(w *Writer) { Bool.Write(w, true) }, []byte{1}},
		{"positional", func(w *Writer) {
			Uint8.Write(w, 1)
			String.Write(w, "")
			Uint16.Write(w, 0x0203)
		}, []byte{1, 0, 0, 0, 0, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(0)
			tt.write(w)
			if err := w.Err(); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Errorf("got %x, want %x", w.Bytes(), tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(r *Reader) error
		kind errors.Kind
	}{
		{"short u32", []byte{0, 0, 1}, func(r *Reader) error { _, err := Uint32.Read(r); return err }, errors.KindOutOfBounds},
		{"empty u8", nil, func(r *Reader) error { _, err := Uint8.Read(r); return err }, errors.KindOutOfBounds},
		{"string body missing", []byte{0, 0, 0, 5, 'a'}, func(r *Reader) error { _, err := String.Read(r); return err }, errors.KindOutOfBounds},
		{"negative length", []byte{0xff, 0xff, 0xff, 0xff}, func(r *Reader) error { _, err := Bytes.Read(r); return err }, errors.KindInvalidData},
		{"bad utf8", []byte{0, 0, 0, 1, 0xff}, func(r *Reader) error { _, err := String.Read(r); return err }, errors.KindInvalidUTF8},
		{"bad bool", []byte{2}, func(r *Reader) error { _, err := Bool.Read(r); return err }, errors.KindInvalidData},
		{"bad presence flag", []byte{9}, func(r *Reader) error { _, err := Optional(Uint8).Read(r); return err }, errors.KindInvalidData},
		{"truncated element", []byte{0, 0, 0, 2, 1}, func(r *Reader) error { _, err := Sequence(Uint8).Read(r); return err }, errors.KindOutOfBounds},
		{"huge count", []byte{0x7f, 0xff, 0xff, 0xff}, func(r *Reader) error { _, err := Sequence(Uint32).Read(r); return err }, errors.KindOutOfBounds},
		{"duplicate map key", []byte{0, 0, 0, 2, 1, 0, 1, 0}, func(r *Reader) error { _, err := Map(Uint8, Uint8).Read(r); return err }, errors.KindInvalidData},
		{"zero handle", make([]byte, 8), func(r *Reader) error { _, err := Handle.Read(r); return err }, errors.KindInvalidData},
		{"bad nanos", []byte{0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, func(r *Reader) error { _, err := Duration.Read(r); return err }, errors.KindInvalidData},
		{"duration seconds overflow", []byte{0, 0, 0, 2, 0x25, 0xc1, 0x7d, 0x05, 0, 0, 0, 0}, func(r *Reader) error { _, err := Duration.Read(r); return err }, errors.KindOverflow},
		{"duration nanos overflow", []byte{0, 0, 0, 2, 0x25, 0xc1, 0x7d, 0x04, 0x35, 0xa4, 0xe9, 0x00}, func(r *Reader) error { _, err := Duration.Read(r); return err }, errors.KindOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.buf))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsEncoding(err) {
				t.Errorf("expected encoding error, got %v", err)
			}
			if !errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: tt.kind}) {
				t.Errorf("expected kind %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestDecodeErrorPath(t *testing.T) {
	c := Sequence(String)
	buf := []byte{0, 0, 0, 2, 0, 0, 0, 1, 'a', 0, 0, 0, 3}
	_, err := Lift(c, buf)
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if len(e.Path) != 1 || e.Path[0] != "1" {
		t.Errorf("path = %v, want [1]", e.Path)
	}
}

func TestLiftRejectsTrailingBytes(t *testing.T) {
	_, err := Lift(Uint8, []byte{1, 2})
	if err == nil {
		t.Fatal("expected trailing bytes error")
	}
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData}) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReaderCursor(t *testing.T) {
	w := NewWriter(0)
	Uint32.Write(w, 1)
	String.Write(w, "ab")
	r := NewReader(w.Bytes())
	if _, err := Uint32.Read(r); err != nil {
		t.Fatal(err)
	}
	if r.Position() != 4 || r.Remaining() != 6 {
		t.Errorf("position=%d remaining=%d", r.Position(), r.Remaining())
	}
	if _, err := String.Read(r); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestWriterStickyError(t *testing.T) {
	w := NewWriter(0)
	Duration.Write(w, -time.Second)
	Uint8.Write(w, 1)
	if w.Err() == nil {
		t.Fatal("expected error for negative duration")
	}
	if w.Len() != 0 {
		t.Errorf("writes after failure should be ignored, len=%d", w.Len())
	}
	w.Reset()
	if w.Err() != nil || w.Len() != 0 {
		t.Error("Reset should clear state")
	}
}

func TestFailing(t *testing.T) {
	errNoLower := errors.Unsupported(errors.PhaseEncode, "cannot lower")
	c := Failing(errNoLower, Uint8.Read)
	if _, err := Lower(c, 1); err != errNoLower {
		t.Errorf("Lower err = %v", err)
	}
	if v, err := Lift(c, []byte{5}); err != nil || v != 5 {
		t.Errorf("Lift = %d, %v", v, err)
	}
}
