package metadata

import (
	"cmp"
	"reflect"
	"slices"
	"time"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	handleType   = reflect.TypeFor[callbackrt.Handle]()
	bytesType    = reflect.TypeFor[[]byte]()
	unitType     = reflect.TypeFor[struct{}]()
)

// GoType returns the Go type values of t decode to when no target is given.
// Records and enums have no generic Go form.
func GoType(t Type) (reflect.Type, error) {
	switch t.Code {
	case TypeUnit:
		return unitType, nil
	case TypeU8:
		return reflect.TypeFor[uint8](), nil
	case TypeI8:
		return reflect.TypeFor[int8](), nil
	case TypeU16:
		return reflect.TypeFor[uint16](), nil
	case TypeI16:
		return reflect.TypeFor[int16](), nil
	case TypeU32:
		return reflect.TypeFor[uint32](), nil
	case TypeI32:
		return reflect.TypeFor[int32](), nil
	case TypeU64:
		return reflect.TypeFor[uint64](), nil
	case TypeI64:
		return reflect.TypeFor[int64](), nil
	case TypeF32:
		return reflect.TypeFor[float32](), nil
	case TypeF64:
		return reflect.TypeFor[float64](), nil
	case TypeBool:
		return reflect.TypeFor[bool](), nil
	case TypeString:
		return reflect.TypeFor[string](), nil
	case TypeBytes:
		return bytesType, nil
	case TypeDuration:
		return durationType, nil
	case TypeCallbackInterface:
		return handleType, nil
	case TypeOption:
		inner, err := GoType(*t.Inner)
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(inner), nil
	case TypeSequence:
		inner, err := GoType(*t.Inner)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(inner), nil
	case TypeMap:
		key, err := GoType(*t.Key)
		if err != nil {
			return nil, err
		}
		if !orderedKind(key.Kind()) {
			return nil, errors.Unsupported(errors.PhaseDefine, "map key type "+t.Key.String())
		}
		val, err := GoType(*t.Inner)
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(key, val), nil
	default:
		return nil, errors.Unsupported(errors.PhaseDefine, "generic Go form of "+t.String())
	}
}

// WriteValue encodes v as type t. v's kind must match t; named Go types with
// the right underlying kind are accepted.
func WriteValue(w *codec.Writer, t Type, v reflect.Value) {
	if err := writeValue(w, t, v); err != nil {
		w.Fail(err)
	}
}

func writeValue(w *codec.Writer, t Type, v reflect.Value) error {
	if !v.IsValid() {
		if t.Code == TypeOption {
			w.WriteU8(0)
			return nil
		}
		return mismatch(errors.PhaseEncode, t, nil)
	}

	switch t.Code {
	case TypeUnit:
		return nil
	case TypeBool:
		if v.Kind() != reflect.Bool {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteBool(v.Bool())
	case TypeU8, TypeU16, TypeU32, TypeU64:
		if !uintKind(v.Kind()) {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		return writeUint(w, t.Code, v.Uint())
	case TypeI8, TypeI16, TypeI32, TypeI64:
		if !intKind(v.Kind()) {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		return writeInt(w, t.Code, v.Int())
	case TypeF32:
		if !floatKind(v.Kind()) {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteF32(float32(v.Float()))
	case TypeF64:
		if !floatKind(v.Kind()) {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteF64(v.Float())
	case TypeString:
		if v.Kind() != reflect.String {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteString(v.String())
	case TypeBytes:
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteBytes(v.Bytes())
	case TypeDuration:
		if v.Kind() != reflect.Int64 {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		codec.Duration.Write(w, time.Duration(v.Int()))
	case TypeCallbackInterface:
		if v.Kind() != reflect.Uint64 {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		codec.Handle.Write(w, callbackrt.Handle(v.Uint()))
	case TypeOption:
		if v.Kind() == reflect.Interface {
			if v.IsNil() {
				w.WriteU8(0)
				return nil
			}
			w.WriteU8(1)
			return writeValue(w, *t.Inner, v.Elem())
		}
		if v.Kind() != reflect.Pointer {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		if v.IsNil() {
			w.WriteU8(0)
			return nil
		}
		w.WriteU8(1)
		return writeValue(w, *t.Inner, v.Elem())
	case TypeSequence:
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		w.WriteLen(v.Len())
		for i := 0; i < v.Len(); i++ {
			if err := writeValue(w, *t.Inner, elem(v.Index(i))); err != nil {
				return err
			}
		}
	case TypeMap:
		if v.Kind() != reflect.Map {
			return mismatch(errors.PhaseEncode, t, v.Type())
		}
		keys := v.MapKeys()
		slices.SortFunc(keys, compareKeys)
		w.WriteLen(len(keys))
		for _, k := range keys {
			if err := writeValue(w, *t.Key, elem(k)); err != nil {
				return err
			}
			if err := writeValue(w, *t.Inner, elem(v.MapIndex(k))); err != nil {
				return err
			}
		}
	default:
		return errors.Unsupported(errors.PhaseEncode, "generic encoding of "+t.String())
	}
	return nil
}

// elem unwraps interface values so []any and map[string]any can be encoded.
func elem(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		return v.Elem()
	}
	return v
}

func writeUint(w *codec.Writer, code TypeCode, x uint64) error {
	switch code {
	case TypeU8:
		if x > 1<<8-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "u8")
		}
		w.WriteU8(uint8(x))
	case TypeU16:
		if x > 1<<16-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "u16")
		}
		w.WriteU16(uint16(x))
	case TypeU32:
		if x > 1<<32-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "u32")
		}
		w.WriteU32(uint32(x))
	default:
		w.WriteU64(x)
	}
	return nil
}

func writeInt(w *codec.Writer, code TypeCode, x int64) error {
	switch code {
	case TypeI8:
		if x < -1<<7 || x > 1<<7-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "i8")
		}
		w.WriteI8(int8(x))
	case TypeI16:
		if x < -1<<15 || x > 1<<15-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "i16")
		}
		w.WriteI16(int16(x))
	case TypeI32:
		if x < -1<<31 || x > 1<<31-1 {
			return errors.Overflow(errors.PhaseEncode, nil, x, "i32")
		}
		w.WriteI32(int32(x))
	default:
		w.WriteI64(x)
	}
	return nil
}

// ReadValue decodes a value of type t into a new value of target, or of
// GoType(t) when target is nil.
func ReadValue(r *codec.Reader, t Type, target reflect.Type) (reflect.Value, error) {
	if target == nil {
		var err error
		if target, err = GoType(t); err != nil {
			return reflect.Value{}, err
		}
	}
	v := reflect.New(target).Elem()
	if err := readValue(r, t, v, 0); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

func readValue(r *codec.Reader, t Type, v reflect.Value, depth int) error {
	if depth > maxTypeDepth {
		return errors.InvalidData(errors.PhaseDecode, nil, "value nesting too deep")
	}

	switch t.Code {
	case TypeUnit:
		return nil
	case TypeBool:
		if v.Kind() != reflect.Bool {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		b, err := r.ReadBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case TypeU8, TypeU16, TypeU32, TypeU64:
		if !uintKind(v.Kind()) {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		x, err := readUint(r, t.Code)
		if err != nil {
			return err
		}
		if v.OverflowUint(x) {
			return errors.Overflow(errors.PhaseDecode, nil, x, v.Type().String())
		}
		v.SetUint(x)
	case TypeI8, TypeI16, TypeI32, TypeI64:
		if !intKind(v.Kind()) {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		x, err := readInt(r, t.Code)
		if err != nil {
			return err
		}
		if v.OverflowInt(x) {
			return errors.Overflow(errors.PhaseDecode, nil, x, v.Type().String())
		}
		v.SetInt(x)
	case TypeF32:
		if !floatKind(v.Kind()) {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		f, err := r.ReadF32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case TypeF64:
		if v.Kind() != reflect.Float64 {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		f, err := r.ReadF64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case TypeString:
		if v.Kind() != reflect.String {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case TypeBytes:
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		b, err := r.ReadBytes()
		if err != nil {
			return err
		}
		v.SetBytes(b)
	case TypeDuration:
		if v.Kind() != reflect.Int64 {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		d, err := codec.Duration.Read(r)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
	case TypeCallbackInterface:
		if v.Kind() != reflect.Uint64 {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		h, err := codec.Handle.Read(r)
		if err != nil {
			return err
		}
		v.SetUint(uint64(h))
	case TypeOption:
		if v.Kind() != reflect.Pointer {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		flag, err := r.ReadU8()
		if err != nil {
			return err
		}
		switch flag {
		case 0:
			v.SetZero()
		case 1:
			p := reflect.New(v.Type().Elem())
			if err := readValue(r, *t.Inner, p.Elem(), depth+1); err != nil {
				return err
			}
			v.Set(p)
		default:
			return errors.InvalidData(errors.PhaseDecode, nil, "invalid presence flag")
		}
	case TypeSequence:
		if v.Kind() != reflect.Slice {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		n, err := r.ReadLen()
		if err != nil {
			return err
		}
		s := reflect.MakeSlice(v.Type(), 0, min(n, r.Remaining()))
		for i := 0; i < n; i++ {
			e := reflect.New(v.Type().Elem()).Elem()
			r.EnterIndex(i)
			err := readValue(r, *t.Inner, e, depth+1)
			r.Leave()
			if err != nil {
				return err
			}
			s = reflect.Append(s, e)
		}
		v.Set(s)
	case TypeMap:
		if v.Kind() != reflect.Map {
			return mismatch(errors.PhaseDecode, t, v.Type())
		}
		n, err := r.ReadLen()
		if err != nil {
			return err
		}
		m := reflect.MakeMapWithSize(v.Type(), min(n, r.Remaining()))
		for i := 0; i < n; i++ {
			k := reflect.New(v.Type().Key()).Elem()
			e := reflect.New(v.Type().Elem()).Elem()
			r.EnterIndex(i)
			if err := readValue(r, *t.Key, k, depth+1); err != nil {
				r.Leave()
				return err
			}
			err := readValue(r, *t.Inner, e, depth+1)
			r.Leave()
			if err != nil {
				return err
			}
			if m.MapIndex(k).IsValid() {
				return errors.InvalidData(errors.PhaseDecode, nil, "duplicate map key")
			}
			m.SetMapIndex(k, e)
		}
		v.Set(m)
	default:
		return errors.Unsupported(errors.PhaseDecode, "generic decoding of "+t.String())
	}
	return nil
}

func readUint(r *codec.Reader, code TypeCode) (uint64, error) {
	switch code {
	case TypeU8:
		x, err := r.ReadU8()
		return uint64(x), err
	case TypeU16:
		x, err := r.ReadU16()
		return uint64(x), err
	case TypeU32:
		x, err := r.ReadU32()
		return uint64(x), err
	default:
		return r.ReadU64()
	}
}

func readInt(r *codec.Reader, code TypeCode) (int64, error) {
	switch code {
	case TypeI8:
		x, err := r.ReadI8()
		return int64(x), err
	case TypeI16:
		x, err := r.ReadI16()
		return int64(x), err
	case TypeI32:
		x, err := r.ReadI32()
		return int64(x), err
	default:
		return r.ReadI64()
	}
}

func mismatch(phase errors.Phase, t Type, goType reflect.Type) error {
	name := "nil"
	if goType != nil {
		name = goType.String()
	}
	return errors.New(phase, errors.KindShapeMismatch).
		WireType(t.String()).
		Detail("Go type %s", name).
		Build()
}

func uintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func intKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func floatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func orderedKind(k reflect.Kind) bool {
	return uintKind(k) || intKind(k) || floatKind(k) || k == reflect.String
}

func compareKeys(a, b reflect.Value) int {
	a, b = elem(a), elem(b)
	switch {
	case a.Kind() == reflect.String && b.Kind() == reflect.String:
		return cmp.Compare(a.String(), b.String())
	case intKind(a.Kind()) && intKind(b.Kind()):
		return cmp.Compare(a.Int(), b.Int())
	case uintKind(a.Kind()) && uintKind(b.Kind()):
		return cmp.Compare(a.Uint(), b.Uint())
	case floatKind(a.Kind()) && floatKind(b.Kind()):
		return cmp.Compare(a.Float(), b.Float())
	}
	return cmp.Compare(a.Kind(), b.Kind())
}
