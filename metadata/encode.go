package metadata

import (
	"fmt"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
)

// Item codes lead every metadata buffer.
const (
	ItemCallbackInterface uint8 = 0x07
	ItemCallbackMethod    uint8 = 0x08
	ItemTypeReference     uint8 = 0x80
)

const maxTypeDepth = 32

// Encode serializes the interface item.
func Encode(iface *Interface) []byte {
	w := codec.NewWriter(64)
	w.WriteU8(ItemCallbackInterface)
	w.WriteString(iface.modulePath)
	w.WriteString(iface.name)
	w.WriteU32(uint32(len(iface.methods)))
	for _, m := range iface.methods {
		w.WriteBytes(encodeMethod(m))
	}
	return w.Bytes()
}

// MethodItems returns one standalone item per method, carrying the owning
// interface and the method's wire index.
func MethodItems(iface *Interface) [][]byte {
	items := make([][]byte, len(iface.methods))
	for i, m := range iface.methods {
		w := codec.NewWriter(64)
		w.WriteU8(ItemCallbackMethod)
		w.WriteString(iface.modulePath)
		w.WriteString(iface.name)
		w.WriteU32(uint32(callbackrt.MethodIndexFor(i)))
		w.WriteBytes(encodeMethod(m))
		items[i] = w.Bytes()
	}
	return items
}

// TypeIDMeta is the type-reference buffer used where another declaration
// takes the callback interface as a parameter or field.
func TypeIDMeta(modulePath, name string) []byte {
	w := codec.NewWriter(8 + len(modulePath) + len(name))
	w.WriteU8(ItemTypeReference)
	w.WriteU8(uint8(TypeCallbackInterface))
	w.WriteString(modulePath)
	w.WriteString(name)
	return w.Bytes()
}

func encodeMethod(m Method) []byte {
	w := codec.NewWriter(32)
	w.WriteString(m.Name)
	w.WriteU8(uint8(m.Receiver))
	w.WriteU8(uint8(len(m.Params)))
	for _, p := range m.Params {
		w.WriteString(p.Name)
		writeType(w, p.Type)
	}
	writeType(w, m.Return)
	w.WriteBool(m.Throws != nil)
	if m.Throws != nil {
		writeType(w, *m.Throws)
	}
	return w.Bytes()
}

func writeType(w *codec.Writer, t Type) {
	w.WriteU8(uint8(t.Code))
	switch t.Code {
	case TypeOption, TypeSequence:
		writeType(w, *t.Inner)
	case TypeMap:
		writeType(w, *t.Key)
		writeType(w, *t.Inner)
	case TypeRecord, TypeEnum, TypeCallbackInterface:
		w.WriteString(t.Name)
	}
}

// Decode parses an interface item. Fields appended by newer writers, either
// after the method list or at the end of a method chunk, are skipped.
func Decode(buf []byte) (*Interface, error) {
	r := codec.NewReader(buf)

	code, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if code != ItemCallbackInterface {
		return nil, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("item code 0x%02x is not a callback interface", code))
	}

	r.Enter("module_path")
	modulePath, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	r.Leave()

	r.Enter("name")
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	r.Leave()

	r.Enter("methods")
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// every chunk carries at least its 4-byte length prefix
	if uint64(count)*4 > uint64(r.Remaining()) {
		return nil, errors.ShortBuffer([]string{"methods"}, int(count)*4, r.Remaining())
	}

	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		r.EnterIndex(i)
		chunk, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		m, err := decodeMethod(chunk)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, fmt.Sprintf("method %d", i))
		}
		methods = append(methods, m)
		r.Leave()
	}
	r.Leave()

	return NewInterface(modulePath, name, methods...)
}

func decodeMethod(chunk []byte) (Method, error) {
	r := codec.NewReader(chunk)
	var m Method

	name, err := r.ReadString()
	if err != nil {
		return m, err
	}
	m.Name = name

	recv, err := r.ReadU8()
	if err != nil {
		return m, err
	}
	m.Receiver = Receiver(recv)

	n, err := r.ReadU8()
	if err != nil {
		return m, err
	}
	m.Params = make([]Param, n)
	for i := range m.Params {
		if m.Params[i].Name, err = r.ReadString(); err != nil {
			return m, err
		}
		if m.Params[i].Type, err = readType(r, 0); err != nil {
			return m, err
		}
	}

	if m.Return, err = readType(r, 0); err != nil {
		return m, err
	}

	throws, err := r.ReadBool()
	if err != nil {
		return m, err
	}
	if throws {
		t, err := readType(r, 0)
		if err != nil {
			return m, err
		}
		m.Throws = &t
	}

	return m, nil
}

func readType(r *codec.Reader, depth int) (Type, error) {
	if depth > maxTypeDepth {
		return Type{}, errors.InvalidData(errors.PhaseDecode, nil, "type nesting too deep")
	}
	b, err := r.ReadU8()
	if err != nil {
		return Type{}, err
	}
	t := Type{Code: TypeCode(b)}
	if !t.Code.valid() {
		return Type{}, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("unknown type code %d", b))
	}

	switch t.Code {
	case TypeOption, TypeSequence:
		inner, err := readType(r, depth+1)
		if err != nil {
			return Type{}, err
		}
		t.Inner = &inner
	case TypeMap:
		key, err := readType(r, depth+1)
		if err != nil {
			return Type{}, err
		}
		val, err := readType(r, depth+1)
		if err != nil {
			return Type{}, err
		}
		t.Key, t.Inner = &key, &val
	case TypeRecord, TypeEnum, TypeCallbackInterface:
		if t.Name, err = r.ReadString(); err != nil {
			return Type{}, err
		}
	}
	return t, nil
}
