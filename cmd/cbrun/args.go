package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/metadata"
)

// parseArg converts command-line text into the Go form of t. Options accept
// "none"; sequences are comma separated; maps are k=v pairs.
func parseArg(text string, t metadata.Type) (reflect.Value, error) {
	goType, err := metadata.GoType(t)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(goType).Elem()

	switch t.Code {
	case metadata.TypeUnit:
	case metadata.TypeU8, metadata.TypeU16, metadata.TypeU32, metadata.TypeU64:
		n, err := strconv.ParseUint(text, 0, goType.Bits())
		if err != nil {
			return v, err
		}
		v.SetUint(n)
	case metadata.TypeI8, metadata.TypeI16, metadata.TypeI32, metadata.TypeI64:
		n, err := strconv.ParseInt(text, 0, goType.Bits())
		if err != nil {
			return v, err
		}
		v.SetInt(n)
	case metadata.TypeF32, metadata.TypeF64:
		f, err := strconv.ParseFloat(text, goType.Bits())
		if err != nil {
			return v, err
		}
		v.SetFloat(f)
	case metadata.TypeBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case metadata.TypeString:
		v.SetString(text)
	case metadata.TypeBytes:
		v.SetBytes([]byte(text))
	case metadata.TypeDuration:
		d, err := time.ParseDuration(text)
		if err != nil {
			return v, err
		}
		v.SetInt(int64(d))
	case metadata.TypeCallbackInterface:
		n, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return v, err
		}
		v.Set(reflect.ValueOf(callbackrt.Handle(n)))
	case metadata.TypeOption:
		if text == "none" {
			return v, nil
		}
		inner, err := parseArg(text, *t.Inner)
		if err != nil {
			return v, err
		}
		p := reflect.New(inner.Type())
		p.Elem().Set(inner)
		v.Set(p)
	case metadata.TypeSequence:
		v.Set(reflect.MakeSlice(goType, 0, 0))
		for _, part := range splitList(text) {
			e, err := parseArg(part, *t.Inner)
			if err != nil {
				return v, err
			}
			v.Set(reflect.Append(v, e))
		}
	case metadata.TypeMap:
		v.Set(reflect.MakeMap(goType))
		for _, part := range splitList(text) {
			k, val, ok := strings.Cut(part, "=")
			if !ok {
				return v, fmt.Errorf("map entry %q is not key=value", part)
			}
			kv, err := parseArg(k, *t.Key)
			if err != nil {
				return v, err
			}
			vv, err := parseArg(val, *t.Inner)
			if err != nil {
				return v, err
			}
			v.SetMapIndex(kv, vv)
		}
	default:
		return v, fmt.Errorf("cannot parse %s from the command line", t)
	}
	return v, nil
}

func splitList(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// encodeArgs builds the call buffer for m from one text per parameter.
func encodeArgs(m metadata.Method, texts []string) ([]byte, error) {
	if len(texts) != len(m.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m.Name, len(m.Params), len(texts))
	}
	w := codec.NewWriter(64)
	for i, p := range m.Params {
		v, err := parseArg(texts[i], p.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		metadata.WriteValue(w, p.Type, v)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// decodeValue lifts buf as t and renders it.
func decodeValue(t metadata.Type, buf []byte) (string, error) {
	r := codec.NewReader(buf)
	v, err := metadata.ReadValue(r, t, nil)
	if err != nil {
		return "", err
	}
	if err := r.Finish(); err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// describeError renders a typed error result using the declared error type.
func describeError(m metadata.Method, err error) string {
	payload, ok := errors.PayloadOf(err)
	if !ok || m.Throws == nil {
		return err.Error()
	}
	s, derr := decodeValue(*m.Throws, payload)
	if derr != nil {
		return fmt.Sprintf("%v (undecodable error payload: %v)", err, derr)
	}
	return "error result: " + s
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return "none"
		}
		return "some(" + formatValue(v.Elem()) + ")"
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return strconv.Quote(string(v.Bytes()))
		}
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = formatValue(v.Index(i))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.String:
		return strconv.Quote(v.String())
	case reflect.Struct:
		if v.NumField() == 0 {
			return "()"
		}
	}
	return fmt.Sprint(v.Interface())
}
