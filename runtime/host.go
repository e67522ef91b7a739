package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/foreign"
	"github.com/wippyai/callback-runtime/metadata"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// BoundObject is a Go value exposed as a foreign object.
type BoundObject struct {
	iface   *metadata.Interface
	methods []boundMethod
}

type boundMethod struct {
	fn      reflect.Value
	decl    metadata.Method
	params  []reflect.Type
	withCtx bool
	result  bool
	withErr bool
}

// Bind matches every method of iface to an exported method of impl.
func Bind(iface *metadata.Interface, impl any) (*BoundObject, error) {
	if impl == nil {
		return nil, errors.InvalidInput(errors.PhaseDefine, "nil implementation")
	}

	rv := reflect.ValueOf(impl)
	rt := rv.Type()

	byName := make(map[string]int, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		if m := rt.Method(i); m.IsExported() {
			byName[normalizeName(m.Name)] = i
		}
	}

	obj := &BoundObject{iface: iface}
	for _, decl := range iface.Methods() {
		i, ok := byName[normalizeName(decl.Name)]
		if !ok {
			return nil, errors.Declaration([]string{iface.Name(), decl.Name},
				fmt.Sprintf("%s has no method %s", rt, toPascalCase(decl.Name)))
		}
		bm, err := bindMethod(rv.Method(i), decl)
		if err != nil {
			return nil, errors.Declaration([]string{iface.Name(), decl.Name}, err.Error())
		}
		obj.methods = append(obj.methods, bm)
	}
	return obj, nil
}

func bindMethod(fn reflect.Value, decl metadata.Method) (boundMethod, error) {
	ft := fn.Type()
	bm := boundMethod{fn: fn, decl: decl}

	in := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		bm.withCtx = true
		in = 1
	}
	if ft.NumIn()-in != len(decl.Params) || ft.IsVariadic() {
		return bm, fmt.Errorf("takes %d parameters, declared %d", ft.NumIn()-in, len(decl.Params))
	}
	for i, p := range decl.Params {
		pt := ft.In(in + i)
		if err := checkShape(p.Type, pt); err != nil {
			return bm, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		bm.params = append(bm.params, pt)
	}

	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errorType {
		bm.withErr = true
		outs--
	}
	switch {
	case outs > 1:
		return bm, fmt.Errorf("returns %d values", ft.NumOut())
	case outs == 1:
		if err := checkShape(decl.Return, ft.Out(0)); err != nil {
			return bm, fmt.Errorf("result: %w", err)
		}
		bm.result = true
	case decl.Return.Code != metadata.TypeUnit:
		return bm, fmt.Errorf("returns nothing, declared %s", decl.Return)
	}
	return bm, nil
}

// checkShape encodes a zero value of goType as t, catching kind mismatches at
// bind time instead of on the first call.
func checkShape(t metadata.Type, goType reflect.Type) error {
	w := codec.NewWriter(16)
	metadata.WriteValue(w, t, reflect.New(goType).Elem())
	var e *errors.Error
	if err := w.Err(); errors.As(err, &e) && (e.Kind == errors.KindShapeMismatch || e.Kind == errors.KindUnsupported) {
		return err
	}
	return nil
}

// Interface returns the declaration the object was bound to.
func (b *BoundObject) Interface() *metadata.Interface {
	return b.iface
}

func (b *BoundObject) CallMethod(ctx context.Context, method callbackrt.MethodIndex, args []byte) ([]byte, error) {
	i := method.Declared()
	if i < 0 || i >= len(b.methods) {
		return nil, fmt.Errorf("%w: index %d of %d", foreign.ErrNoSuchMethod, method, len(b.methods))
	}
	bm := &b.methods[i]

	in := make([]reflect.Value, 0, len(bm.params)+1)
	if bm.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	r := codec.NewReader(args)
	for j, p := range bm.decl.Params {
		r.Enter(p.Name)
		v, err := metadata.ReadValue(r, p.Type, bm.params[j])
		r.Leave()
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}

	out := bm.fn.Call(in)

	if bm.withErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, b.mapError(bm, errv.Interface().(error))
		}
	}
	if !bm.result {
		return nil, nil
	}

	w := codec.NewWriter(32)
	metadata.WriteValue(w, bm.decl.Return, out[0])
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// mapError turns a Go error into a typed error result when the method
// declares a string error type; other errors are unexpected failures.
func (b *BoundObject) mapError(bm *boundMethod, err error) error {
	var ce *foreign.CallError
	if stderrors.As(err, &ce) {
		return ce
	}
	if bm.decl.Throws != nil && bm.decl.Throws.Code == metadata.TypeString {
		return foreign.FailWith(codec.String, err.Error())
	}
	return err
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// toPascalCase converts kebab-case or snake_case to PascalCase.
func toPascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ foreign.Object = (*BoundObject)(nil)
