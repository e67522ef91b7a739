package metadata

import (
	"fmt"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/errors"
)

const maxParams = 255

// Receiver is how a method takes the object it is called on.
type Receiver uint8

const (
	// ReceiverNone marks a static function. Callback interfaces cannot have them.
	ReceiverNone Receiver = iota
	ReceiverShared
)

// Param is one named method parameter.
type Param struct {
	Name string
	Type Type
}

// Method is one declared callback method.
type Method struct {
	Throws   *Type
	Name     string
	Params   []Param
	Return   Type
	Receiver Receiver
}

// Interface is a validated callback interface declaration.
type Interface struct {
	modulePath string
	name       string
	methods    []Method
	byName     map[string]int
}

// NewInterface validates a declaration. Method order defines the wire
// indices: the first method is index 1.
func NewInterface(modulePath, name string, methods ...Method) (*Interface, error) {
	if modulePath == "" {
		return nil, errors.Declaration([]string{name}, "empty module path")
	}
	if name == "" {
		return nil, errors.Declaration([]string{modulePath}, "empty interface name")
	}

	iface := &Interface{
		modulePath: modulePath,
		name:       name,
		methods:    make([]Method, len(methods)),
		byName:     make(map[string]int, len(methods)),
	}

	for i, m := range methods {
		path := []string{name, m.Name}
		if m.Name == "" {
			return nil, errors.Declaration([]string{name, fmt.Sprintf("[%d]", i)}, "empty method name")
		}
		if _, dup := iface.byName[m.Name]; dup {
			return nil, errors.Declaration(path, "duplicate method name")
		}
		if m.Receiver == ReceiverNone {
			return nil, errors.Declaration(path, "callback interface methods must take a receiver")
		}
		if len(m.Params) > maxParams {
			return nil, errors.Declaration(path, fmt.Sprintf("%d parameters, at most %d allowed", len(m.Params), maxParams))
		}
		seen := make(map[string]bool, len(m.Params))
		for _, p := range m.Params {
			if p.Name == "" {
				return nil, errors.Declaration(path, "unnamed parameter")
			}
			if seen[p.Name] {
				return nil, errors.Declaration(path, "duplicate parameter "+p.Name)
			}
			seen[p.Name] = true
			if err := p.Type.validate(); err != nil {
				return nil, errors.Declaration(append(path, p.Name), err.Error())
			}
		}
		if err := m.Return.validate(); err != nil {
			return nil, errors.Declaration(append(path, "return"), err.Error())
		}
		if m.Throws != nil {
			if err := m.Throws.validate(); err != nil {
				return nil, errors.Declaration(append(path, "throws"), err.Error())
			}
		}

		m.Params = append([]Param(nil), m.Params...)
		iface.methods[i] = m
		iface.byName[m.Name] = i
	}

	return iface, nil
}

func (i *Interface) ModulePath() string { return i.modulePath }
func (i *Interface) Name() string       { return i.name }
func (i *Interface) NumMethods() int    { return len(i.methods) }

// Methods returns a copy of the declared methods in declaration order.
func (i *Interface) Methods() []Method {
	return append([]Method(nil), i.methods...)
}

// MethodIndex returns the wire index of the named method.
func (i *Interface) MethodIndex(name string) (callbackrt.MethodIndex, bool) {
	pos, ok := i.byName[name]
	if !ok {
		return 0, false
	}
	return callbackrt.MethodIndexFor(pos), true
}

// Method returns the method dispatched by a wire index. Index 0 is the free
// call and never names a declared method.
func (i *Interface) Method(idx callbackrt.MethodIndex) (Method, bool) {
	pos := idx.Declared()
	if pos < 0 || pos >= len(i.methods) {
		return Method{}, false
	}
	return i.methods[pos], true
}

// QualifiedName returns "module::Name".
func (i *Interface) QualifiedName() string {
	return i.modulePath + "::" + i.name
}
