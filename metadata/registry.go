package metadata

import (
	"bytes"
	"cmp"
	"slices"
	"sync"

	"github.com/wippyai/callback-runtime/errors"
)

// Registry holds the interfaces known to this process, keyed by qualified name.
type Registry struct {
	items map[string]*Interface
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Interface)}
}

// Add registers iface. Adding the same shape twice is a no-op; adding a
// different shape under a taken name is a declaration error. Shapes are
// compared by their full encoding; the checksum is only a display aid.
func (r *Registry) Add(iface *Interface) error {
	key := iface.QualifiedName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.items[key]; ok {
		if bytes.Equal(Encode(prev), Encode(iface)) {
			return nil
		}
		return errors.Declaration([]string{key}, "already registered with a different shape")
	}
	r.items[key] = iface
	return nil
}

func (r *Registry) Get(modulePath, name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iface, ok := r.items[modulePath+"::"+name]
	return iface, ok
}

// List returns the registered interfaces sorted by qualified name.
func (r *Registry) List() []*Interface {
	r.mu.RLock()
	out := make([]*Interface, 0, len(r.items))
	for _, iface := range r.items {
		out = append(out, iface)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Interface) int {
		return cmp.Compare(a.QualifiedName(), b.QualifiedName())
	})
	return out
}

// Verify decodes a metadata buffer produced elsewhere and checks it against
// the registered declaration of the same name.
func (r *Registry) Verify(buf []byte) (*Interface, error) {
	remote, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	local, ok := r.Get(remote.modulePath, remote.name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegistry, "callback interface", remote.QualifiedName())
	}
	if !bytes.Equal(Encode(local), Encode(remote)) {
		return nil, errors.New(errors.PhaseRegistry, errors.KindShapeMismatch).
			Path(remote.QualifiedName()).
			Detail("checksum %04x, registered %04x", Checksum(remote), Checksum(local)).
			Build()
	}
	return local, nil
}
