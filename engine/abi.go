package engine

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero/api"
)

const (
	DefaultAllocExport  = "cb_alloc"
	DefaultInvokeExport = "cb_invoke"
	DefaultFreeExport   = "cb_free"

	// outSlotSize is the (result_ptr, result_len) pair written by the guest.
	outSlotSize = 8
)

var (
	allocSig  = signature{params: []api.ValueType{api.ValueTypeI32}, results: []api.ValueType{api.ValueTypeI32}}
	invokeSig = signature{
		params:  []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}
	freeSig = signature{params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}}
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) check(name string, def api.FunctionDefinition) error {
	if !slices.Equal(def.ParamTypes(), s.params) || !slices.Equal(def.ResultTypes(), s.results) {
		return fmt.Errorf("export %q has signature %s -> %s, want %s -> %s",
			name,
			valueTypes(def.ParamTypes()), valueTypes(def.ResultTypes()),
			valueTypes(s.params), valueTypes(s.results))
	}
	return nil
}

func valueTypes(ts []api.ValueType) string {
	out := "("
	for i, t := range ts {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out + ")"
}
