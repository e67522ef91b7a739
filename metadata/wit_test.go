package metadata

import (
	"strings"
	"testing"

	"github.com/wippyai/callback-runtime/errors"
)

func TestParseWIT(t *testing.T) {
	witText := `
		package test:calc@1.0.0;

		interface calc {
			add: func(a: s32, b: s32) -> s32;
			divide: func(a: s32, b: s32) -> result<s32, string>;
			names: func(filter: option<string>) -> list<string>;
			blob: func(data: list<u8>);
		}
	`

	iface, err := ParseWIT("test::calc", "Calc", witText)
	if err != nil {
		t.Fatalf("ParseWIT error: %v", err)
	}
	if iface.NumMethods() != 4 {
		t.Fatalf("expected 4 methods, got %d", iface.NumMethods())
	}

	add, _ := iface.Method(1)
	if add.Name != "add" || len(add.Params) != 2 || add.Params[1].Name != "b" {
		t.Errorf("add = %+v", add)
	}
	if add.Return.Code != TypeI32 || add.Throws != nil {
		t.Errorf("add return = %v", add.Return)
	}

	div, _ := iface.Method(2)
	if div.Return.Code != TypeI32 || div.Throws == nil || div.Throws.Code != TypeString {
		t.Errorf("divide = %v throws %v", div.Return, div.Throws)
	}

	names, _ := iface.Method(3)
	if !names.Params[0].Type.Equal(OptionOf(Prim(TypeString))) {
		t.Errorf("names param = %v", names.Params[0].Type)
	}
	if !names.Return.Equal(SequenceOf(Prim(TypeString))) {
		t.Errorf("names return = %v", names.Return)
	}

	blob, _ := iface.Method(4)
	if blob.Params[0].Type.Code != TypeBytes || blob.Return.Code != TypeUnit {
		t.Errorf("blob = %+v", blob)
	}

	for _, m := range iface.Methods() {
		if m.Receiver != ReceiverShared {
			t.Errorf("%s has no receiver", m.Name)
		}
	}
}

func TestParseWIT_Errors(t *testing.T) {
	tests := map[string]string{
		"no functions":   `interface empty {}`,
		"unnamed param":  `f: func(s32);`,
		"bad result":     `f: func() -> result<s32>;`,
		"duplicate name": "f: func();\nf: func();",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseWIT("m", "I", text); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseWIT_TypeErrorsKeepCause(t *testing.T) {
	tests := map[string]string{
		"param type":  `f: func(a: !!);`,
		"result type": `f: func() -> !!;`,
		"ok type":     `f: func() -> result<!!, string>;`,
		"error type":  `f: func() -> result<s32, !!>;`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWIT("m", "I", text)
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("expected *errors.Error, got %T: %v", err, err)
			}
			if e.Phase != errors.PhaseParse || e.Kind != errors.KindInvalidData {
				t.Errorf("phase/kind = %v/%v", e.Phase, e.Kind)
			}
			if e.Cause == nil {
				t.Error("cause dropped")
			}
			if !strings.HasPrefix(e.Detail, "parse ") {
				t.Errorf("detail = %q", e.Detail)
			}
		})
	}
}

func TestSplitParams(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a: s32, b: s32", []string{"a: s32", "b: s32"}},
		{"", []string{}},
		{" a : s32 , b : s32 ", []string{"a : s32", "b : s32"}},
		{"s32, string", []string{"s32", "string"}},
		{"m: option<list<u8>>, n: u32", []string{"m: option<list<u8>>", "n: u32"}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result := splitParams(tc.input)
			if len(result) != len(tc.expected) {
				t.Errorf("expected %d parts, got %d: %v", len(tc.expected), len(result), result)
				return
			}
			for i, exp := range tc.expected {
				if result[i] != exp {
					t.Errorf("part %d: expected %q, got %q", i, exp, result[i])
				}
			}
		})
	}
}

func TestTypeString(t *testing.T) {
	tests := map[string]Type{
		"u32":                   Prim(TypeU32),
		"option<list<string>>":  OptionOf(SequenceOf(Prim(TypeString))),
		"map<string, duration>": MapOf(Prim(TypeString), Prim(TypeDuration)),
		"Point":                 Named(TypeRecord, "Point"),
		"unit":                  Unit,
	}
	for want, typ := range tests {
		if got := typ.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
