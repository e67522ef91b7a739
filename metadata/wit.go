package metadata

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/callback-runtime/errors"
)

var (
	funcPattern  = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)
	identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

// ParseWIT builds an interface from WIT-style function declarations:
//
//	add: func(a: s32, b: s32) -> s32;
//	divide: func(a: s32, b: s32) -> result<s32, string>;
//	names: func() -> list<string>;
//
// A result<T, E> return declares T as the return type and E as the error
// type. Identifiers that are not WIT primitives are taken as record
// references.
func ParseWIT(modulePath, name, witText string) (*Interface, error) {
	matches := funcPattern.FindAllStringSubmatch(witText, -1)
	if len(matches) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no functions found in WIT text")
	}

	methods := make([]Method, 0, len(matches))
	for _, match := range matches {
		m := Method{Name: match[1], Receiver: ReceiverShared}

		if paramsStr := strings.TrimSpace(match[2]); paramsStr != "" {
			for _, part := range splitParams(paramsStr) {
				idx := strings.Index(part, ":")
				if idx == -1 {
					return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
						Path(name, m.Name).
						Detail("parameter %q has no name", part).
						Build()
				}
				t, err := parseWitType(part[idx+1:])
				if err != nil {
					return nil, errors.ParseFailed("param type "+part, err)
				}
				m.Params = append(m.Params, Param{Name: strings.TrimSpace(part[:idx]), Type: t})
			}
		}

		if resultStr := strings.TrimSpace(match[3]); resultStr != "" && resultStr != "()" {
			if inner, ok := generic(resultStr, "result"); ok {
				parts := splitParams(inner)
				if len(parts) != 2 {
					return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
						Path(name, m.Name).
						Detail("result must name both ok and error types: %s", resultStr).
						Build()
				}
				ok, err := parseResultPart(parts[0])
				if err != nil {
					return nil, errors.ParseFailed("result type "+resultStr, err)
				}
				e, err := parseWitType(parts[1])
				if err != nil {
					return nil, errors.ParseFailed("error type "+resultStr, err)
				}
				m.Return, m.Throws = ok, &e
			} else {
				t, err := parseWitType(resultStr)
				if err != nil {
					return nil, errors.ParseFailed("result type "+resultStr, err)
				}
				m.Return = t
			}
		}

		methods = append(methods, m)
	}

	return NewInterface(modulePath, name, methods...)
}

func parseResultPart(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "_" {
		return Unit, nil
	}
	return parseWitType(s)
}

// splitParams splits a comma list, keeping nested generics together.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

func generic(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"<") || !strings.HasSuffix(s, ">") {
		return "", false
	}
	return strings.TrimSpace(s[len(name)+1 : len(s)-1]), true
}

func parseWitType(s string) (Type, error) {
	s = strings.TrimSpace(s)

	if inner, ok := generic(s, "list"); ok {
		if inner == "u8" {
			return Prim(TypeBytes), nil
		}
		elem, err := parseWitType(inner)
		if err != nil {
			return Type{}, err
		}
		return SequenceOf(elem), nil
	}
	if inner, ok := generic(s, "option"); ok {
		elem, err := parseWitType(inner)
		if err != nil {
			return Type{}, err
		}
		return OptionOf(elem), nil
	}

	t, err := wit.ParseType(s)
	if err != nil {
		if identPattern.MatchString(s) {
			return Named(TypeRecord, s), nil
		}
		return Type{}, err
	}
	return FromWIT(t)
}

// FromWIT maps a WIT type onto the callback wire types.
func FromWIT(t wit.Type) (Type, error) {
	switch v := t.(type) {
	case wit.Bool:
		return Prim(TypeBool), nil
	case wit.U8:
		return Prim(TypeU8), nil
	case wit.S8:
		return Prim(TypeI8), nil
	case wit.U16:
		return Prim(TypeU16), nil
	case wit.S16:
		return Prim(TypeI16), nil
	case wit.U32:
		return Prim(TypeU32), nil
	case wit.S32:
		return Prim(TypeI32), nil
	case wit.U64:
		return Prim(TypeU64), nil
	case wit.S64:
		return Prim(TypeI64), nil
	case wit.F32:
		return Prim(TypeF32), nil
	case wit.F64:
		return Prim(TypeF64), nil
	case wit.String:
		return Prim(TypeString), nil
	case *wit.TypeDef:
		return fromTypeDef(v)
	default:
		return Type{}, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Detail("unsupported WIT type: %T", t).
			Build()
	}
}

func fromTypeDef(td *wit.TypeDef) (Type, error) {
	switch k := td.Kind.(type) {
	case *wit.List:
		if _, ok := k.Type.(wit.U8); ok {
			return Prim(TypeBytes), nil
		}
		elem, err := FromWIT(k.Type)
		if err != nil {
			return Type{}, err
		}
		return SequenceOf(elem), nil
	case *wit.Option:
		elem, err := FromWIT(k.Type)
		if err != nil {
			return Type{}, err
		}
		return OptionOf(elem), nil
	case *wit.Record:
		if td.Name != nil {
			return Named(TypeRecord, *td.Name), nil
		}
	case *wit.Enum:
		if td.Name != nil {
			return Named(TypeEnum, *td.Name), nil
		}
	}
	return Type{}, errors.Unsupported(errors.PhaseParse, "anonymous or unsupported WIT type definition")
}
