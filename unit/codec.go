package unit

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic prefixes every encoded unit.
var Magic = [4]byte{'H', 'S', 'W', 'U'}

// FormatVersion is the current encoding version.
const FormatVersion byte = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("unit: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FormatError reports a unit that cannot be decoded or fails validation.
type FormatError struct {
	Unit   string // type name, if known
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "unit: "
	if e.Unit != "" {
		msg += e.Unit + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Marshal validates and serializes a unit.
func Marshal(u *Unit) ([]byte, error) {
	if err := Validate(u); err != nil {
		return nil, err
	}
	body, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("unit: marshal %s: %w", u.Name, err)
	}
	out := make([]byte, 0, len(body)+len(Magic)+1)
	out = append(out, Magic[:]...)
	out = append(out, FormatVersion)
	return append(out, body...), nil
}

// MustMarshal is Marshal for units known to be valid, such as generated
// ones. It panics on error.
func MustMarshal(u *Unit) []byte {
	data, err := Marshal(u)
	if err != nil {
		panic(err)
	}
	return data
}

// Unmarshal decodes and validates a unit.
func Unmarshal(data []byte) (*Unit, error) {
	u, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Parse decodes a unit without validating its contents.
func Parse(data []byte) (*Unit, error) {
	if len(data) < len(Magic)+1 || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, &FormatError{Reason: "bad magic"}
	}
	if v := data[len(Magic)]; v != FormatVersion {
		return nil, &FormatError{Reason: fmt.Sprintf("unsupported format version %d", v)}
	}
	var u Unit
	if err := cbor.Unmarshal(data[len(Magic)+1:], &u); err != nil {
		return nil, &FormatError{Reason: "decode", Err: err}
	}
	return &u, nil
}

// Validate checks structural well-formedness: names, descriptors, member
// uniqueness and that every code operand refers into the unit's pools.
func Validate(u *Unit) error {
	if u.Name == "" {
		return &FormatError{Reason: "missing type name"}
	}
	fail := func(format string, args ...any) error {
		return &FormatError{Unit: u.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if u.Super == "" && u.Name != RootType {
		return fail("missing supertype")
	}

	seenFields := make(map[string]bool, len(u.Fields))
	for _, f := range u.Fields {
		if f.Name == "" {
			return fail("unnamed field")
		}
		if seenFields[f.Name] {
			return fail("duplicate field %s", f.Name)
		}
		seenFields[f.Name] = true
		if !ValidFieldDesc(f.Desc) {
			return fail("field %s: invalid descriptor %q", f.Name, f.Desc)
		}
	}

	seenMethods := make(map[string]bool, len(u.Methods))
	for i := range u.Methods {
		m := &u.Methods[i]
		if m.Name == "" {
			return fail("unnamed method")
		}
		if seenMethods[m.Key()] {
			return fail("duplicate method %s", m.Key())
		}
		seenMethods[m.Key()] = true
		params, _, err := ParseMethodDesc(m.Desc)
		if err != nil {
			return &FormatError{Unit: u.Name, Reason: "method " + m.Name, Err: err}
		}
		need := len(params)
		if !m.IsStatic() {
			need++
		}
		if m.MaxLocals < need {
			return fail("method %s: max locals %d below %d parameters", m.Key(), m.MaxLocals, need)
		}
		if len(m.Code) == 0 {
			continue
		}
		instrs, err := Decode(m.Code)
		if err != nil {
			return &FormatError{Unit: u.Name, Reason: "method " + m.Key(), Err: err}
		}
		for j, in := range instrs {
			switch in.Op.Info().Operand {
			case OperandConst:
				if int(in.Arg) >= len(u.Consts) {
					return fail("method %s: instruction %d: constant #%d out of range", m.Key(), j, in.Arg)
				}
			case OperandRef:
				if int(in.Arg) >= len(u.Refs) {
					return fail("method %s: instruction %d: reference @%d out of range", m.Key(), j, in.Arg)
				}
			case OperandLocal:
				if int(in.Arg) >= m.MaxLocals {
					return fail("method %s: instruction %d: local %d out of range", m.Key(), j, in.Arg)
				}
			}
		}
	}
	return nil
}
