package vm

import (
	"errors"
	"fmt"
)

// ErrNullPointer is returned when nil is dereferenced.
var ErrNullPointer = errors.New("vm: null pointer")

// NoSuchMethodError reports a failed method lookup.
type NoSuchMethodError struct {
	Owner string
	Key   string
}

func (e *NoSuchMethodError) Error() string {
	return fmt.Sprintf("vm: no such method %s.%s", e.Owner, e.Key)
}

// NoSuchFieldError reports a failed field lookup.
type NoSuchFieldError struct {
	Owner string
	Name  string
}

func (e *NoSuchFieldError) Error() string {
	return fmt.Sprintf("vm: no such field %s.%s", e.Owner, e.Name)
}

// LinkageError reports an illegal definition, binding or access.
type LinkageError struct {
	Type   string
	Reason string
	Err    error
}

func (e *LinkageError) Error() string {
	msg := fmt.Sprintf("vm: linkage error in %s: %s", e.Type, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LinkageError) Unwrap() error { return e.Err }

// ThrownError carries a value raised by THROW.
type ThrownError struct {
	Value Value
}

func (e *ThrownError) Error() string {
	return "vm: thrown " + Stringify(e.Value)
}

// OperandError reports an instruction applied to values of the wrong kind.
type OperandError struct {
	Op     string
	Values []Value
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("vm: %s: bad operands %#v", e.Op, e.Values)
}
