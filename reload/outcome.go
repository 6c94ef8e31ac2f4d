package reload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/hotswap/diff"
)

// Outcome is the result class of an Apply.
type Outcome uint8

const (
	Applied Outcome = iota
	UnknownRegistry
	UnknownType
	Rejected
	InternalError
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case UnknownRegistry:
		return "unknown registry"
	case UnknownType:
		return "unknown type"
	case Rejected:
		return "rejected"
	case InternalError:
		return "internal error"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

var (
	ErrUnknownRegistry = errors.New("reload: unknown registry")
	ErrUnknownType     = errors.New("reload: type is not reload-aware")
	ErrClosed          = errors.New("reload: runtime closed")
)

// ChangeRecord describes how a candidate version differs from the original.
type ChangeRecord struct {
	Delta   *diff.TypeDelta
	Methods *diff.Result

	// Reasons lists what blocked the candidate. It is empty for an applied
	// version.
	Reasons []string
}

// Blocked reports whether the record carries a rejection.
func (r *ChangeRecord) Blocked() bool { return r != nil && len(r.Reasons) > 0 }

func (r *ChangeRecord) String() string {
	if r == nil {
		return ""
	}
	var parts []string
	parts = append(parts, r.Reasons...)
	if r.Delta != nil && !r.Delta.Aspects.Empty() {
		parts = append(parts, r.Delta.String())
	}
	if r.Methods != nil {
		parts = append(parts, fmt.Sprintf("%d new or changed, %d deleted", len(r.Methods.NewOrChanged), len(r.Methods.Deleted)))
	}
	return strings.Join(parts, "; ")
}

// RejectedError reports a candidate version the runtime refused.
type RejectedError struct {
	Type   string
	Record *ChangeRecord
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("reload: %s rejected: %s", e.Type, strings.Join(e.Record.Reasons, "; "))
}

// InternalErr wraps an unexpected failure during a reload step.
type InternalErr struct {
	Type string
	Step string
	Err  error
}

func (e *InternalErr) Error() string {
	return fmt.Sprintf("reload: %s: %s: %v", e.Type, e.Step, e.Err)
}

func (e *InternalErr) Unwrap() error { return e.Err }
