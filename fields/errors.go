package fields

import "fmt"

// KindMismatchError reports a static field accessed as an instance field or
// the reverse. It is never corrected silently.
type KindMismatchError struct {
	Type   string // declaring type
	Field  string
	Static bool // kind of the access that was attempted
}

func (e *KindMismatchError) Error() string {
	want, got := "instance", "static"
	if e.Static {
		want, got = "static", "instance"
	}
	return fmt.Sprintf("fields: %s.%s: %s field accessed as %s field", e.Type, e.Field, got, want)
}

// AccessError wraps a failure to read or write original storage.
type AccessError struct {
	Type  string
	Field string
	Err   error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("fields: original storage of %s.%s: %v", e.Type, e.Field, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }
