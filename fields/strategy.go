package fields

import (
	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/vm"
)

// Request is one field access.
type Request struct {
	Owner  string // type named by the access
	Name   string
	Desc   string // descriptor named by the access; may be empty for writes
	Static bool
	Object *vm.Object // receiver of an instance access
}

// Resolution says where a requested field lives.
type Resolution struct {
	Declaring string

	// Field is the live field member. It is nil when the field was reached
	// through a Locator.
	Field   *descriptor.FieldMember
	Located bool
}

// Strategy is one step of field lookup. Find reports ok=false to pass the
// request to the next strategy.
type Strategy interface {
	Find(req Request) (res Resolution, ok bool, err error)
}

// Hierarchy describes the types a manager serves.
type Hierarchy interface {
	// Latest returns the latest descriptor of a reload-aware type, or nil
	// if typ is not reload-aware.
	Latest(typ string) *descriptor.Descriptor

	// Original returns the originally loaded descriptor of a reload-aware
	// type, or nil.
	Original(typ string) *descriptor.Descriptor

	// Super returns the supertype of any loaded type, or "" at the root.
	Super(typ string) string
}

// Locator reaches fields in original storage of types that are not
// reload-aware.
type Locator interface {
	// Locate returns the type at or above from that declares the requested
	// field. A field of the wrong kind is a *KindMismatchError.
	Locate(from string, req Request) (declaring string, ok bool, err error)
}

// LiveFieldStrategy searches the latest descriptors from the requesting
// type up to the top of its reload-aware region.
type LiveFieldStrategy struct {
	Hierarchy Hierarchy
}

func (s LiveFieldStrategy) Find(req Request) (Resolution, bool, error) {
	aware := false
	for typ := req.Owner; typ != ""; typ = s.Hierarchy.Super(typ) {
		d := s.Hierarchy.Latest(typ)
		if d == nil {
			if aware {
				break
			}
			continue
		}
		aware = true
		f := d.Field(req.Name)
		if f == nil {
			continue
		}
		if f.IsStatic() != req.Static {
			return Resolution{}, false, &KindMismatchError{Type: typ, Field: req.Name, Static: req.Static}
		}
		return Resolution{Declaring: typ, Field: f}, true, nil
	}
	return Resolution{}, false, nil
}

// LocatorStrategy hands the request to a Locator, starting at the first
// type above the reload-aware region.
type LocatorStrategy struct {
	Hierarchy Hierarchy
	Locator   Locator
}

func (s LocatorStrategy) Find(req Request) (Resolution, bool, error) {
	from := Boundary(s.Hierarchy, req.Owner)
	if from == "" {
		return Resolution{}, false, nil
	}
	decl, ok, err := s.Locator.Locate(from, req)
	if err != nil || !ok {
		return Resolution{}, false, err
	}
	return Resolution{Declaring: decl, Located: true}, true, nil
}

// Boundary returns the first type above the reload-aware region that
// contains or sits above typ, or "" if there is none.
func Boundary(h Hierarchy, typ string) string {
	aware := false
	for ; typ != ""; typ = h.Super(typ) {
		if h.Latest(typ) != nil {
			aware = true
		} else if aware {
			return typ
		}
	}
	return ""
}
