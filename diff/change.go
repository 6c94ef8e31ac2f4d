package diff

import "strings"

// Change is one kind of method-level change.
type Change uint8

const (
	New Change = iota
	WasDeleted
	MadeStatic
	MadeNonStatic
	MadePublic
	MadePrivate
	MadeProtected
	MadePackage
	numChanges
)

var changeNames = [numChanges]string{
	New:           "new",
	WasDeleted:    "was-deleted",
	MadeStatic:    "made-static",
	MadeNonStatic: "made-non-static",
	MadePublic:    "made-public",
	MadePrivate:   "made-private",
	MadeProtected: "made-protected",
	MadePackage:   "made-package",
}

func (c Change) String() string {
	if c < numChanges {
		return changeNames[c]
	}
	return "unknown"
}

// ChangeSet is a set of Changes.
type ChangeSet uint16

// Of builds a set from the given changes.
func Of(changes ...Change) ChangeSet {
	var s ChangeSet
	for _, c := range changes {
		s = s.With(c)
	}
	return s
}

// With returns s plus c.
func (s ChangeSet) With(c Change) ChangeSet { return s | 1<<c }

// Has reports whether c is in s.
func (s ChangeSet) Has(c Change) bool { return s&(1<<c) != 0 }

// Empty reports whether s has no members.
func (s ChangeSet) Empty() bool { return s == 0 }

// Changes lists the members of s in declaration order.
func (s ChangeSet) Changes() []Change {
	var out []Change
	for c := Change(0); c < numChanges; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s ChangeSet) String() string {
	var parts []string
	for _, c := range s.Changes() {
		parts = append(parts, c.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
