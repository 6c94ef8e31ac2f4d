// Package diff classifies the members of a type's latest version against its
// originally loaded version.
//
// The original member set of a loaded type cannot be restructured, so the
// outcome of a diff is an overlay: which methods are new or changed, which
// were deleted, and which reserved catchers have gained or lost a body. The
// dispatch layer consults the overlay on every call.
package diff

import (
	"slices"
	"sync"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
)

// MethodChange is one entry of the new-or-changed list.
type MethodChange struct {
	Method   *descriptor.MethodMember // member of the latest version
	Replaces *descriptor.MethodMember // original member with the same key, if any
	Kinds    ChangeSet
}

// Result is the classification of one (original, latest) state.
type Result struct {
	NewOrChanged []*MethodChange
	Deleted      []*descriptor.MethodMember

	marks map[string]ChangeSet
}

// Kinds returns the changes recorded for the latest member with the given
// key, including members that are not in NewOrChanged.
func (r *Result) Kinds(key string) ChangeSet {
	return r.marks[key]
}

// Changed returns the entry for key in the new-or-changed list, or nil.
func (r *Result) Changed(key string) *MethodChange {
	for _, mc := range r.NewOrChanged {
		if mc.Method.Key() == key {
			return mc
		}
	}
	return nil
}

// Equal reports full equality of two methods: name, descriptor, modifiers,
// generic signature and declared exceptions.
func Equal(a, b *descriptor.MethodMember) bool {
	if a == nil || b == nil {
		return a == b
	}
	return ShouldReplace(a, b) && a.Access == b.Access && slices.Equal(a.Exceptions, b.Exceptions)
}

// ShouldReplace reports whether b is a replacement for a. Modifiers and
// declared exceptions are ignored.
func ShouldReplace(a, b *descriptor.MethodMember) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && a.Desc == b.Desc && a.Signature == b.Signature
}

// Compare classifies latest against original. It does not memoize; use a
// Pair for that.
func Compare(original, latest *descriptor.Descriptor) *Result {
	r := &Result{marks: make(map[string]ChangeSet)}
	appended := make(map[string]bool)
	add := func(lm, om *descriptor.MethodMember, kinds ChangeSet) {
		if appended[lm.Key()] {
			return
		}
		appended[lm.Key()] = true
		r.NewOrChanged = append(r.NewOrChanged, &MethodChange{Method: lm, Replaces: om, Kinds: kinds})
	}

	for _, lm := range latest.Invocables() {
		om := original.Method(lm.Key())
		if om == nil {
			kinds := Of(New)
			r.marks[lm.Key()] = kinds
			add(lm, nil, kinds)
			continue
		}

		var kinds ChangeSet
		changed := !Equal(om, lm)
		if om.Catcher && !lm.Catcher {
			kinds = kinds.With(New)
			changed = true
		}
		if om.SuperDispatcher && !lm.SuperDispatcher {
			kinds = kinds.With(New)
			changed = true
		}
		if lm.Catcher && !om.Catcher {
			kinds = kinds.With(WasDeleted)
		}
		if om.Access != lm.Access {
			kinds |= accessChanges(om.Access, lm.Access)
		}

		if !kinds.Empty() {
			r.marks[lm.Key()] = kinds
		}
		if changed {
			add(lm, om, kinds)
		}
	}

	for _, om := range original.Invocables() {
		if om.Catcher {
			continue
		}
		if lm := latest.Method(om.Key()); lm != nil && !lm.Catcher {
			continue
		}
		r.Deleted = append(r.Deleted, om)
	}
	return r
}

func accessChanges(before, after unit.Access) ChangeSet {
	var s ChangeSet
	wasStatic, isStatic := before.Is(unit.AccStatic), after.Is(unit.AccStatic)
	switch {
	case !wasStatic && isStatic:
		s = s.With(MadeStatic)
	case wasStatic && !isStatic:
		s = s.With(MadeNonStatic)
	}
	if vb, va := before.Visibility(), after.Visibility(); vb != va {
		switch va {
		case unit.AccPublic:
			s = s.With(MadePublic)
		case unit.AccPrivate:
			s = s.With(MadePrivate)
		case unit.AccProtected:
			s = s.With(MadeProtected)
		default:
			s = s.With(MadePackage)
		}
	}
	return s
}

// Pair binds the original descriptor of a type to its latest one and
// memoizes their diff. The original never changes.
type Pair struct {
	original *descriptor.Descriptor

	mu     sync.Mutex
	latest *descriptor.Descriptor
	result *Result
}

// NewPair returns a pair whose latest version is the original.
func NewPair(original *descriptor.Descriptor) *Pair {
	return &Pair{original: original, latest: original}
}

// Original returns the originally loaded descriptor.
func (p *Pair) Original() *descriptor.Descriptor { return p.original }

// Latest returns the latest descriptor.
func (p *Pair) Latest() *descriptor.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// SetLatest replaces the latest descriptor and drops the memoized result.
func (p *Pair) SetLatest(d *descriptor.Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = d
	p.result = nil
}

// Compute returns the diff of the current state, computing it at most once
// per latest descriptor.
func (p *Pair) Compute() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		p.result = Compare(p.original, p.latest)
	}
	return p.result
}

// MustUseExecutor reports whether calls to the method with the given id
// must go through the executor. Only an original catcher that is still
// unimplemented, or whose replacement is itself a catcher, bypasses it.
func (p *Pair) MustUseExecutor(id int) bool {
	om := p.original.MethodByID(id)
	if om == nil || !om.Catcher {
		return true
	}
	r := p.Compute()
	for _, mc := range r.NewOrChanged {
		if ShouldReplace(om, mc.Method) {
			return !mc.Method.Catcher
		}
	}
	return false
}

// HasBeenDeleted reports whether the original method with the given id was
// dropped by the latest version.
func (p *Pair) HasBeenDeleted(id int) bool {
	om := p.original.MethodByID(id)
	if om == nil {
		return false
	}
	for _, dm := range p.Compute().Deleted {
		if Equal(om, dm) {
			return true
		}
	}
	return false
}
