package descriptor

import (
	"errors"
	"fmt"

	"github.com/chazu/hotswap/unit"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hotswap.descriptor")

// ExtractionError reports a unit that could not be turned into a
// descriptor. It is fatal to the reload in progress only.
type ExtractionError struct {
	Type string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("descriptor: extract: %v", e.Err)
	}
	return fmt.Sprintf("descriptor: extract %s: %v", e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Lookup returns the original descriptor of a reload-aware type, or nil if
// the named type is not reload-aware.
type Lookup func(name string) *Descriptor

// Option configures extraction.
type Option func(*options)

type options struct {
	must     bool
	ordinals *Ordinals
	supers   Lookup
}

// MustSucceed makes every defect fatal. Without it, members with malformed
// descriptors are skipped with a warning.
func MustSucceed() Option {
	return func(o *options) { o.must = true }
}

// WithOrdinals assigns member ids from o, which must be the allocator of
// the type being extracted.
func WithOrdinals(o *Ordinals) Option {
	return func(opts *options) { opts.ordinals = o }
}

// WithSupertypes supplies descriptors of reload-aware supertypes, used to
// compute catchers and super-dispatchers.
func WithSupertypes(l Lookup) Option {
	return func(o *options) { o.supers = l }
}

// Extract decodes a binary unit and builds its descriptor.
func Extract(data []byte, opts ...Option) (*Descriptor, error) {
	u, err := unit.Parse(data)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	return FromUnit(u, opts...)
}

// FromUnit builds the descriptor of a decoded unit.
func FromUnit(u *unit.Unit, opts ...Option) (*Descriptor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.ordinals == nil {
		o.ordinals = NewOrdinals()
	}
	if u.Name == "" {
		return nil, &ExtractionError{Err: errors.New("missing type name")}
	}
	if o.must {
		if err := unit.Validate(u); err != nil {
			return nil, &ExtractionError{Type: u.Name, Err: err}
		}
	}

	d := newDescriptor(u)
	skip := func(format string, args ...any) {
		log.Warningf("%s: skipping "+format, append([]any{u.Name}, args...)...)
	}

	for i := range u.Fields {
		f := &u.Fields[i]
		if !unit.ValidFieldDesc(f.Desc) {
			skip("field %s with descriptor %q", f.Name, f.Desc)
			continue
		}
		if d.byField[f.Name] != nil {
			skip("duplicate field %s", f.Name)
			continue
		}
		d.addField(&FieldMember{
			Member: Member{
				ID:        o.ordinals.Field(f.Name, f.Desc),
				Name:      f.Name,
				Desc:      f.Desc,
				Signature: f.Signature,
				Access:    f.Access,
			},
			Owner: u.Name,
		})
	}

	for i := range u.Methods {
		m := &u.Methods[i]
		if _, _, err := unit.ParseMethodDesc(m.Desc); err != nil {
			skip("method %s: %v", m.Name, err)
			continue
		}
		if d.byKey[m.Key()] != nil {
			skip("duplicate method %s", m.Key())
			continue
		}
		d.addMethod(&MethodMember{
			Member: Member{
				ID:        o.ordinals.Method(m.Name, m.Desc),
				Name:      m.Name,
				Desc:      m.Desc,
				Signature: m.Signature,
				Access:    m.Access,
			},
			Exceptions:      cloneStrings(m.Exceptions),
			Annotations:     m.Annotations,
			SuperDispatcher: isSuperDispatcherName(m.Name),
		})
	}

	if !u.IsInterface() {
		addInherited(d, o)
	}
	return d, nil
}

func isSuperDispatcherName(name string) bool {
	return len(name) > len(SuperDispatcherSuffix) && name[len(name)-len(SuperDispatcherSuffix):] == SuperDispatcherSuffix
}

// addInherited adds catchers for overridable inherited methods the type
// does not declare, and a super-dispatcher for every visible inherited
// method.
func addInherited(d *Descriptor, o options) {
	inherited := Inherited(d.Super, o.supers)

	for _, im := range inherited {
		if im.IsFinal() || d.byKey[im.Key()] != nil {
			continue
		}
		d.addMethod(&MethodMember{
			Member: Member{
				ID:        o.ordinals.Method(im.Name, im.Desc),
				Name:      im.Name,
				Desc:      im.Desc,
				Signature: im.Signature,
				Access:    im.Access,
			},
			Exceptions: cloneStrings(im.Exceptions),
			Catcher:    true,
		})
	}

	for _, im := range inherited {
		name := im.Name + SuperDispatcherSuffix
		desc := unit.PrependParam(im.Desc, unit.ObjectDesc(d.Name))
		if existing := d.byKey[name+desc]; existing != nil {
			continue
		}
		d.addMethod(&MethodMember{
			Member: Member{
				ID:     o.ordinals.Method(name, desc),
				Name:   name,
				Desc:   desc,
				Access: unit.AccPublic | unit.AccStatic | unit.AccSynthetic,
			},
			SuperDispatcher: true,
		})
	}
}

// Inherited returns the instance methods visible to a subtype of super:
// the methods of super's original descriptor when super is reload-aware,
// otherwise the root type's overridable methods.
func Inherited(super string, supers Lookup) []*MethodMember {
	if super == "" {
		return nil
	}
	if supers != nil && super != unit.RootType {
		if sd := supers(super); sd != nil {
			var out []*MethodMember
			for _, m := range sd.methods {
				if m.IsPrivate() || m.IsStatic() || m.SuperDispatcher || m.IsStaticInit() {
					continue
				}
				out = append(out, m)
			}
			return out
		}
	}
	return RootMethods()
}

// RootMethods returns the overridable methods of the root type.
func RootMethods() []*MethodMember {
	mk := func(name, desc string) *MethodMember {
		return &MethodMember{Member: Member{Name: name, Desc: desc, Access: unit.AccPublic}}
	}
	return []*MethodMember{
		mk("toString", "()Llang/String;"),
		mk("hashCode", "()I"),
		mk("equals", "(Llang/Object;)Z"),
	}
}
