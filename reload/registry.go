package reload

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/dispatch"
	"github.com/chazu/hotswap/fields"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
)

// Registry holds the reload-aware types of one loader scope. It also
// serves as the field hierarchy of its side tables.
type Registry struct {
	Scope string

	runtime *Runtime
	loader  *vm.Loader
	storage fields.VMStorage

	instances *fields.InstanceManager
	statics   *fields.StaticManager

	mu    sync.RWMutex
	types map[string]*Type

	reloaded atomic.Bool
}

func newRegistry(rt *Runtime, scope string, l *vm.Loader) *Registry {
	r := &Registry{
		Scope:   scope,
		runtime: rt,
		loader:  l,
		storage: fields.VMStorage{Loader: l},
		types:   make(map[string]*Type),
	}
	cfg := fields.Config{
		Hierarchy:  r,
		Original:   r.storage,
		Locator:    r.storage,
		Compatible: r.storage.Compatible,
	}
	r.instances = fields.NewInstanceManager(cfg)
	r.statics = fields.NewStaticManager(cfg)
	return r
}

// Loader returns the registry's loader scope.
func (r *Registry) Loader() *vm.Loader { return r.loader }

// Lookup returns the reload-aware type with the given name, or nil.
func (r *Registry) Lookup(name string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// Types returns the reload-aware types sorted by name.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Aware reports whether name is a reload-aware type of the registry.
func (r *Registry) Aware(name string) bool { return r.Lookup(name) != nil }

// Define loads a unit into the registry's loader. Types the policy chain
// accepts are made reload-aware: their dispatch shape is installed and
// their governing interface is defined first. Other units, interfaces
// included, are defined as they are.
func (r *Registry) Define(data []byte) (*vm.Type, error) {
	u, err := unit.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if u.IsInterface() || r.runtime.decide(u.Name, data) != Yes {
		return r.loader.Define(u)
	}

	ord := descriptor.NewOrdinals()
	d, err := descriptor.FromUnit(u,
		descriptor.MustSucceed(),
		descriptor.WithOrdinals(ord),
		descriptor.WithSupertypes(r.describe))
	if err != nil {
		return nil, err
	}
	installed, err := dispatch.Install(u, d, r.Aware)
	if err != nil {
		return nil, err
	}
	if _, err := r.loader.Define(dispatch.GoverningInterface(d)); err != nil {
		return nil, fmt.Errorf("reload: governing interface of %s: %w", u.Name, err)
	}

	t := newType(r, d, ord, Tag(data))
	typ, err := r.loader.Define(installed, vm.WithHooks(hooks{t}))
	if err != nil {
		return nil, err
	}
	t.typ = typ

	r.mu.Lock()
	r.types[u.Name] = t
	r.mu.Unlock()
	log.Infof("%s is reload-aware in %s (version %s)", u.Name, r.Scope, t.Version().Tag)
	return typ, nil
}

// describe is the supertype lookup used when computing catchers: the
// original descriptor of a reload-aware type, or the descriptor of any
// other loaded type that came from a unit.
func (r *Registry) describe(name string) *descriptor.Descriptor {
	if t := r.Lookup(name); t != nil {
		return t.original
	}
	typ := r.loader.Lookup(name)
	if typ == nil || typ.Unit == nil {
		return nil
	}
	d, err := descriptor.FromUnit(typ.Unit)
	if err != nil {
		return nil
	}
	return d
}

// originalConstructor reports whether the reload-aware type typ was loaded
// with the constructor desc.
func (r *Registry) originalConstructor(typ, desc string) (bool, error) {
	t := r.Lookup(typ)
	if t == nil {
		return false, fmt.Errorf("%s: %w", typ, ErrUnknownType)
	}
	return t.original.Method(unit.Constructor+desc) != nil, nil
}

// Latest implements fields.Hierarchy.
func (r *Registry) Latest(typ string) *descriptor.Descriptor {
	if t := r.Lookup(typ); t != nil {
		return t.Latest()
	}
	return nil
}

// Original implements fields.Hierarchy.
func (r *Registry) Original(typ string) *descriptor.Descriptor {
	if t := r.Lookup(typ); t != nil {
		return t.original
	}
	return nil
}

// Super implements fields.Hierarchy.
func (r *Registry) Super(typ string) string { return r.storage.Super(typ) }

// InstanceFields returns the instance field manager.
func (r *Registry) InstanceFields() *fields.InstanceManager { return r.instances }

// StaticFields returns the static field manager.
func (r *Registry) StaticFields() *fields.StaticManager { return r.statics }

// Describe returns the descriptor the registry uses for a supertype name:
// the original descriptor of a reload-aware type, or the descriptor of
// another loaded type. It returns nil for unknown names.
func (r *Registry) Describe(name string) *descriptor.Descriptor { return r.describe(name) }
