package reload

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/diff"
	"github.com/chazu/hotswap/dispatch"
	"github.com/chazu/hotswap/vm"
)

// Version is one published version of a reloadable type. Versions are
// immutable.
type Version struct {
	Tag        string
	Seq        int // 0 is the original
	Descriptor *descriptor.Descriptor
	Record     *ChangeRecord

	// Executor is the executor type of the version; nil for the original.
	Executor *vm.Type
	Renames  map[string]string

	pair  *diff.Pair
	table *dispatch.Table
}

// Type is a reload-aware type.
type Type struct {
	registry *Registry
	original *descriptor.Descriptor
	ordinals *descriptor.Ordinals
	disp     *dispatch.Dispatcher
	typ      *vm.Type

	current atomic.Pointer[Version]

	applyMu sync.Mutex // serializes Apply for this type
	histMu  sync.Mutex
	history []*Version
}

func newType(r *Registry, original *descriptor.Descriptor, ord *descriptor.Ordinals, tag string) *Type {
	t := &Type{registry: r, original: original, ordinals: ord}
	t.disp = dispatch.NewDispatcher(t)
	v := &Version{Tag: tag, Descriptor: original, pair: diff.NewPair(original)}
	t.current.Store(v)
	t.history = []*Version{v}
	return t
}

// Name returns the type name.
func (t *Type) Name() string { return t.original.Name }

// Type returns the loaded VM type.
func (t *Type) Type() *vm.Type { return t.typ }

// Original returns the descriptor the type was loaded with.
func (t *Type) Original() *descriptor.Descriptor { return t.original }

// Latest returns the descriptor of the current version.
func (t *Type) Latest() *descriptor.Descriptor { return t.current.Load().Descriptor }

// Version returns the current version.
func (t *Type) Version() *Version { return t.current.Load() }

// History returns every published version, oldest first.
func (t *Type) History() []*Version {
	t.histMu.Lock()
	defer t.histMu.Unlock()
	return append([]*Version(nil), t.history...)
}

// Pair implements dispatch.Target.
func (t *Type) Pair() *diff.Pair { return t.current.Load().pair }

// Reloaded implements dispatch.Target: it reports whether a version other
// than the original is current.
func (t *Type) Reloaded() bool { return t.current.Load().Seq > 0 }

// Table implements dispatch.Target.
func (t *Type) Table() *dispatch.Table { return t.current.Load().table }

// Dispatcher returns the type's dispatcher.
func (t *Type) Dispatcher() *dispatch.Dispatcher { return t.disp }

func (t *Type) publish(v *Version) {
	t.histMu.Lock()
	t.history = append(t.history, v)
	t.histMu.Unlock()
	t.current.Store(v)
}

// RerunStaticInitializer runs the current version's static initializer.
func (t *Type) RerunStaticInitializer() error {
	_, err := t.typ.Loader().VM().CallStatic(t.typ, dispatch.ClinitName, dispatch.ClinitDesc)
	return err
}

// hooks is the vm.Hooks view of a Type. Field interception switches on for
// every type of the registry once any of them has been reloaded, so a
// field is never read from two places.
type hooks struct {
	t *Type
}

func (h hooks) Resolve(key string, declared vm.Method) vm.Method {
	return h.t.disp.Resolve(key, declared)
}

func (h hooks) Reloaded() bool { return h.t.registry.reloaded.Load() }

func (h hooks) GetField(_ *vm.VM, obj *vm.Object, owner *vm.Type, name, desc string) (vm.Value, error) {
	return h.t.registry.instances.Get(obj, owner.Name, name, desc)
}

func (h hooks) SetField(_ *vm.VM, obj *vm.Object, owner *vm.Type, name string, v vm.Value) error {
	return h.t.registry.instances.Set(obj, owner.Name, name, v)
}

func (h hooks) GetStatic(_ *vm.VM, owner *vm.Type, name, desc string) (vm.Value, error) {
	return h.t.registry.statics.Get(owner.Name, name, desc)
}

func (h hooks) SetStatic(_ *vm.VM, owner *vm.Type, name string, v vm.Value) error {
	return h.t.registry.statics.Set(owner.Name, name, v)
}
