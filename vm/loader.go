package vm

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/chazu/hotswap/unit"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hotswap.vm")

// ---------------------------------------------------------------------------
// Loader: a scope of type names
// ---------------------------------------------------------------------------

// Loader defines types and resolves type names. Lookups consult the parent
// loader first, so built-in types are shared by every scope.
type Loader struct {
	Name string

	vm     *VM
	parent *Loader

	mu    sync.RWMutex
	types map[string]*Type
}

func newLoader(vm *VM, name string, parent *Loader) *Loader {
	return &Loader{Name: name, vm: vm, parent: parent, types: make(map[string]*Type)}
}

// VM returns the machine the loader belongs to.
func (l *Loader) VM() *VM { return l.vm }

// Parent returns the parent loader, or nil for the bootstrap loader.
func (l *Loader) Parent() *Loader { return l.parent }

// Lookup finds a type by name, or returns nil.
func (l *Loader) Lookup(name string) *Type {
	if l.parent != nil {
		if t := l.parent.Lookup(name); t != nil {
			return t
		}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.types[name]
}

// Resolve finds a type by name or fails with a LinkageError.
func (l *Loader) Resolve(name string) (*Type, error) {
	if t := l.Lookup(name); t != nil {
		return t, nil
	}
	return nil, &LinkageError{Type: name, Reason: "type not defined in loader " + l.Name}
}

// Types returns the types defined by this loader, sorted by name.
func (l *Loader) Types() []*Type {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Type, 0, len(l.types))
	for _, t := range l.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefineOption configures a definition.
type DefineOption func(*defineConfig)

type defineConfig struct {
	hooks Hooks
}

// WithHooks installs hooks on the type being defined.
func WithHooks(h Hooks) DefineOption {
	return func(c *defineConfig) { c.hooks = h }
}

// DefineBytes decodes a unit and defines it.
func (l *Loader) DefineBytes(data []byte, opts ...DefineOption) (*Type, error) {
	u, err := unit.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return l.Define(u, opts...)
}

// Define creates a type from a unit. The supertype and interfaces must
// already be resolvable. The unit must not be modified afterward.
func (l *Loader) Define(u *unit.Unit, opts ...DefineOption) (*Type, error) {
	var cfg defineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := unit.Validate(u); err != nil {
		return nil, &LinkageError{Type: u.Name, Reason: "invalid unit", Err: err}
	}

	super, err := l.Resolve(u.Super)
	if err != nil {
		return nil, &LinkageError{Type: u.Name, Reason: "supertype", Err: err}
	}
	if super.IsInterface() {
		return nil, &LinkageError{Type: u.Name, Reason: "supertype " + super.Name + " is an interface"}
	}
	if super.Access.Is(unit.AccFinal) {
		return nil, &LinkageError{Type: u.Name, Reason: "supertype " + super.Name + " is final"}
	}

	t := &Type{
		Name:    u.Name,
		Super:   super,
		Access:  u.Access,
		Unit:    u,
		loader:  l,
		hooks:   cfg.hooks,
		fields:  make(map[string]*fieldInfo, len(u.Fields)),
		methods: make(map[string]Method, len(u.Methods)),
	}
	for _, name := range u.Interfaces {
		it, err := l.Resolve(name)
		if err != nil {
			return nil, &LinkageError{Type: u.Name, Reason: "interface", Err: err}
		}
		if !it.IsInterface() {
			return nil, &LinkageError{Type: u.Name, Reason: name + " is not an interface"}
		}
		t.Interfaces = append(t.Interfaces, it)
	}

	t.slotDescs = append([]string(nil), super.slotDescs...)
	for i := range u.Fields {
		f := &u.Fields[i]
		if f.IsStatic() {
			t.fields[f.Name] = &fieldInfo{field: f, index: len(t.statics)}
			t.statics = append(t.statics, zeroFor(f.Desc))
			continue
		}
		t.fields[f.Name] = &fieldInfo{field: f, index: len(t.slotDescs)}
		t.slotDescs = append(t.slotDescs, f.Desc)
	}
	for i := range u.Methods {
		m := &u.Methods[i]
		t.methods[m.Key()] = &CodeMethod{typ: t, info: m}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.types[u.Name] != nil || (l.parent != nil && l.parent.Lookup(u.Name) != nil) {
		return nil, &LinkageError{Type: u.Name, Reason: "duplicate definition"}
	}
	l.types[u.Name] = t
	log.Debugf("defined %s in loader %s", u.Name, l.Name)
	return t, nil
}

// ---------------------------------------------------------------------------
// Built-in types
// ---------------------------------------------------------------------------

func defineBuiltins(l *Loader) (object, str *Type) {
	object = &Type{
		Name:    unit.RootType,
		Access:  unit.AccPublic,
		loader:  l,
		fields:  map[string]*fieldInfo{},
		methods: map[string]Method{},
	}
	object.methods["<init>()V"] = NewNative(object, unit.Constructor, "()V", unit.AccPublic,
		func(vm *VM, args []Value) (Value, error) { return nil, nil })
	object.methods["toString()Llang/String;"] = NewNative(object, "toString", "()Llang/String;", unit.AccPublic,
		func(vm *VM, args []Value) (Value, error) { return Stringify(args[0]), nil })
	object.methods["hashCode()I"] = NewNative(object, "hashCode", "()I", unit.AccPublic,
		func(vm *VM, args []Value) (Value, error) { return identityHash(args[0]), nil })
	object.methods["equals(Llang/Object;)Z"] = NewNative(object, "equals", "(Llang/Object;)Z", unit.AccPublic,
		func(vm *VM, args []Value) (Value, error) { return args[0] == args[1], nil })
	object.initState.Store(initDone)

	str = &Type{
		Name:    unit.StringType,
		Super:   object,
		Access:  unit.AccPublic | unit.AccFinal,
		loader:  l,
		fields:  map[string]*fieldInfo{},
		methods: map[string]Method{},
	}
	str.methods["length()I"] = NewNative(str, "length", "()I", unit.AccPublic,
		func(vm *VM, args []Value) (Value, error) { return int32(len(args[0].(string))), nil })
	str.initState.Store(initDone)

	l.types[object.Name] = object
	l.types[str.Name] = str
	return object, str
}

func identityHash(v Value) int32 {
	switch x := v.(type) {
	case *Object:
		return int32(x.id)
	case string:
		h := fnv.New32a()
		h.Write([]byte(x))
		return int32(h.Sum32())
	}
	return 0
}
