// Package fields keeps the values of fields that can no longer live in a
// type's original storage.
//
// Once a reload-aware type has been reloaded, every access to its fields is
// served from side tables keyed by declaring type and field name. A field
// that existed in the original version is captured from original storage the
// first time it is touched; a genuinely new field starts at its descriptor's
// default. Reads validate the tracked value against the field's current
// descriptor and fall back to the default when the field was retyped.
package fields

import (
	"sync"

	"github.com/chazu/hotswap/vm"
)

// Table maps declaring type to field name to value. The existence of an
// entry means the field is tracked. All access is serialized.
type Table struct {
	mu    sync.Mutex
	slots map[string]map[string]vm.Value
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{slots: make(map[string]map[string]vm.Value)}
}

// Lookup returns the tracked value of typ.name.
func (t *Table) Lookup(typ, name string) (vm.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.slots[typ][name]
	return v, ok
}

// Store tracks v as the value of typ.name.
func (t *Table) Store(typ, name string, v vm.Value) {
	t.mu.Lock()
	t.store(typ, name, v)
	t.mu.Unlock()
}

func (t *Table) store(typ, name string, v vm.Value) {
	m := t.slots[typ]
	if m == nil {
		m = make(map[string]vm.Value)
		t.slots[typ] = m
	}
	m[name] = v
}

// Delete stops tracking typ.name.
func (t *Table) Delete(typ, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m := t.slots[typ]; m != nil {
		delete(m, name)
	}
}

// Capture returns the tracked value of typ.name, tracking the result of
// load if there is none. load runs without the lock held; if the field is
// tracked by someone else in the meantime, that value wins.
func (t *Table) Capture(typ, name string, load func() (vm.Value, error)) (vm.Value, error) {
	if v, ok := t.Lookup(typ, name); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.slots[typ][name]; ok {
		return cur, nil
	}
	t.store(typ, name, v)
	return v, nil
}

// Revalidate replaces the tracked value of typ.name with fresh when keep
// rejects it, and returns the value tracked afterwards.
func (t *Table) Revalidate(typ, name string, keep func(vm.Value) bool, fresh vm.Value) vm.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.slots[typ][name]; ok && keep(cur) {
		return cur
	}
	t.store(typ, name, fresh)
	return fresh
}

// Len returns the number of tracked fields.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.slots {
		n += len(m)
	}
	return n
}
