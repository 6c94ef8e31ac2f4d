package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var nextObjectID atomic.Uint64

// Object is an instance of a Type. Its slot layout is the one its type had
// when the object was allocated, and never changes.
type Object struct {
	id  uint64
	typ *Type

	mu    sync.RWMutex
	slots []Value

	sideOnce sync.Once
	side     any
}

func newObject(t *Type) *Object {
	o := &Object{
		id:    nextObjectID.Add(1),
		typ:   t,
		slots: make([]Value, len(t.slotDescs)),
	}
	for i, d := range t.slotDescs {
		o.slots[i] = zeroFor(d)
	}
	return o
}

// ID returns the object's identity.
func (o *Object) ID() uint64 { return o.id }

// Type returns the object's type.
func (o *Object) Type() *Type { return o.typ }

// String returns the default textual form, Name@id.
func (o *Object) String() string {
	return fmt.Sprintf("%s@%x", o.typ.Name, o.id)
}

func (o *Object) slot(i int) Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.slots[i]
}

func (o *Object) setSlot(i int, v Value) {
	o.mu.Lock()
	o.slots[i] = v
	o.mu.Unlock()
}

// SideState returns per-object state owned by an extension, creating it
// with init on first use. init runs at most once per object.
func (o *Object) SideState(init func() any) any {
	o.sideOnce.Do(func() { o.side = init() })
	return o.side
}
