package descriptor

import "sync"

// Ordinals allocates stable member ids for one type across its whole
// version history. An id is assigned the first time a (name, erased
// descriptor) pair is seen and never reassigned. Methods and fields are
// numbered independently, both starting at 1.
type Ordinals struct {
	mu      sync.Mutex
	methods map[string]int
	fields  map[string]int
}

// NewOrdinals returns an empty allocator.
func NewOrdinals() *Ordinals {
	return &Ordinals{
		methods: make(map[string]int),
		fields:  make(map[string]int),
	}
}

// Method returns the id of a method, allocating one if needed.
func (o *Ordinals) Method(name, desc string) int {
	return o.id(o.methods, name+desc)
}

// Field returns the id of a field, allocating one if needed.
func (o *Ordinals) Field(name, desc string) int {
	return o.id(o.fields, name+":"+desc)
}

// Methods returns the number of method ids allocated so far.
func (o *Ordinals) Methods() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.methods)
}

func (o *Ordinals) id(table map[string]int, key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id, ok := table[key]; ok {
		return id
	}
	id := len(table) + 1
	table[key] = id
	return id
}
