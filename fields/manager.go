package fields

import (
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hotswap.fields")

// Original reads and writes the storage a type was loaded with.
type Original interface {
	ReadField(obj *vm.Object, declaring, name string) (vm.Value, error)
	WriteField(obj *vm.Object, declaring, name string, v vm.Value) error
	ReadStatic(declaring, name string) (vm.Value, error)
	WriteStatic(declaring, name string, v vm.Value) error
}

// Compatible reports whether v may be held by a field of type desc.
type Compatible func(v vm.Value, desc string) bool

// Config wires a manager to its hierarchy and original storage. Locator is
// optional.
type Config struct {
	Hierarchy  Hierarchy
	Original   Original
	Locator    Locator
	Compatible Compatible
}

type manager struct {
	cfg   Config
	chain []Strategy
}

func newManager(cfg Config) manager {
	chain := []Strategy{LiveFieldStrategy{Hierarchy: cfg.Hierarchy}}
	if cfg.Locator != nil {
		chain = append(chain, LocatorStrategy{Hierarchy: cfg.Hierarchy, Locator: cfg.Locator})
	}
	return manager{cfg: cfg, chain: chain}
}

// Strategies returns the lookup chain in order.
func (m *manager) Strategies() []Strategy {
	return append([]Strategy(nil), m.chain...)
}

func (m *manager) resolve(req Request) (Resolution, bool, error) {
	for _, s := range m.chain {
		res, ok, err := s.Find(req)
		if err != nil {
			return Resolution{}, false, err
		}
		if ok {
			return res, true, nil
		}
	}
	log.Warningf("cannot locate field %s.%s %s; using default", req.Owner, req.Name, req.Desc)
	return Resolution{}, false, nil
}

// get resolves req and serves it from table, capturing from original
// storage on first touch.
func (m *manager) get(table *Table, req Request,
	read func(decl string) (vm.Value, error)) (vm.Value, error) {
	res, ok, err := m.resolve(req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return unit.Zero(req.Desc), nil
	}
	if res.Located {
		v, err := read(res.Declaring)
		if err != nil {
			return nil, &AccessError{Type: res.Declaring, Field: req.Name, Err: err}
		}
		return v, nil
	}

	f := res.Field
	v, err := table.Capture(res.Declaring, f.Name, func() (vm.Value, error) {
		if orig := m.cfg.Hierarchy.Original(res.Declaring); orig != nil {
			if of := orig.Field(f.Name); of != nil && of.IsStatic() == req.Static {
				v, err := read(res.Declaring)
				if err != nil {
					return nil, &AccessError{Type: res.Declaring, Field: f.Name, Err: err}
				}
				return v, nil
			}
		}
		return unit.Zero(f.Desc), nil
	})
	if err != nil {
		return nil, err
	}
	if !m.cfg.Compatible(v, f.Desc) {
		log.Debugf("%s.%s: tracked value no longer fits %s; resetting", res.Declaring, f.Name, f.Desc)
		v = table.Revalidate(res.Declaring, f.Name, func(cur vm.Value) bool {
			return m.cfg.Compatible(cur, f.Desc)
		}, unit.Zero(f.Desc))
	}
	return v, nil
}

// set resolves req and stores v without a compatibility check.
func (m *manager) set(table *Table, req Request, v vm.Value,
	write func(decl string) error) error {
	res, ok, err := m.resolve(req)
	if err != nil || !ok {
		return err
	}
	if res.Located {
		if err := write(res.Declaring); err != nil {
			return &AccessError{Type: res.Declaring, Field: req.Name, Err: err}
		}
		return nil
	}
	table.Store(res.Declaring, res.Field.Name, v)
	return nil
}

// InstanceManager serves instance fields. Each object carries its own
// table.
type InstanceManager struct {
	manager
}

// NewInstanceManager returns an instance field manager.
func NewInstanceManager(cfg Config) *InstanceManager {
	return &InstanceManager{manager: newManager(cfg)}
}

// Table returns obj's side table.
func (m *InstanceManager) Table(obj *vm.Object) *Table {
	return obj.SideState(func() any { return NewTable() }).(*Table)
}

// Get reads field name of obj as requested through owner with descriptor
// desc. An untraceable field reads as the zero value of desc.
func (m *InstanceManager) Get(obj *vm.Object, owner, name, desc string) (vm.Value, error) {
	if obj == nil {
		return nil, vm.ErrNullPointer
	}
	req := Request{Owner: owner, Name: name, Desc: desc, Object: obj}
	return m.get(m.Table(obj), req, func(decl string) (vm.Value, error) {
		return m.cfg.Original.ReadField(obj, decl, name)
	})
}

// Set writes field name of obj as requested through owner.
func (m *InstanceManager) Set(obj *vm.Object, owner, name string, v vm.Value) error {
	if obj == nil {
		return vm.ErrNullPointer
	}
	req := Request{Owner: owner, Name: name, Object: obj}
	return m.set(m.Table(obj), req, v, func(decl string) error {
		return m.cfg.Original.WriteField(obj, decl, name, v)
	})
}

// StaticManager serves static fields from a single table.
type StaticManager struct {
	manager
	table *Table
}

// NewStaticManager returns a static field manager.
func NewStaticManager(cfg Config) *StaticManager {
	return &StaticManager{manager: newManager(cfg), table: NewTable()}
}

// Table returns the static side table.
func (m *StaticManager) Table() *Table { return m.table }

// Get reads static field name as requested through owner with descriptor
// desc.
func (m *StaticManager) Get(owner, name, desc string) (vm.Value, error) {
	req := Request{Owner: owner, Name: name, Desc: desc, Static: true}
	return m.get(m.table, req, func(decl string) (vm.Value, error) {
		return m.cfg.Original.ReadStatic(decl, name)
	})
}

// Set writes static field name as requested through owner.
func (m *StaticManager) Set(owner, name string, v vm.Value) error {
	req := Request{Owner: owner, Name: name, Static: true}
	return m.set(m.table, req, v, func(decl string) error {
		return m.cfg.Original.WriteStatic(decl, name, v)
	})
}
