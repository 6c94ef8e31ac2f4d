package fields

import (
	"github.com/chazu/hotswap/vm"
)

// VMStorage reaches original storage through a VM loader scope. It
// implements Original and Locator.
type VMStorage struct {
	Loader *vm.Loader
}

func (s VMStorage) ReadField(obj *vm.Object, declaring, name string) (vm.Value, error) {
	return s.Loader.VM().ReadField(obj, declaring, name)
}

func (s VMStorage) WriteField(obj *vm.Object, declaring, name string, v vm.Value) error {
	return s.Loader.VM().WriteField(obj, declaring, name, v)
}

func (s VMStorage) ReadStatic(declaring, name string) (vm.Value, error) {
	t, err := s.Loader.Resolve(declaring)
	if err != nil {
		return nil, err
	}
	return s.Loader.VM().ReadStatic(t, name)
}

func (s VMStorage) WriteStatic(declaring, name string, v vm.Value) error {
	t, err := s.Loader.Resolve(declaring)
	if err != nil {
		return err
	}
	return s.Loader.VM().WriteStatic(t, name, v)
}

// Locate walks the loaded types from from upward.
func (s VMStorage) Locate(from string, req Request) (string, bool, error) {
	for t := s.Loader.Lookup(from); t != nil; t = t.Super {
		f := t.Field(req.Name)
		if f == nil {
			continue
		}
		if f.IsStatic() != req.Static {
			return "", false, &KindMismatchError{Type: t.Name, Field: req.Name, Static: req.Static}
		}
		return t.Name, true, nil
	}
	return "", false, nil
}

// Super returns the supertype name of a loaded type.
func (s VMStorage) Super(typ string) string {
	if t := s.Loader.Lookup(typ); t != nil && t.Super != nil {
		return t.Super.Name
	}
	return ""
}

// Compatible checks v against desc with the loader's type hierarchy.
func (s VMStorage) Compatible(v vm.Value, desc string) bool {
	return s.Loader.Assignable(v, desc)
}
