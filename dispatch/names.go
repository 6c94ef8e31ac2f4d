package dispatch

import (
	"strconv"
	"strings"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
)

// Names and descriptors of the members the protocol adds to a type.
const (
	GoverningSuffix = "__I"

	ExecuteName = "__execute"
	ExecuteDesc = "([Llang/Object;Llang/Object;Llang/String;)Llang/Object;"

	ClinitName = "___clinit___"
	ClinitDesc = "()V"

	InitName = "___init___"

	ExecutorInfix = "$$E"
	StaticSuffix  = "$$static"
)

// Synthetic is the access of generated helper methods.
const Synthetic = unit.AccPublic | unit.AccStatic | unit.AccSynthetic

// GoverningName returns the name of t's governing interface.
func GoverningName(t string) string { return t + GoverningSuffix }

// ExecutorName returns the name of the executor for version seq of t.
func ExecutorName(t string, seq int) string {
	return t + ExecutorInfix + strconv.Itoa(seq)
}

// InitDesc returns the descriptor of the instance initializer generated for
// the constructor ctorDesc of t.
func InitDesc(t, ctorDesc string) string {
	return unit.PrependParam(ctorDesc, unit.ObjectDesc(t))
}

// ReceiverDesc returns desc with a receiver of type t prepended.
func ReceiverDesc(t, desc string) string {
	return unit.PrependParam(desc, unit.ObjectDesc(t))
}

// SuperDispatcher returns the name and descriptor of t's super-dispatcher
// for the inherited method name+desc.
func SuperDispatcher(t, name, desc string) (string, string) {
	return name + descriptor.SuperDispatcherSuffix, ReceiverDesc(t, desc)
}

// IsProtocolName reports whether name is reserved by the protocol.
func IsProtocolName(name string) bool {
	switch name {
	case ExecuteName, ClinitName, InitName:
		return true
	}
	return strings.HasSuffix(name, descriptor.SuperDispatcherSuffix)
}

// ExecutorMethod returns the name and descriptor an executor gives to the
// member m of type t. Static members renamed to avoid a collision are looked
// up in renames by key.
func ExecutorMethod(t string, m *descriptor.MethodMember, renames map[string]string) (string, string) {
	switch {
	case m.IsConstructor():
		return InitName, InitDesc(t, m.Desc)
	case m.IsStaticInit():
		return ClinitName, ClinitDesc
	case m.IsStatic():
		if r, ok := renames[m.Key()]; ok {
			return r, m.Desc
		}
		return m.Name, m.Desc
	}
	return m.Name, ReceiverDesc(t, m.Desc)
}
