// Package vm implements the host virtual machine that reloadable types run
// on.
//
// This package contains:
//   - Types defined from binary units, with a shape fixed at definition
//   - Objects and arrays
//   - Name+descriptor keyed method lookup with per-type hooks
//   - A stack bytecode interpreter enforcing the binding rules
//   - Loaders that scope type names
package vm
