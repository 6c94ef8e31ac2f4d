package reload

import (
	"fmt"
	"path"
)

// Decision is a policy's answer for one type.
type Decision uint8

const (
	Pass Decision = iota
	Yes
	No
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "pass"
}

// Policy decides whether a type takes part in reloading. It sees the type
// name and the unit bytes.
type Policy interface {
	Decide(typeName string, data []byte) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(typeName string, data []byte) Decision

func (f PolicyFunc) Decide(typeName string, data []byte) Decision { return f(typeName, data) }

// PatternPolicy matches type names against path.Match patterns. A name
// matching an exclude pattern is No. With include patterns present, a
// matching name is Yes and any other name is No; without them it is Pass.
type PatternPolicy struct {
	Include []string
	Exclude []string
}

// Validate reports the first malformed pattern.
func (p PatternPolicy) Validate() error {
	for _, pats := range [][]string{p.Include, p.Exclude} {
		for _, pat := range pats {
			if _, err := path.Match(pat, ""); err != nil {
				return fmt.Errorf("pattern %q: %w", pat, err)
			}
		}
	}
	return nil
}

func (p PatternPolicy) Decide(typeName string, _ []byte) Decision {
	for _, pat := range p.Exclude {
		if ok, _ := path.Match(pat, typeName); ok {
			return No
		}
	}
	if len(p.Include) == 0 {
		return Pass
	}
	for _, pat := range p.Include {
		if ok, _ := path.Match(pat, typeName); ok {
			return Yes
		}
	}
	return No
}

// decide runs the chain; the first non-Pass answer wins. A panicking policy
// counts as Pass.
func decide(chain []Policy, typeName string, data []byte, fallback Decision) Decision {
	for _, p := range chain {
		if d := safeDecide(p, typeName, data); d != Pass {
			return d
		}
	}
	return fallback
}

func safeDecide(p Policy, typeName string, data []byte) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("policy %T panicked for %s: %v", p, typeName, r)
			d = Pass
		}
	}()
	return p.Decide(typeName, data)
}
