// Package reload publishes new versions of reload-aware types into a
// running VM.
//
// A Runtime owns one Registry per loader scope. Registry.Define loads a
// unit, making it reload-aware when the policy chain accepts it.
// Runtime.Apply takes a candidate unit for a reload-aware type, checks it
// against the original, generates and defines its executor, and publishes
// the new version in a single atomic step: calls dispatched afterwards see
// the new version, calls already dispatched finish on the old one.
package reload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/diff"
	"github.com/chazu/hotswap/dispatch"
	"github.com/chazu/hotswap/executor"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = commonlog.GetLogger("hotswap.reload")

const tracerName = "github.com/chazu/hotswap/reload"

// Option configures a Runtime.
type Option func(*Runtime)

// WithPolicy appends policies to the eligibility chain.
func WithPolicy(p ...Policy) Option {
	return func(rt *Runtime) { rt.policies = append(rt.policies, p...) }
}

// WithDefaultDecision sets the answer used when every policy passes. The
// default is Yes.
func WithDefaultDecision(d Decision) Option {
	return func(rt *Runtime) { rt.fallback = d }
}

// WithListener registers lifecycle listeners.
func WithListener(l ...Listener) Option {
	return func(rt *Runtime) { rt.listeners = append(rt.listeners, l...) }
}

// WithTracerProvider sets the provider of Apply spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Runtime) { rt.tracer = tp.Tracer(tracerName) }
}

// WithRerunStaticInit makes Apply run the new version's static initializer
// after publishing it.
func WithRerunStaticInit(on bool) Option {
	return func(rt *Runtime) { rt.rerunStaticInit = on }
}

// Runtime is the process-wide entry point of reloading. Create it with
// NewRuntime when the host starts and Close it when the host shuts down.
type Runtime struct {
	policies        []Policy
	fallback        Decision
	listeners       []Listener
	tracer          trace.Tracer
	rerunStaticInit bool

	mu         sync.RWMutex
	registries map[string]*Registry
	closed     bool
}

// NewRuntime returns a Runtime with no registries.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		fallback:   Yes,
		registries: make(map[string]*Registry),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.tracer == nil {
		rt.tracer = otel.Tracer(tracerName)
	}
	return rt
}

// NewRegistry creates the registry of a loader scope.
func (rt *Runtime) NewRegistry(scope string, l *vm.Loader) (*Registry, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, ErrClosed
	}
	if rt.registries[scope] != nil {
		return nil, fmt.Errorf("reload: registry %q already exists", scope)
	}
	r := newRegistry(rt, scope, l)
	rt.registries[scope] = r
	return r, nil
}

// Registry returns the registry of a scope, or nil.
func (rt *Runtime) Registry(scope string) *Registry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.registries[scope]
}

// Scopes returns the registry scopes in order.
func (rt *Runtime) Scopes() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.registries))
	for s := range rt.registries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close drops every registry. Types already loaded keep their current
// version; later Apply calls fail with UnknownRegistry.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closed = true
	clear(rt.registries)
	return nil
}

func (rt *Runtime) decide(typeName string, data []byte) Decision {
	return decide(rt.policies, typeName, data, rt.fallback)
}

// Apply publishes data as the next version of typeName in scope.
func (rt *Runtime) Apply(ctx context.Context, scope, typeName string, data []byte) (Outcome, error) {
	_, outcome, err := rt.ApplyVersion(ctx, scope, typeName, data)
	return outcome, err
}

// ApplyVersion is Apply that also returns the version it published, which
// is nil unless the outcome is Applied. The type's current version may
// already be a later one by the time ApplyVersion returns.
func (rt *Runtime) ApplyVersion(ctx context.Context, scope, typeName string, data []byte) (*Version, Outcome, error) {
	ctx, span := rt.tracer.Start(ctx, "reload.apply", trace.WithAttributes(
		attribute.String("hotswap.scope", scope),
		attribute.String("hotswap.type", typeName),
		attribute.Int("hotswap.unit.size", len(data)),
	))
	defer span.End()

	v, outcome, ev, err := rt.apply(ctx, scope, typeName, data)
	span.SetAttributes(attribute.String("hotswap.outcome", outcome.String()))
	if ev.Tag != "" {
		span.SetAttributes(attribute.String("hotswap.version", ev.Tag))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.String())
	}
	if outcome != UnknownRegistry && outcome != UnknownType {
		ev.Scope, ev.Type, ev.Outcome, ev.Err, ev.At = scope, typeName, outcome, err, time.Now()
		notify(rt.listeners, ev)
	}
	return v, outcome, err
}

func (rt *Runtime) apply(ctx context.Context, scope, typeName string, data []byte) (*Version, Outcome, Event, error) {
	ev := Event{Tag: Tag(data)}

	rt.mu.RLock()
	closed := rt.closed
	r := rt.registries[scope]
	rt.mu.RUnlock()
	if closed {
		return nil, UnknownRegistry, ev, ErrClosed
	}
	if r == nil {
		return nil, UnknownRegistry, ev, fmt.Errorf("%w: %q", ErrUnknownRegistry, scope)
	}
	t := r.Lookup(typeName)
	if t == nil {
		return nil, UnknownType, ev, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	reject := func(rec *ChangeRecord, reasons ...string) (*Version, Outcome, Event, error) {
		rec.Reasons = append(rec.Reasons, reasons...)
		ev.Record = rec
		log.Warningf("rejected %s version %s: %s", typeName, ev.Tag, strings.Join(reasons, "; "))
		return nil, Rejected, ev, &RejectedError{Type: typeName, Record: rec}
	}
	fail := func(step string, err error) (*Version, Outcome, Event, error) {
		log.Errorf("reload of %s failed at %s: %s", typeName, step, err)
		return nil, InternalError, ev, &InternalErr{Type: typeName, Step: step, Err: err}
	}

	if d := decide(rt.policies, typeName, data, rt.fallback); d == No {
		return reject(&ChangeRecord{}, "refused by policy")
	}

	trace.SpanFromContext(ctx).AddEvent("extract")
	u, err := unit.Unmarshal(data)
	if err != nil {
		return fail("decode", err)
	}
	latest, err := descriptor.FromUnit(u,
		descriptor.MustSucceed(),
		descriptor.WithOrdinals(t.ordinals),
		descriptor.WithSupertypes(r.describe))
	if err != nil {
		return fail("extract", err)
	}
	if latest.Name != typeName {
		return reject(&ChangeRecord{}, fmt.Sprintf("unit declares %s", latest.Name))
	}

	rec := &ChangeRecord{Delta: diff.Types(t.original, latest)}
	if reasons := Blocking(rec.Delta, u); len(reasons) > 0 {
		return reject(rec, reasons...)
	}

	pair := diff.NewPair(t.original)
	pair.SetLatest(latest)
	rec.Methods = pair.Compute()

	trace.SpanFromContext(ctx).AddEvent("generate")
	seq := t.Version().Seq + 1
	gen, err := executor.Generate(u, latest, executor.Env{
		Seq:                 seq,
		Original:            t.original,
		Aware:               r.Aware,
		OriginalConstructor: r.originalConstructor,
	})
	if err != nil {
		return fail("generate", err)
	}
	exec, err := r.loader.Define(gen.Unit)
	if err != nil {
		return fail("define executor", err)
	}
	tab, err := dispatch.ExecutorTable(t.typ, exec, latest, gen.Renames, t.disp.Inherited)
	if err != nil {
		return fail("bind executor", err)
	}

	v := &Version{
		Tag:        ev.Tag,
		Seq:        seq,
		Descriptor: latest,
		Record:     rec,
		Executor:   exec,
		Renames:    gen.Renames,
		pair:       pair,
		table:      tab,
	}
	// Field interception is on before any executor body can run.
	r.reloaded.Store(true)
	t.publish(v)
	ev.Seq, ev.Record = seq, rec
	log.Infof("applied %s version %d (%s): %s", typeName, seq, v.Tag, rec)

	if rt.rerunStaticInit {
		if err := t.RerunStaticInitializer(); err != nil {
			log.Warningf("static initializer of %s version %d: %s", typeName, seq, err)
		}
	}
	return v, Applied, ev, nil
}

// Blocking lists the changes of a candidate that a live type cannot take:
// a new supertype or interface set, a switch to an interface, and members
// that use names the dispatch protocol reserves. u may be nil.
func Blocking(d *diff.TypeDelta, u *unit.Unit) []string {
	var reasons []string
	if d.Aspects.Has(diff.AspectSuper) {
		reasons = append(reasons, fmt.Sprintf("supertype changed from %s to %s", d.SuperBefore, d.SuperAfter))
	}
	if d.Aspects.Has(diff.AspectInterfaces) {
		reasons = append(reasons, "interfaces changed")
	}
	if d.Aspects.Has(diff.AspectAccess) && d.AccessBefore.Is(unit.AccInterface) != d.AccessAfter.Is(unit.AccInterface) {
		reasons = append(reasons, "became an interface")
	}
	if u != nil {
		for _, m := range u.Methods {
			if dispatch.IsProtocolName(m.Name) {
				reasons = append(reasons, "declares reserved method "+m.Key())
			}
		}
	}
	return reasons
}

// IsRejected reports whether err is a rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
