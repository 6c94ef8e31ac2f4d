package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/diff"
	"github.com/chazu/hotswap/journal"
	"github.com/chazu/hotswap/reload"
	"github.com/chazu/hotswap/unit"
)

// ReloadService implements the hotswap.v1.ReloadService handlers.
type ReloadService struct {
	rt      *reload.Runtime
	journal *journal.Journal
}

// NewReloadService creates a ReloadService. j may be nil, in which case
// History is unavailable.
func NewReloadService(rt *reload.Runtime, j *journal.Journal) *ReloadService {
	return &ReloadService{rt: rt, journal: j}
}

func (s *ReloadService) registry(scope string) (*reload.Registry, error) {
	r := s.rt.Registry(scope)
	if r == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %q", reload.ErrUnknownRegistry, scope))
	}
	return r, nil
}

func (s *ReloadService) lookup(scope, typeName string) (*reload.Registry, *reload.Type, error) {
	if typeName == "" {
		return nil, nil, connect.NewError(connect.CodeInvalidArgument, errors.New("type is required"))
	}
	r, err := s.registry(scope)
	if err != nil {
		return nil, nil, err
	}
	t := r.Lookup(typeName)
	if t == nil {
		return nil, nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", reload.ErrUnknownType, typeName))
	}
	return r, t, nil
}

// Apply publishes a new version. A rejected version is a successful call
// whose response carries the reasons.
func (s *ReloadService) Apply(
	ctx context.Context,
	req *connect.Request[ApplyRequest],
) (*connect.Response[ApplyResponse], error) {
	if req.Msg.Type == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("type is required"))
	}
	if len(req.Msg.Unit) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("unit is required"))
	}

	v, out, err := s.rt.ApplyVersion(ctx, req.Msg.Scope, req.Msg.Type, req.Msg.Unit)
	resp := &ApplyResponse{Outcome: out.String(), Tag: reload.Tag(req.Msg.Unit)}
	switch out {
	case reload.Applied:
		resp.Seq, resp.Tag, resp.Summary = v.Seq, v.Tag, v.Record.String()
	case reload.Rejected:
		var re *reload.RejectedError
		if errors.As(err, &re) {
			resp.Reasons = re.Record.Reasons
			resp.Summary = re.Record.String()
		}
	case reload.UnknownRegistry, reload.UnknownType:
		return nil, connect.NewError(connect.CodeNotFound, err)
	default:
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

// Describe lists the current descriptor of a type, or of a candidate unit.
func (s *ReloadService) Describe(
	ctx context.Context,
	req *connect.Request[DescribeRequest],
) (*connect.Response[DescribeResponse], error) {
	if len(req.Msg.Unit) > 0 {
		var opts []descriptor.Option
		if r := s.rt.Registry(req.Msg.Scope); r != nil {
			opts = append(opts, descriptor.WithSupertypes(r.Describe))
		}
		d, err := descriptor.Extract(req.Msg.Unit, opts...)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewResponse(&DescribeResponse{Type: d.Name, Listing: d.Listing()}), nil
	}

	_, t, err := s.lookup(req.Msg.Scope, req.Msg.Type)
	if err != nil {
		return nil, err
	}
	resp := &DescribeResponse{Type: t.Name(), Listing: t.Latest().Listing()}
	for _, v := range t.History() {
		resp.Versions = append(resp.Versions, VersionInfo{Seq: v.Seq, Tag: v.Tag, Summary: v.Record.String()})
	}
	return connect.NewResponse(resp), nil
}

// Diff compares a candidate unit with the current version of a type
// without applying it.
func (s *ReloadService) Diff(
	ctx context.Context,
	req *connect.Request[DiffRequest],
) (*connect.Response[DiffResponse], error) {
	r, t, err := s.lookup(req.Msg.Scope, req.Msg.Type)
	if err != nil {
		return nil, err
	}
	u, err := unit.Unmarshal(req.Msg.Unit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	candidate, err := descriptor.FromUnit(u, descriptor.WithSupertypes(r.Describe))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	text, err := diff.Render(t.Latest(), candidate)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	delta := diff.Types(t.Original(), candidate)
	return connect.NewResponse(&DiffResponse{
		Diff:    text,
		Aspects: delta.Aspects.String(),
		Blocked: reload.Blocking(delta, u),
	}), nil
}

// List returns the reload-aware types of one scope or of all scopes.
func (s *ReloadService) List(
	ctx context.Context,
	req *connect.Request[ListRequest],
) (*connect.Response[ListResponse], error) {
	scopes := s.rt.Scopes()
	if req.Msg.Scope != "" {
		if _, err := s.registry(req.Msg.Scope); err != nil {
			return nil, err
		}
		scopes = []string{req.Msg.Scope}
	}
	resp := &ListResponse{}
	for _, scope := range scopes {
		r := s.rt.Registry(scope)
		if r == nil {
			continue
		}
		for _, t := range r.Types() {
			v := t.Version()
			resp.Types = append(resp.Types, TypeInfo{Scope: scope, Type: t.Name(), Seq: v.Seq, Tag: v.Tag})
		}
	}
	return connect.NewResponse(resp), nil
}

// History returns the journal entries of a scope or type.
func (s *ReloadService) History(
	ctx context.Context,
	req *connect.Request[HistoryRequest],
) (*connect.Response[HistoryResponse], error) {
	if s.journal == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("journal is disabled"))
	}
	entries, err := s.journal.Entries(ctx, req.Msg.Scope, req.Msg.Type)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp := &HistoryResponse{}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			Type:    e.Type,
			Tag:     e.Tag,
			Seq:     e.Seq,
			Outcome: e.Outcome,
			Reasons: e.Reasons,
			Error:   e.Error,
			At:      e.At.UnixNano(),
		})
	}
	return connect.NewResponse(resp), nil
}
