// Package server exposes a reload runtime over Connect.
//
// Messages are CBOR encoded. Every procedure is unary and lives under
// /hotswap.v1.ReloadService/.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/hotswap/journal"
	"github.com/chazu/hotswap/reload"
)

var log = commonlog.GetLogger("hotswap.server")

// ServiceName is the fully qualified service name.
const ServiceName = "hotswap.v1.ReloadService"

// Procedure paths.
const (
	ApplyProcedure    = "/" + ServiceName + "/Apply"
	DescribeProcedure = "/" + ServiceName + "/Describe"
	DiffProcedure     = "/" + ServiceName + "/Diff"
	ListProcedure     = "/" + ServiceName + "/List"
	HistoryProcedure  = "/" + ServiceName + "/History"
)

// Server serves a ReloadService.
type Server struct {
	svc  *ReloadService
	mux  *http.ServeMux
	http *http.Server
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	journal      *journal.Journal
	interceptors []connect.Interceptor
}

// WithJournal serves History from j.
func WithJournal(j *journal.Journal) Option {
	return func(c *serverConfig) { c.journal = j }
}

// WithInterceptors adds Connect interceptors to every handler.
func WithInterceptors(i ...connect.Interceptor) Option {
	return func(c *serverConfig) { c.interceptors = append(c.interceptors, i...) }
}

// New creates a Server for rt.
func New(rt *reload.Runtime, opts ...Option) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		svc: NewReloadService(rt, cfg.journal),
		mux: http.NewServeMux(),
	}
	hopts := []connect.HandlerOption{
		connect.WithCodec(newCodec()),
		connect.WithInterceptors(append([]connect.Interceptor{logInterceptor()}, cfg.interceptors...)...),
	}
	s.mux.Handle(ApplyProcedure, connect.NewUnaryHandler(ApplyProcedure, s.svc.Apply, hopts...))
	s.mux.Handle(DescribeProcedure, connect.NewUnaryHandler(DescribeProcedure, s.svc.Describe, hopts...))
	s.mux.Handle(DiffProcedure, connect.NewUnaryHandler(DiffProcedure, s.svc.Diff, hopts...))
	s.mux.Handle(ListProcedure, connect.NewUnaryHandler(ListProcedure, s.svc.List, hopts...))
	s.mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, s.svc.History, hopts...))
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Service returns the handler implementation.
func (s *Server) Service() *ReloadService { return s.svc }

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	log.Noticef("reload service listening on %s", l.Addr())
	if err := s.http.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr, in the form "host:port" or ":port", and
// serves.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func logInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				log.Infof("%s: %s (%s)", req.Spec().Procedure, connect.CodeOf(err), time.Since(start))
			} else {
				log.Debugf("%s: ok (%s)", req.Spec().Procedure, time.Since(start))
			}
			return resp, err
		}
	}
}
