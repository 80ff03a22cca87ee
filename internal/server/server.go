// Package server implements the TCP front end: an accept loop that spawns
// one goroutine per connection, each running the request state machine in
// conn.go, plus a signal-driven shutdown watcher. The two run under one
// errgroup.Group: "supervise concurrent goroutines, propagate the first
// error, cancel the rest" applied to accepting connections.
//
// © 2025 cuckoomc authors. MIT License.
package server

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cuckoomc/cuckoomc/internal/dispatch"
)

// Server accepts memcached-protocol connections on one TCP address.
type Server struct {
	addr string
	d    *dispatch.Dispatcher
	log  *zap.Logger
}

// New builds a Server bound to addr (host:port) that dispatches every
// connection's requests through d.
func New(addr string, d *dispatch.Dispatcher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{addr: addr, d: d, log: log}
}

// Run listens on the server's address and serves connections until ctx is
// canceled, then stops accepting and returns once the listener is closed.
// It does not wait for in-flight connections to finish; callers that need a
// hard deadline on existing connections should close them independently
// after Run returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop and shutdown watcher over an already-bound
// listener, returning once both stop. Splitting this out of Run lets tests
// bind an ephemeral port (":0") and learn the real address from ln.Addr()
// before connecting.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutdown requested, closing listener")
		return ln.Close()
	})

	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(nc)
	}
}

func (s *Server) serveConn(nc net.Conn) {
	c := newConn(nc, s.d, s.log)
	c.serve()
}
