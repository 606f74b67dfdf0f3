// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package smc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/dvfs/pkg/dvfs"
	"gvisor.dev/dvfs/pkg/log"
)

// Handler serves service calls. It is implemented by *dvfs.Service.
type Handler interface {
	Handle(fn dvfs.Function, arg uint64) (status dvfs.Status, ret uint32, retValid bool)
}

// connState is per-connection metadata.
//
// The following are valid states:
//
// idle - not processing any call, no close request.
// processing - actively processing, no close request.
// closeRequested - actively processing, pending close.
// closed - connection has been closed.
//
// The following transitions are possible:
//
// idle -> processing, closed
// processing -> idle, closeRequested
// closeRequested -> closed
type connState int

// See connState.
const (
	idle connState = iota
	processing
	closeRequested
	closed
)

// Server serves calls to a Handler.
type Server struct {
	handler Handler

	// OnCall, if set, is called after every call is handled. It must be set
	// before serving starts.
	OnCall func(Call, Result)

	// mu protects the fields below, except wg.
	mu sync.Mutex

	// conns is the set of connections being served.
	conns map[net.Conn]connState

	// stopped is set by Stop. New connections are refused afterwards.
	stopped bool

	// wg is a wait group for all outstanding connections.
	wg sync.WaitGroup
}

// NewServer returns a server dispatching calls to h.
func NewServer(h Handler) *Server {
	return &Server{
		handler: h,
		conns:   make(map[net.Conn]connState),
	}
}

// Serve accepts connections on l and serves each on its own goroutine until
// ctx is done. It then closes l, stops the server and returns once every
// connection is gone.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		l.Close()
		s.Stop()
		return nil
	})
	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accepting connection: %w", err)
			}
			g.Go(func() error {
				if err := s.ServeConn(conn); err != nil {
					log.Warningf("smc: connection from %v: %v", conn.RemoteAddr(), err)
				}
				return nil
			})
		}
	})
	return g.Wait()
}

// ServeConn serves calls on conn until the peer hangs up or the server is
// stopped. conn is closed on return.
func (s *Server) ServeConn(conn net.Conn) error {
	if !s.register(conn) {
		conn.Close()
		return errStopped
	}
	defer s.unregister(conn)
	for {
		err := s.handleOne(conn)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, errStopped), errors.Is(err, net.ErrClosed):
			return nil
		default:
			return err
		}
	}
}

var errStopped = errors.New("server stopped")

func (s *Server) handleOne(conn net.Conn) error {
	call, err := readCall(conn)
	if err != nil {
		return err
	}

	if !s.beginCall(conn) {
		return errStopped
	}
	defer s.endCall(conn)

	var res Result
	res.Status, res.Ret, res.RetValid = s.handler.Handle(call.Function, call.Arg)
	log.Debugf("smc: %v -> %v", call, res)
	if s.OnCall != nil {
		s.OnCall(call, res)
	}
	return writeFrame(conn, res)
}

func (s *Server) register(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = idle
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state := s.conns[conn]; state {
	case idle:
		conn.Close()
	case closed:
		// Already closed.
	default:
		panic(fmt.Sprintf("expected idle or closed, got %d", state))
	}
	delete(s.conns, conn)
	s.wg.Done()
}

// beginCall moves conn to processing. It returns false if conn has been
// closed by Stop.
func (s *Server) beginCall(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state := s.conns[conn]; state {
	case idle:
		s.conns[conn] = processing
		return true
	case closed:
		return false
	default:
		panic(fmt.Sprintf("expected idle or closed, got %d", state))
	}
}

// endCall moves conn back to idle, or closes it if Stop was called while the
// call was in progress.
func (s *Server) endCall(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state := s.conns[conn]; state {
	case processing:
		s.conns[conn] = idle
	case closeRequested:
		conn.Close()
		s.conns[conn] = closed
	default:
		panic(fmt.Sprintf("expected processing or closeRequested, got %d", state))
	}
}

// Stop closes all idle connections and the rest as soon as their call
// completes, then waits for every connection to be released. A call in
// progress always gets its result.
func (s *Server) Stop() {
	defer s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for conn, state := range s.conns {
		switch state {
		case idle:
			conn.Close()
			s.conns[conn] = closed
		case processing:
			s.conns[conn] = closeRequested
		}
	}
}
