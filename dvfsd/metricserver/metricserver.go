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

// Package metricserver implements a Prometheus metric server for dvfsd.
package metricserver

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/metric"
)

// Server is the set of options to run a metric server.
// Initialize this struct and then call Run on it to run the metric server.
type Server struct {
	// Address is a unix socket path if it starts with "/", otherwise a TCP
	// address.
	Address string

	// Registry holds the metrics to export. If nil, metric.Default is used.
	Registry *metric.Registry

	// State, if set, describes the rate change state machine on the state
	// endpoint.
	State func() string
}

// metricServer is the state of a running server.
type metricServer struct {
	registry *metric.Registry
	state    func() string
	srv      http.Server

	mu           sync.Mutex
	shuttingDown bool
}

func (s *Server) registry() *metric.Registry {
	if s.Registry != nil {
		return s.Registry
	}
	return metric.Default
}

// Listen binds s.Address.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	if s.Address == "" {
		return nil, errors.New("metric server address is not set (--metric-server)")
	}
	if strings.HasPrefix(s.Address, "/") {
		// A socket left behind by a previous instance would fail the bind.
		// The daemon lock guarantees no other instance is serving on it.
		if st, err := os.Lstat(s.Address); err == nil && st.Mode()&os.ModeSocket != 0 {
			os.Remove(s.Address)
		}
		l, err := (&net.ListenConfig{}).Listen(ctx, "unix", s.Address)
		if err != nil {
			return nil, fmt.Errorf("cannot listen on unix domain socket %q: %w", s.Address, err)
		}
		return l, nil
	}
	if strings.HasPrefix(s.Address, ":") {
		log.Warningf("Binding on all interfaces. This will allow anyone to read CPU frequency metrics!")
	}
	l, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.Address)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on TCP address %q: %w", s.Address, err)
	}
	return l, nil
}

// Run runs the metric server until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done. l is closed on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	m := &metricServer{
		registry: s.registry(),
		state:    s.State,
	}
	if err := m.registry.Initialize(); err != nil && !errors.Is(err, metric.ErrInitializationDone) {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	mux := http.NewServeMux()
	for _, e := range m.endpoints() {
		mux.Handle(e.path, e)
	}
	mux.Handle("/", endpoint{path: "/", serve: m.serveIndex})
	m.srv.Handler = mux
	m.srv.ReadTimeout = requestTimeout
	m.srv.WriteTimeout = requestTimeout

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.shuttingDown = true
		m.mu.Unlock()
		m.srv.Close()
	})
	defer stop()

	if ul, ok := l.(*net.UnixListener); ok {
		defer os.Remove(ul.Addr().String())
	}

	log.Infof("Metric server serving on %s.", l.Addr())
	serveErr := m.srv.Serve(l)
	log.Infof("Metric server has stopped accepting requests.")
	if serveErr == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("cannot serve on address %s: %w", l.Addr(), serveErr)
}

// requestTimeout bounds reading a request and writing its response.
const requestTimeout = 30 * time.Second

// requestError is a failed request: the response status and a message for
// the client.
type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.code, http.StatusText(e.code), e.msg)
}

// endpoint is one path served by the metric server.
type endpoint struct {
	path  string
	about string
	serve func(w http.ResponseWriter, req *http.Request) error
}

// ServeHTTP implements http.Handler.ServeHTTP. It logs the request and turns
// a failure or a panic in e.serve into an error response.
func (e endpoint) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Debugf("Metric server: %s %s", req.Method, req.URL.Path)
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("Metric server: %s %s: panic: %v", req.Method, req.URL.Path, r)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()
	err := e.serve(w, req)
	if err == nil {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var re *requestError
	if errors.As(err, &re) {
		code, msg = re.code, re.msg
	}
	http.Error(w, msg, code)
	log.Warningf("Metric server: %s %s: %v", req.Method, req.URL.Path, err)
}

// endpoints returns the paths listed on the index page.
func (m *metricServer) endpoints() []endpoint {
	eps := []endpoint{
		{path: "/metrics", about: "Metric data in the Prometheus text format.", serve: m.serveMetrics},
		{path: "/dvfsd-metrics/healthcheck", about: "Liveness of the metric server.", serve: m.serveHealthCheck},
	}
	if m.state != nil {
		eps = append(eps, endpoint{path: "/dvfsd-metrics/state", about: "Rate change state of the DVFS service.", serve: m.serveState})
	} else {
		eps = append(eps, endpoint{path: "/dvfsd-metrics/state", serve: func(http.ResponseWriter, *http.Request) error {
			return &requestError{http.StatusNotFound, "state is not exported"}
		}})
	}
	return eps
}

// escapedMetricsPath is the path Prometheus requests when the query of
// scrape_config.metrics_path has been percent-encoded into the path.
const escapedMetricsPath = "/metrics?"

// serveIndex lists the endpoints. It also catches scrapes of
// escapedMetricsPath.
func (m *metricServer) serveIndex(w http.ResponseWriter, req *http.Request) error {
	if query, ok := strings.CutPrefix(req.URL.Path, escapedMetricsPath); ok {
		req.URL.Path = "/metrics"
		req.URL.RawQuery = query
		return m.serveMetrics(w, req)
	}
	if req.URL.Path != "/" {
		return &requestError{http.StatusNotFound, "no such endpoint: " + req.URL.Path}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, "<html><head><title>dvfsd metrics</title></head><body><ul>\n")
	for _, e := range m.endpoints() {
		if e.about == "" {
			continue
		}
		fmt.Fprintf(w, "<li><a href=%q>%s</a>: %s</li>\n", e.path, html.EscapeString(e.path), html.EscapeString(e.about))
	}
	io.WriteString(w, "</ul></body></html>\n")
	return nil
}

// serveMetrics serves metrics in the Prometheus text exposition format.
func (m *metricServer) serveMetrics(w http.ResponseWriter, req *http.Request) error {
	m.registry.ServeHTTP(w, req)
	return nil
}

// serveHealthCheck serves the healthcheck endpoint.
// Returns a response prefixed by "dvfsd-metrics:OK" on success.
func (m *metricServer) serveHealthCheck(w http.ResponseWriter, req *http.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return &requestError{http.StatusServiceUnavailable, "server is shutting down"}
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "dvfsd-metrics:OK")
	return nil
}

// serveState serves a one-line description of the rate change state.
func (m *metricServer) serveState(w http.ResponseWriter, req *http.Request) error {
	io.WriteString(w, m.state()+"\n")
	return nil
}
