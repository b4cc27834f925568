// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/exporter-toolkit/web"
	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
)

// APIService defines the interface for the HTTP server providing API endpoints
type APIService interface {
	service.Service
	Register(endpoint, summary, description string, handler http.Handler) error
}

// Middleware wraps every request served by the APIServer
type Middleware func(next http.Handler) http.Handler

// APIServer serves the control, metrics and probe endpoints
type APIServer struct {
	logger    *slog.Logger
	server    *http.Server
	mux       *http.ServeMux
	webConfig *web.FlagConfig

	routes  []route
	serving atomic.Bool
}

type route struct {
	path, summary, description string
}

var (
	_ APIService           = (*APIServer)(nil)
	_ service.Initializer  = (*APIServer)(nil)
	_ service.Runner       = (*APIServer)(nil)
	_ service.Shutdowner   = (*APIServer)(nil)
	_ service.ReadyChecker = (*APIServer)(nil)
)

type Opts struct {
	logger      *slog.Logger
	webConfig   *web.FlagConfig
	middlewares []Middleware
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the APIServer
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithListen sets the listening addresses and the web config file (TLS and
// basic auth) of the APIServer
func WithListen(addr []string, path string) OptionFn {
	return func(o *Opts) {
		o.webConfig = &web.FlagConfig{
			WebListenAddresses: &addr,
			WebConfigFile:      &path,
		}
	}
}

// WithMiddleware adds a middleware; the first one added is the outermost
func WithMiddleware(m Middleware) OptionFn {
	return func(o *Opts) {
		o.middlewares = append(o.middlewares, m)
	}
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	noWebConfig := ""
	return Opts{
		logger: slog.Default(),
		webConfig: &web.FlagConfig{
			WebListenAddresses: &[]string{config.DefaultPort},
			WebConfigFile:      &noWebConfig,
		},
	}
}

// NewAPIServer creates a new APIServer
func NewAPIServer(applyOpts ...OptionFn) *APIServer {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	mux := http.NewServeMux()
	var handler http.Handler = mux
	for i := len(opts.middlewares) - 1; i >= 0; i-- {
		handler = opts.middlewares[i](handler)
	}

	return &APIServer{
		logger:    opts.logger.With("service", "api-server"),
		mux:       mux,
		server:    &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		webConfig: opts.webConfig,
	}
}

func (s *APIServer) Name() string {
	return "api-server"
}

// Handler returns the root handler including middlewares
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Init() error {
	if len(*s.webConfig.WebListenAddresses) == 0 {
		return fmt.Errorf("no listening address provided")
	}
	s.mux.HandleFunc("/{$}", s.landingPage)
	return nil
}

// landingPage lists every registered endpoint
func (s *APIServer) landingPage(w http.ResponseWriter, _ *http.Request) {
	items := ""
	for _, e := range s.routes {
		items += fmt.Sprintf("\t<li><a href=%q>%s</a> %s</li>\n",
			e.path, html.EscapeString(e.summary), html.EscapeString(e.description))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := fmt.Fprintf(w, `<html>
<head><title>Carbon Tracker</title></head>
<body>
<h1>Carbon Tracker</h1>
<p>Available endpoints:</p>
<ul>
%s</ul>
</body>
</html>`, items)
	if err != nil {
		s.logger.Error("failed to write landing page", "error", err)
	}
}

func (s *APIServer) Run(ctx context.Context) error {
	s.logger.Info("Running api server", "addresses", *s.webConfig.WebListenAddresses)
	errCh := make(chan error, 1)
	go func() {
		s.serving.Store(true)
		errCh <- web.ListenAndServe(s.server, s.webConfig, s.logger)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down api server on context done")
		return nil

	case err := <-errCh:
		s.serving.Store(false)
		s.logger.Error("api server returned an error", "error", err)
		return err
	}
}

// IsReady reports whether the server has been started and has not failed
func (s *APIServer) IsReady() bool {
	return s.serving.Load()
}

func (s *APIServer) Shutdown() error {
	s.logger.Info("shutting down api server on request")
	s.serving.Store(false)

	// NOTE: ensure http server shuts down within 5 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Register adds handler at endpoint and lists it on the landing page
func (s *APIServer) Register(endpoint, summary, description string, handler http.Handler) error {
	s.logger.Debug("Endpoint Registered", "endpoint", endpoint)
	s.mux.Handle(endpoint, handler)
	s.routes = append(s.routes, route{endpoint, summary, description})
	return nil
}
