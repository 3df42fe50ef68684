package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// HTTPContext is the pipeline context for one HTTP request.
type HTTPContext struct {
	Request *http.Request
	Writer  http.ResponseWriter

	mu  sync.Mutex
	ctx context.Context
	rw  *recordingWriter
}

func newHTTPContext(w http.ResponseWriter, r *http.Request) *HTTPContext {
	rw := &recordingWriter{ResponseWriter: w}
	return &HTTPContext{Request: r, Writer: rw, ctx: r.Context(), rw: rw}
}

// Context returns the request's current context.Context.
func (c *HTTPContext) Context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// SetContext replaces the context.Context seen by later units.
func (c *HTTPContext) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Operation returns the matched ServeMux pattern, or "METHOD /path" when the
// handler is not mounted on a pattern.
func (c *HTTPContext) Operation() string {
	if c.Request.Pattern != "" {
		return c.Request.Pattern
	}
	return c.Request.Method + " " + c.Request.URL.Path
}

// Header returns the named request header.
func (c *HTTPContext) Header(name string) string {
	return c.Request.Header.Get(name)
}

// Size returns the declared request body length, or 0 when unknown.
func (c *HTTPContext) Size() int64 {
	if c.Request.ContentLength < 0 {
		return 0
	}
	return c.Request.ContentLength
}

// Written reports whether a unit already wrote the response.
func (c *HTTPContext) Written() bool {
	return c.rw.written()
}

// recordingWriter remembers whether the response was started. Once the
// handler has returned it is closed and further writes fail with
// http.ErrHandlerTimeout.
type recordingWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	started  bool
	closed   bool
	detached http.Header
}

func (w *recordingWriter) Header() http.Header {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		if w.detached == nil {
			w.detached = make(http.Header)
		}
		return w.detached
	}
	return w.ResponseWriter.Header()
}

func (w *recordingWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, http.ErrHandlerTimeout
	}
	w.started = true
	return w.ResponseWriter.Write(p)
}

func (w *recordingWriter) written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// finish gives fn exclusive use of the underlying writer, then closes w.
func (w *recordingWriter) finish(fn func(rw http.ResponseWriter, started bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.ResponseWriter, w.started)
	w.closed = true
}

// ErrorEncoder writes a failed dispatch to the client.
type ErrorEncoder func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorEncoder writes {"error": "..."} with the status from StatusCode.
func DefaultErrorEncoder(w http.ResponseWriter, _ *http.Request, err error) {
	status := StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": publicMessage(err, status)})
}

// HandlerOption configures an HTTP handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	encodeError ErrorEncoder
	logger      compose.Logger
}

// WithErrorEncoder replaces DefaultErrorEncoder.
func WithErrorEncoder(enc ErrorEncoder) HandlerOption {
	return func(c *handlerConfig) {
		c.encodeError = enc
	}
}

// WithHandlerLogger sets the logger for failures that cannot be reported to
// the client.
func WithHandlerLogger(l compose.Logger) HandlerOption {
	return func(c *handlerConfig) {
		c.logger = l
	}
}

type httpHandler[U any] struct {
	d         *compose.Dispatcher[*HTTPContext, U]
	finalizer compose.Middleware[*HTTPContext, U]
	cfg       handlerConfig
}

// NewHTTPHandler returns an http.Handler that dispatches every request
// through d with finalizer as the innermost unit. A successful value is
// written as JSON unless a unit already wrote the response.
func NewHTTPHandler[U any](d *compose.Dispatcher[*HTTPContext, U], finalizer compose.Middleware[*HTTPContext, U], opts ...HandlerOption) http.Handler {
	cfg := handlerConfig{
		encodeError: DefaultErrorEncoder,
		logger:      compose.NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &httpHandler[U]{d: d, finalizer: finalizer, cfg: cfg}
}

func (h *httpHandler[U]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := newHTTPContext(w, r)

	// Await gives up when the request ends; the dispatch may still be
	// running, so the response is completed and the writer closed together.
	v, err := h.d.Dispatch(c, h.finalizer).Await(r.Context())
	c.rw.finish(func(rw http.ResponseWriter, started bool) {
		switch {
		case err != nil && started:
			h.cfg.logger.Error("dispatch failed after response started",
				compose.F("operation", c.Operation()),
				compose.F("error", err.Error()),
			)
		case err != nil:
			h.cfg.encodeError(rw, r, err)
		case !started:
			rw.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(rw).Encode(v); err != nil {
				h.cfg.logger.Error("encode response failed",
					compose.F("operation", c.Operation()),
					compose.F("error", err.Error()),
				)
			}
		}
	})
}

// HTTPServer serves an http.Handler until its context is cancelled, then
// shuts down gracefully.
type HTTPServer struct {
	addr            string
	handler         http.Handler
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	shutdown        *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
	ready      chan struct{}
}

// ServerOption configures an HTTPServer.
type ServerOption func(*HTTPServer)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *HTTPServer) {
		s.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *HTTPServer) {
		s.writeTimeout = d
	}
}

// WithShutdownTimeout bounds how long Serve waits for open connections
// after its context is cancelled.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *HTTPServer) {
		s.shutdownTimeout = d
	}
}

// WithShutdownManager drains sm before the listener is closed. Pipelines
// should include Drain(sm) so their dispatches are tracked.
func WithShutdownManager(sm *ShutdownManager) ServerOption {
	return func(s *HTTPServer) {
		s.shutdown = sm
	}
}

// NewHTTPServer creates a server for handler on addr.
func NewHTTPServer(addr string, handler http.Handler, opts ...ServerOption) *HTTPServer {
	s := &HTTPServer{
		addr:            addr,
		handler:         handler,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: 5 * time.Second,
		ready:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the configured address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// ListenAddr returns the address the server is listening on, once Ready is
// closed.
func (s *HTTPServer) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// Ready is closed once the listener is open.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens and serves until ctx is cancelled. A clean shutdown returns
// nil.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	s.mu.Lock()
	s.listenAddr = listener.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		var drainErr error
		if s.shutdown != nil {
			drainErr = s.shutdown.Shutdown(shutdownCtx)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return drainErr
	case err := <-errCh:
		return err
	}
}
