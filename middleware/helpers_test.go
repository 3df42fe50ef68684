package middleware

import (
	"context"
	"sync"
	"testing"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/composetest"
)

type call = composetest.Context

func newCall(t *testing.T, op string) *call {
	return composetest.NewContext(t.Context(), op)
}

// dispatch composes units and runs them against c.
func dispatch[U any](t *testing.T, c *call, units ...compose.Middleware[*call, U]) (U, error) {
	t.Helper()
	d := compose.MustCompose(units)
	return composetest.Wait(t, d.Dispatch(c, nil))
}

func respond[U any](v U) compose.Middleware[*call, U] {
	return func(*call, compose.Next[U]) compose.Result[U] {
		return compose.Value(v)
	}
}

func fail[U any](err error) compose.Middleware[*call, U] {
	return func(*call, compose.Next[U]) compose.Result[U] {
		return compose.Fail[U](err)
	}
}

// capture records the context.Context seen at its position in the chain.
func capture[U any](dst *context.Context) compose.Middleware[*call, U] {
	return func(c *call, next compose.Next[U]) compose.Result[U] {
		*dst = c.Context()
		return compose.Async(next())
	}
}

// headerCall adds headers and a payload size to the test context.
type headerCall struct {
	call    *call
	headers map[string]string
	size    int64
}

func (h *headerCall) Context() context.Context       { return h.call.Context() }
func (h *headerCall) SetContext(ctx context.Context) { h.call.SetContext(ctx) }
func (h *headerCall) Operation() string              { return h.call.Operation() }
func (h *headerCall) Header(name string) string      { return h.headers[name] }
func (h *headerCall) Size() int64                    { return h.size }

type logEntry struct {
	level   string
	message string
	fields  []compose.Field
}

// mockLogger captures log calls for testing.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) add(level, msg string, fields []compose.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: msg, fields: fields})
}

func (l *mockLogger) Info(msg string, fields ...compose.Field)  { l.add("info", msg, fields) }
func (l *mockLogger) Error(msg string, fields ...compose.Field) { l.add("error", msg, fields) }
func (l *mockLogger) Debug(msg string, fields ...compose.Field) { l.add("debug", msg, fields) }
func (l *mockLogger) Warn(msg string, fields ...compose.Field)  { l.add("warn", msg, fields) }

func (l *mockLogger) all() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

func (e logEntry) field(key string) (any, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}
