package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/felixgeelhaar/compose-go"
)

// Envelope is the wire form of an inbound message.
type Envelope struct {
	ID      string            `json:"id,omitempty"`
	Op      string            `json:"op"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Reply is the wire form of an outbound result.
type Reply struct {
	ID     string      `json:"id,omitempty"`
	Result any         `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
}

// ReplyError describes a failed dispatch. Code follows StatusCode.
type ReplyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the pipeline context for one envelope received over a
// message-oriented transport.
type Message struct {
	ID      string
	Op      string
	Payload json.RawMessage
	Headers map[string]string

	mu  sync.Mutex
	ctx context.Context
}

// NewMessage creates a Message from an envelope.
func NewMessage(ctx context.Context, env Envelope) *Message {
	return &Message{
		ID:      env.ID,
		Op:      env.Op,
		Payload: env.Payload,
		Headers: env.Headers,
		ctx:     ctx,
	}
}

// Context returns the message's context.Context.
func (m *Message) Context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// SetContext replaces the context.Context seen by later units.
func (m *Message) SetContext(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
}

// Operation returns the envelope's op.
func (m *Message) Operation() string { return m.Op }

// Header returns the named envelope header.
func (m *Message) Header(name string) string { return m.Headers[name] }

// Size returns the payload length in bytes.
func (m *Message) Size() int64 { return int64(len(m.Payload)) }

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// replyTo builds the reply for a settled dispatch of id.
func replyTo[U any](id string, v U, err error) Reply {
	if err != nil {
		status := StatusCode(err)
		return Reply{ID: id, Error: &ReplyError{Code: status, Message: publicMessage(err, status)}}
	}
	return Reply{ID: id, Result: v}
}

// invalidEnvelope is the reply for input that is not an Envelope.
func invalidEnvelope(err error) Reply {
	return Reply{Error: &ReplyError{Code: http.StatusBadRequest, Message: "invalid message: " + err.Error()}}
}

// messageDispatcher pairs a dispatcher with its finalizer.
type messageDispatcher[U any] struct {
	d         *compose.Dispatcher[*Message, U]
	finalizer compose.Middleware[*Message, U]
}

// handle decodes raw and dispatches it. ok is false when raw is not a valid
// envelope, in which case the returned future is nil and reply holds the
// error.
func (md messageDispatcher[U]) handle(ctx context.Context, raw []byte) (id string, f *compose.Future[U], reply Reply, ok bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, invalidEnvelope(err), false
	}
	return env.ID, md.d.Dispatch(NewMessage(ctx, env), md.finalizer), Reply{}, true
}

// serve dispatches raw and waits for its reply.
func (md messageDispatcher[U]) serve(ctx context.Context, raw []byte) Reply {
	id, f, reply, ok := md.handle(ctx, raw)
	if !ok {
		return reply
	}
	v, err := f.Await(ctx)
	return replyTo(id, v, err)
}
