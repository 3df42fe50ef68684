package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/felixgeelhaar/compose-go"
)

// Stdio dispatches newline-delimited envelopes read from an input stream and
// writes one reply line per envelope. Envelopes are handled in order.
type Stdio[U any] struct {
	md  messageDispatcher[U]
	in  io.Reader
	out io.Writer

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*stdioConfig)

type stdioConfig struct {
	in  io.Reader
	out io.Writer
}

// WithStdin sets a custom input reader.
func WithStdin(r io.Reader) StdioOption {
	return func(c *stdioConfig) {
		c.in = r
	}
}

// WithStdout sets a custom output writer.
func WithStdout(w io.Writer) StdioOption {
	return func(c *stdioConfig) {
		c.out = w
	}
}

// NewStdio creates a stdio transport reading os.Stdin and writing os.Stdout.
func NewStdio[U any](d *compose.Dispatcher[*Message, U], finalizer compose.Middleware[*Message, U], opts ...StdioOption) *Stdio[U] {
	cfg := stdioConfig{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Stdio[U]{
		md:  messageDispatcher[U]{d: d, finalizer: finalizer},
		in:  cfg.in,
		out: cfg.out,
	}
}

// Serve processes input until EOF, a read error or ctx cancellation. EOF
// returns nil.
func (s *Stdio[U]) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			if err := s.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (s *Stdio[U]) handleLine(ctx context.Context, line []byte) error {
	id, f, reply, ok := s.md.handle(ctx, line)
	if ok {
		v, err := f.Await(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reply = replyTo(id, v, err)
	}
	return s.write(reply)
}

func (s *Stdio[U]) write(reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		data, err = json.Marshal(Reply{ID: reply.ID, Error: &ReplyError{Code: http.StatusInternalServerError, Message: "unencodable result"}})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(data, '\n'))
	return err
}
