package middleware

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/compose-go"
)

// Identity represents an authenticated identity.
type Identity struct {
	// ID is a unique identifier for the identity (e.g., user ID, API key ID).
	ID string
	// Name is a human-readable name for the identity.
	Name string
	// Metadata contains additional identity information.
	Metadata map[string]any
}

// identityContextKey is the context key for storing the identity.
type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// ContextWithIdentity returns a new context with the identity attached.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// AuthOption configures the authentication middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	logger         compose.Logger
	skipOperations map[string]bool
}

// WithAuthLogger sets the logger for auth events.
func WithAuthLogger(l compose.Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = l
	}
}

// WithAuthSkipOperations specifies operations that don't require authentication.
func WithAuthSkipOperations(operations ...string) AuthOption {
	return func(c *authConfig) {
		for _, op := range operations {
			c.skipOperations[op] = true
		}
	}
}

// Authenticator validates the credentials carried by c. It returns the
// identity on success, nil when no valid credentials are present, or an error
// when validation itself failed.
type Authenticator[T any] func(c T) (*Identity, error)

// Auth returns middleware that authenticates calls using the provided
// authenticator. Unauthenticated calls fail with ErrUnauthorized; otherwise
// the identity is stored in the call's context for downstream units.
func Auth[T Carrier, U any](authenticator Authenticator[T], opts ...AuthOption) compose.Middleware[T, U] {
	cfg := &authConfig{
		skipOperations: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c T, next compose.Next[U]) compose.Result[U] {
		op := OperationOf(c)
		if cfg.skipOperations[op] {
			return compose.Async(next())
		}

		identity, err := authenticator(c)
		if err != nil || identity == nil {
			if cfg.logger != nil {
				fields := []compose.Field{compose.F("operation", op)}
				if err != nil {
					fields = append(fields, compose.F("error", err.Error()))
				}
				cfg.logger.Warn("authentication failed", fields...)
			}
			return compose.Fail[U](ErrUnauthorized)
		}

		if cfg.logger != nil {
			cfg.logger.Debug("authenticated",
				compose.F("operation", op),
				compose.F("identity", identity.ID),
			)
		}

		c.SetContext(ContextWithIdentity(c.Context(), identity))
		return compose.Async(next())
	}
}

// APIKeyAuthenticator creates an authenticator that reads an API key from the
// named header. The keyValidator function should return the identity for a
// valid key, or nil for invalid.
func APIKeyAuthenticator[T HeaderCarrier](headerName string, keyValidator func(key string) *Identity) Authenticator[T] {
	return func(c T) (*Identity, error) {
		key := c.Header(headerName)
		if key == "" {
			key = c.Header(strings.ToLower(headerName))
		}
		if key == "" {
			return nil, nil
		}

		return keyValidator(key), nil
	}
}

// BearerTokenAuthenticator creates an authenticator that validates bearer
// tokens from the Authorization header.
func BearerTokenAuthenticator[T HeaderCarrier](tokenValidator func(token string) *Identity) Authenticator[T] {
	return func(c T) (*Identity, error) {
		auth := c.Header("Authorization")
		if auth == "" {
			auth = c.Header("authorization")
		}

		const prefix = "Bearer "
		token, ok := strings.CutPrefix(auth, prefix)
		if !ok || token == "" {
			return nil, nil
		}

		return tokenValidator(token), nil
	}
}

// StaticAPIKeys creates a simple key validator from a map of key -> identity.
func StaticAPIKeys(keys map[string]*Identity) func(string) *Identity {
	return func(key string) *Identity {
		return keys[key]
	}
}

// StaticTokens creates a simple token validator from a map of token -> identity.
func StaticTokens(tokens map[string]*Identity) func(string) *Identity {
	return func(token string) *Identity {
		return tokens[token]
	}
}

// ChainAuthenticators chains multiple authenticators, returning the first successful identity.
func ChainAuthenticators[T any](authenticators ...Authenticator[T]) Authenticator[T] {
	return func(c T) (*Identity, error) {
		for _, auth := range authenticators {
			identity, err := auth(c)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
		}
		return nil, nil
	}
}
