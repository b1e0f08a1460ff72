// Package auth identifies callers of the network transports by API key.
package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"
)

// KeyPrefix starts every gateway API key.
const KeyPrefix = "sgk_"

// prefixLen is how much of a key is stored in clear for lookup.
const prefixLen = 8

// Authenticator resolves a bearer token to a Caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Caller, error)
}

// Caller is an authenticated client of the gateway.
type Caller struct {
	ClientID string
	Name     string
}

var (
	// ErrUnauthenticated is returned when no valid credentials are found.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidAPIKey is returned for a token that is not a gateway key.
	ErrInvalidAPIKey = errors.New("invalid API key format")
)

// ParseBearer strips the case-insensitive "Bearer " scheme from an
// Authorization value and checks the key format.
func ParseBearer(value string) (string, error) {
	token := strings.TrimSpace(value)
	if token == "" {
		return "", ErrUnauthenticated
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if len(token) < prefixLen || !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// TokenFromMetadata extracts the API key from gRPC metadata.
func TokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrUnauthenticated
	}
	return ParseBearer(values[0])
}

type callerCtxKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, c)
}

// CallerFromContext returns the caller attached by WithCaller, or nil.
func CallerFromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerCtxKey{}).(*Caller)
	return c
}

// ClientID is the caller's id, or "" when ctx carries none.
func ClientID(ctx context.Context) string {
	if c := CallerFromContext(ctx); c != nil {
		return c.ClientID
	}
	return ""
}
