package auth

import (
	"context"
	"crypto/subtle"
)

// StaticAuthenticator checks keys against a fixed list. With an empty list
// it accepts any well-formed key, which is only meant for local use.
type StaticAuthenticator struct {
	keys []string
}

func NewStaticAuthenticator(keys ...string) *StaticAuthenticator {
	return &StaticAuthenticator{keys: keys}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Caller, error) {
	token, err := ParseBearer(token)
	if err != nil {
		return nil, err
	}
	if len(a.keys) == 0 {
		return &Caller{ClientID: "static-" + token[:prefixLen]}, nil
	}
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			return &Caller{ClientID: "static-" + token[:prefixLen]}, nil
		}
	}
	return nil, ErrUnauthenticated
}
