package auth

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"Bearer sgk_abcdef123", "sgk_abcdef123", nil},
		{"bearer sgk_abcdef123", "sgk_abcdef123", nil},
		{"BEARER   sgk_abcdef123 ", "sgk_abcdef123", nil},
		{"sgk_abcdef123", "sgk_abcdef123", nil},
		{"", "", ErrUnauthenticated},
		{"Bearer tsk_abcdef123", "", ErrInvalidAPIKey},
		{"Bearer sgk_", "", ErrInvalidAPIKey},
		{"Basic dXNlcjpwYXNz", "", ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		got, err := ParseBearer(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseBearer(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBearer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer sgk_0123456789"))
	token, err := TokenFromMetadata(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token != "sgk_0123456789" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestTokenFromMetadata_Missing(t *testing.T) {
	if _, err := TokenFromMetadata(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without metadata, got %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))
	if _, err := TokenFromMetadata(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without authorization, got %v", err)
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	if CallerFromContext(ctx) != nil || ClientID(ctx) != "" {
		t.Fatal("expected no caller on a bare context")
	}

	ctx = WithCaller(ctx, &Caller{ClientID: "c-1", Name: "reporting"})
	if got := ClientID(ctx); got != "c-1" {
		t.Fatalf("expected c-1, got %q", got)
	}
	if got := CallerFromContext(ctx).Name; got != "reporting" {
		t.Fatalf("expected reporting, got %q", got)
	}
}

func TestStaticAuthenticator_AnyKey(t *testing.T) {
	a := NewStaticAuthenticator()

	caller, err := a.Authenticate(context.Background(), "Bearer sgk_devkey_1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if caller.ClientID != "static-sgk_devk" {
		t.Fatalf("unexpected client id %q", caller.ClientID)
	}

	if _, err := a.Authenticate(context.Background(), "Bearer nope"); err == nil {
		t.Fatal("expected malformed key to be rejected")
	}
}

func TestStaticAuthenticator_KeyList(t *testing.T) {
	a := NewStaticAuthenticator("sgk_allowed_one", "sgk_allowed_two")

	if _, err := a.Authenticate(context.Background(), "sgk_allowed_two"); err != nil {
		t.Fatalf("expected listed key accepted, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "sgk_not_listed"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
