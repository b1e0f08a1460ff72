package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests.
const testAPIKey = "sgk_test_valid_key_1234567890abcdef"

func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements ClientStore for testing.
type mockStore struct {
	row       *clientRow
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*clientRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	store := &mockStore{row: &clientRow{ClientID: "c-abc", Name: "reporting", APIKeyHash: testHash(t)}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	caller, err := a.Authenticate(context.Background(), "Bearer "+testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if caller.ClientID != "c-abc" || caller.Name != "reporting" {
		t.Errorf("unexpected caller %+v", caller)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", store.callCount.Load())
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	store := &mockStore{row: &clientRow{ClientID: "c-abc", APIKeyHash: testHash(t)}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	caller, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", store.callCount.Load())
	}
	if caller.ClientID != "c-abc" {
		t.Errorf("expected c-abc from cache, got %s", caller.ClientID)
	}
}

func TestPostgresAuth_WrongKey(t *testing.T) {
	store := &mockStore{row: &clientRow{ClientID: "c-abc", APIKeyHash: testHash(t)}}
	// fail-open must not admit a key that does not match
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	_, err := a.Authenticate(context.Background(), "sgk_test_wrong_key_doesnt_match")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuth_UnknownPrefix(t *testing.T) {
	store := &mockStore{err: sql.ErrNoRows}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuth_StoreDown_FailClosed(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error when store is down and fail-open is off")
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("store failure should not be reported as bad credentials")
	}
}

func TestPostgresAuth_StoreDown_FailOpen(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	caller, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if caller.ClientID != "unknown" {
		t.Fatalf("expected unknown caller, got %s", caller.ClientID)
	}
}

func TestPostgresAuth_MalformedKeySkipsStore(t *testing.T) {
	store := &mockStore{}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), "Bearer tsk_other_product"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
	if store.callCount.Load() != 0 {
		t.Fatalf("expected no DB call, got %d", store.callCount.Load())
	}
}

func TestPostgresAuth_StaleEntryRevokedIsDropped(t *testing.T) {
	store := &mockStore{row: &clientRow{ClientID: "c-abc", APIKeyHash: testHash(t)}}
	a := NewPostgresAuthenticatorWithStore(store, time.Millisecond, false, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	// key revoked: lookups now find nothing
	store.row = nil
	store.err = sql.ErrNoRows
	a.refreshInBackground(testAPIKey)

	if a.cache.Get(testAPIKey).Hit {
		t.Fatal("expected revoked key evicted from cache")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, KeyPrefix) || len(key) != len(KeyPrefix)+64 {
		t.Fatalf("unexpected key %q", key)
	}
	if prefix != key[:8] {
		t.Fatalf("prefix %q does not match key", prefix)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Fatalf("hash does not match key: %v", err)
	}
	if _, err := ParseBearer("Bearer " + key); err != nil {
		t.Fatalf("generated key rejected by ParseBearer: %v", err)
	}
}

func TestClientAdmin_CreateAndLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	admin := NewClientAdmin(db)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO gateway_clients").
		WithArgs("etl", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("c-1", created))

	client, key, err := admin.CreateClient(context.Background(), "etl")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if client.ID != "c-1" || client.Name != "etl" || !client.CreatedAt.Equal(created) {
		t.Fatalf("unexpected client %+v", client)
	}
	if client.KeyPrefix != key[:8] {
		t.Fatalf("prefix %q does not match key %q", client.KeyPrefix, key)
	}

	mock.ExpectQuery("FROM gateway_clients\\s+WHERE api_key_prefix = \\$1 AND revoked_at IS NULL").
		WithArgs(client.KeyPrefix).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "api_key_hash"}).AddRow("c-1", "etl", "hash"))

	row, err := admin.LookupByPrefix(context.Background(), client.KeyPrefix)
	if err != nil {
		t.Fatalf("LookupByPrefix: %v", err)
	}
	if row.ClientID != "c-1" || row.APIKeyHash != "hash" {
		t.Fatalf("unexpected row %+v", row)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestClientAdmin_ListAndRevoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	admin := NewClientAdmin(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, api_key_prefix, created_at, revoked_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "api_key_prefix", "created_at", "revoked_at"}).
			AddRow("c-2", "bi", "sgk_bbbb", now, nil).
			AddRow("c-1", "etl", "sgk_aaaa", now.Add(-time.Hour), now))

	clients, err := admin.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].RevokedAt != nil || clients[1].RevokedAt == nil {
		t.Fatalf("unexpected revoked state: %+v, %+v", clients[0], clients[1])
	}

	mock.ExpectExec("UPDATE gateway_clients SET revoked_at").WithArgs("c-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := admin.RevokeClient(context.Background(), "c-2"); err != nil {
		t.Fatalf("RevokeClient: %v", err)
	}

	mock.ExpectExec("UPDATE gateway_clients SET revoked_at").WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := admin.RevokeClient(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
