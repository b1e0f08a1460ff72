package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Schema creates the client table the Postgres authenticator reads.
const Schema = `
CREATE TABLE IF NOT EXISTS gateway_clients (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name           TEXT NOT NULL,
	api_key_prefix TEXT NOT NULL UNIQUE,
	api_key_hash   TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked_at     TIMESTAMPTZ
)`

// ClientStore abstracts DB queries for testability.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error)
}

type clientRow struct {
	ClientID   string
	Name       string
	APIKeyHash string
}

// Client is a row of gateway_clients without its key hash.
type Client struct {
	ID        string
	Name      string
	KeyPrefix string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// ClientAdmin manages gateway_clients rows.
type ClientAdmin struct {
	db *sql.DB
}

// NewClientAdmin wraps a Postgres handle opened with the pgx driver.
func NewClientAdmin(db *sql.DB) *ClientAdmin {
	return &ClientAdmin{db: db}
}

// EnsureSchema creates gateway_clients if it does not exist.
func (s *ClientAdmin) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (s *ClientAdmin) LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash
		FROM gateway_clients
		WHERE api_key_prefix = $1 AND revoked_at IS NULL
	`, prefix)

	var r clientRow
	if err := row.Scan(&r.ClientID, &r.Name, &r.APIKeyHash); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateClient inserts a client and returns it with its plaintext key,
// which is not stored and cannot be recovered later.
func (s *ClientAdmin) CreateClient(ctx context.Context, name string) (*Client, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	c := Client{Name: name, KeyPrefix: keyPrefix}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO gateway_clients (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		name, keyHash, keyPrefix,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}
	return &c, fullKey, nil
}

// ListClients returns all clients, newest first.
func (s *ClientAdmin) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_prefix, created_at, revoked_at
		FROM gateway_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.KeyPrefix, &c.CreatedAt, &c.RevokedAt); err != nil {
			return nil, fmt.Errorf("ListClients: %w", err)
		}
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	return clients, nil
}

// RevokeClient marks a client's key unusable. Cached entries expire on
// their own TTL.
func (s *ClientAdmin) RevokeClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE gateway_clients SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("RevokeClient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RevokeClient: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("RevokeClient: %w", sql.ErrNoRows)
	}
	return nil
}

// GenerateAPIKey creates a new sgk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error).
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return fullKey, string(hashBytes), fullKey[:prefixLen], nil
}

// PostgresAuthenticator validates API keys against gateway_clients.
type PostgresAuthenticator struct {
	store    ClientStore
	cache    *AuthCache
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	// FailOpen admits a well-formed key as an anonymous caller when the
	// store cannot be reached. A wrong key is always rejected.
	FailOpen bool
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return NewPostgresAuthenticatorWithStore(NewClientAdmin(cfg.DB), cfg.CacheTTL, cfg.FailOpen, cfg.Logger)
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store ClientStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    NewAuthCache(cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*Caller, error) {
	token, err := ParseBearer(token)
	if err != nil {
		return nil, err
	}

	cached := a.cache.Get(token)
	if cached.Hit {
		if cached.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cached.Caller, nil
	}

	caller, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		if a.failOpen {
			a.logger.Warn("auth store unavailable, degrading to fail-open", zap.Error(err))
			return &Caller{ClientID: "unknown"}, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, caller)
	return caller, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*Caller, error) {
	row, err := a.store.LookupByPrefix(ctx, token[:prefixLen])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}
	return &Caller{ClientID: row.ClientID, Name: row.Name}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	caller, err := a.authenticateFromDB(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		// revoked or rotated since it was cached
		a.cache.Delete(token)
		return
	}
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(token, caller)
}
