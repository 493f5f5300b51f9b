package db

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Token is a stored OAuth credential.
type Token struct {
	Access  string
	Refresh string
	Expiry  time.Time
	Scope   string
}

// TokenStore reads and writes rows of oauth_tokens. When built with a key,
// tokens are sealed with AES-256-GCM (encryption_version=1); rows written
// without a key stay readable.
type TokenStore struct {
	DB   *sql.DB
	aead cipher.AEAD
}

// NewTokenStore returns a TokenStore. base64Key may be empty to store tokens
// in plaintext; otherwise it must decode to 32 bytes.
func NewTokenStore(database *sql.DB, base64Key string) (*TokenStore, error) {
	s := &TokenStore{DB: database}
	if base64Key == "" {
		return s, nil
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if s.aead, err = cipher.NewGCM(block); err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return s, nil
}

// Encrypted reports whether new tokens are sealed.
func (s *TokenStore) Encrypted() bool { return s.aead != nil }

// Get returns the token for provider, or ErrNotFound.
func (s *TokenStore) Get(ctx context.Context, provider string) (Token, error) {
	var (
		t          Token
		access     sql.NullString
		refresh    sql.NullString
		scope      sql.NullString
		expiry     sql.NullTime
		encVersion int
	)
	err := s.DB.QueryRowContext(ctx, `SELECT access_token, refresh_token, expires_at, scope, encryption_version
		FROM oauth_tokens WHERE provider=$1`, provider).Scan(&access, &refresh, &expiry, &scope, &encVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token %s: %w", provider, err)
	}
	t.Access, t.Refresh, t.Scope, t.Expiry = access.String, refresh.String, scope.String, expiry.Time
	if encVersion == 1 {
		if s.aead == nil {
			return Token{}, fmt.Errorf("token %s is encrypted but no encryption key is configured", provider)
		}
		if t.Access, err = s.open(t.Access); err != nil {
			return Token{}, fmt.Errorf("decrypt access token: %w", err)
		}
		if t.Refresh, err = s.open(t.Refresh); err != nil {
			return Token{}, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return t, nil
}

// Upsert stores t for provider.
func (s *TokenStore) Upsert(ctx context.Context, provider string, t Token) error {
	encVersion := 0
	access, refresh := t.Access, t.Refresh
	if s.aead != nil {
		encVersion = 1
		var err error
		if access, err = s.seal(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = s.seal(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, encryption_version, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (provider) DO UPDATE SET
		  access_token=EXCLUDED.access_token,
		  refresh_token=EXCLUDED.refresh_token,
		  expires_at=EXCLUDED.expires_at,
		  scope=EXCLUDED.scope,
		  encryption_version=EXCLUDED.encryption_version,
		  updated_at=NOW()`,
		provider, access, refresh, t.Expiry, strings.TrimSpace(t.Scope), encVersion)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", provider, err)
	}
	return nil
}

// seal returns base64(nonce || ciphertext || tag). Empty input stays empty.
func (s *TokenStore) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(s.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (s *TokenStore) open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", n, len(raw))
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errors.New("decryption failed: authentication or integrity check failed")
	}
	return string(plain), nil
}

// PlaintextProviders lists providers whose stored token is not sealed.
func (s *TokenStore) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE encryption_version = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Seal rewrites a plaintext row for provider with the configured key.
func (s *TokenStore) Seal(ctx context.Context, provider string) error {
	if s.aead == nil {
		return errors.New("no encryption key configured")
	}
	t, err := s.Get(ctx, provider)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, provider, t)
}
