package dataplane

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracefold/app-server/db"
)

// Token lifetime and cache window. Tokens are refreshed once 80% of their
// lifetime has passed, so concurrent requests within the window reuse the
// same token byte-for-byte.
const (
	tokenExpirationSecs = 900
	tokenCacheTTL       = 720 * time.Second
)

// TokenMinter mints Ed25519-signed bearer tokens for data plane requests and
// caches them per workspace.
//
// Token format: base64url(payload) "." base64url(signature), where payload is
// "{workspace_id}:{issued_at}:{expires_at}" (unix seconds).
type TokenMinter struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]cachedToken

	// now is replaceable in tests.
	now func() time.Time
}

type cachedToken struct {
	token    string
	mintedAt time.Time
}

// NewTokenMinter creates an empty per-workspace token cache.
func NewTokenMinter() *TokenMinter {
	return &TokenMinter{
		tokens: make(map[uuid.UUID]cachedToken),
		now:    time.Now,
	}
}

// GenerateAuthToken returns a signed token for the workspace, reusing the
// cached one while it remains inside the cache window.
func (m *TokenMinter) GenerateAuthToken(config *db.WorkspaceDeployment) (string, error) {
	m.mu.Lock()
	if cached, ok := m.tokens[config.WorkspaceID]; ok && m.now().Sub(cached.mintedAt) < tokenCacheTTL {
		m.mu.Unlock()
		return cached.token, nil
	}
	m.mu.Unlock()

	signingKey, err := signingKeyFromConfig(config)
	if err != nil {
		return "", err
	}

	now := m.now().Unix()
	expiresAt := now + tokenExpirationSecs

	payload := fmt.Sprintf("%s:%d:%d", config.WorkspaceID, now, expiresAt)
	signature := ed25519.Sign(signingKey, []byte(payload))

	token := fmt.Sprintf(
		"%s.%s",
		base64.RawURLEncoding.EncodeToString([]byte(payload)),
		base64.RawURLEncoding.EncodeToString(signature),
	)

	m.mu.Lock()
	m.tokens[config.WorkspaceID] = cachedToken{token: token, mintedAt: m.now()}
	m.mu.Unlock()

	return token, nil
}

// signingKeyFromConfig decrypts the workspace's stored Ed25519 private key.
func signingKeyFromConfig(config *db.WorkspaceDeployment) (ed25519.PrivateKey, error) {
	if config.PrivateKey == nil || config.PrivateKeyNonce == nil {
		return nil, fmt.Errorf("private key is not configured for workspace %s", config.WorkspaceID)
	}

	decrypted, err := DecryptWorkspaceString(config.WorkspaceID, *config.PrivateKeyNonce, *config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	keyBytes, err := base64.StdEncoding.DecodeString(decrypted)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 in private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key (expected %d bytes, got %d)", ed25519.PrivateKeySize, len(keyBytes))
	}

	return ed25519.PrivateKey(keyBytes), nil
}
