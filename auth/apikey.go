// Package auth provides project API key authentication: bearer-token
// extraction from HTTP headers and gRPC metadata, SHA3-256 key hashing, and
// a cached by-hash key lookup against the relational store.
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/sha3"
	"google.golang.org/grpc/metadata"

	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/db"
)

// ErrUnauthenticated is returned when a bearer token is missing, malformed,
// or does not match a stored key.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// HashAPIKey returns the lowercase hex SHA3-256 digest of a raw API key.
// Only the hash is ever stored or used for lookups.
func HashAPIKey(raw string) string {
	digest := sha3.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}

// ExtractBearerToken pulls the bearer token out of an Authorization header.
// The scheme comparison is case-insensitive.
func ExtractBearerToken(header http.Header) (string, error) {
	value := header.Get("Authorization")
	if value == "" {
		return "", ErrUnauthenticated
	}
	return parseBearer(value)
}

// ExtractBearerTokenFromMetadata pulls the bearer token out of gRPC request
// metadata.
func ExtractBearerTokenFromMetadata(md metadata.MD) (string, error) {
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrUnauthenticated
	}
	return parseBearer(values[0])
}

func parseBearer(value string) (string, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrUnauthenticated
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// GetProjectAPIKey resolves a raw API key to its stored record. The lookup
// is by hash only, read through the cache under project_api_key:{hash}.
func GetProjectAPIKey(ctx context.Context, d *db.DB, c cache.Cache, raw string) (*db.ProjectAPIKey, error) {
	hash := HashAPIKey(raw)
	cacheKey := fmt.Sprintf("%s:%s", cache.ProjectAPIKeyCacheKey, hash)

	var cached db.ProjectAPIKey
	if found, err := c.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	key, err := db.GetProjectAPIKeyByHash(ctx, d, hash)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	// Best-effort population; a cache failure must not fail auth.
	_ = c.Insert(ctx, cacheKey, key)

	return key, nil
}

// DeleteProjectAPIKey removes the key row and invalidates its cache entry.
func DeleteProjectAPIKey(ctx context.Context, d *db.DB, c cache.Cache, hash string) error {
	if err := db.DeleteProjectAPIKey(ctx, d, hash); err != nil {
		return err
	}
	cacheKey := fmt.Sprintf("%s:%s", cache.ProjectAPIKeyCacheKey, hash)
	return c.Remove(ctx, cacheKey)
}
