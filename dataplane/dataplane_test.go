package dataplane

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/app-server/db"
)

const testAEADKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundtrip(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	workspaceID := uuid.New()
	url := "https://dp.example:4000"

	nonce, encrypted, err := EncryptWorkspaceString(workspaceID, url)
	require.NoError(t, err)

	decrypted, err := DecryptWorkspaceString(workspaceID, nonce, encrypted)
	require.NoError(t, err)
	assert.Equal(t, url, decrypted)
}

func TestDecryptWithWrongWorkspaceIDFails(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	workspaceID := uuid.New()
	nonce, encrypted, err := EncryptWorkspaceString(workspaceID, "https://data-plane.example.com")
	require.NoError(t, err)

	_, err = DecryptWorkspaceString(uuid.New(), nonce, encrypted)
	assert.Error(t, err)
}

func TestEncryptRequiresKey(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", "")

	_, _, err := EncryptWorkspaceString(uuid.New(), "v")
	assert.Error(t, err)
}

// newTestDeployment builds a HYBRID deployment with a freshly generated
// signing key, returning the matching public key for verification.
func newTestDeployment(t *testing.T) (*db.WorkspaceDeployment, ed25519.PublicKey) {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	workspaceID := uuid.New()
	keyNonce, keyCiphertext, err := EncryptWorkspaceString(
		workspaceID, base64.StdEncoding.EncodeToString(privateKey))
	require.NoError(t, err)

	publicKeyB64 := base64.StdEncoding.EncodeToString(publicKey)
	return &db.WorkspaceDeployment{
		WorkspaceID:     workspaceID,
		Mode:            db.DeploymentModeHybrid,
		PrivateKey:      &keyCiphertext,
		PrivateKeyNonce: &keyNonce,
		PublicKey:       &publicKeyB64,
	}, publicKey
}

func TestGenerateAuthToken_FormatAndSignature(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	config, publicKey := newTestDeployment(t)
	minter := NewTokenMinter()

	before := time.Now().Unix()
	token, err := minter.GenerateAuthToken(config)
	require.NoError(t, err)
	after := time.Now().Unix()

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	assert.True(t, ed25519.Verify(publicKey, payload, signature))

	fields := strings.Split(string(payload), ":")
	require.Len(t, fields, 3)
	assert.Equal(t, config.WorkspaceID.String(), fields[0])

	iat, err := strconv.ParseInt(fields[1], 10, 64)
	require.NoError(t, err)
	exp, err := strconv.ParseInt(fields[2], 10, 64)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, iat, before)
	assert.LessOrEqual(t, iat, after)
	assert.Equal(t, iat+900, exp)
}

func TestGenerateAuthToken_CachedWithinWindow(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	config, _ := newTestDeployment(t)
	minter := NewTokenMinter()

	first, err := minter.GenerateAuthToken(config)
	require.NoError(t, err)
	second, err := minter.GenerateAuthToken(config)
	require.NoError(t, err)
	assert.Equal(t, first, second, "token should be reused within the cache window")
}

func TestGenerateAuthToken_RefreshAfterWindow(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	config, _ := newTestDeployment(t)
	minter := NewTokenMinter()

	current := time.Now()
	minter.now = func() time.Time { return current }

	first, err := minter.GenerateAuthToken(config)
	require.NoError(t, err)

	current = current.Add(721 * time.Second)
	second, err := minter.GenerateAuthToken(config)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "token should be re-minted once the cache window passes")
}

func TestGenerateAuthToken_MissingKey(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	config := &db.WorkspaceDeployment{WorkspaceID: uuid.New(), Mode: db.DeploymentModeHybrid}
	_, err := NewTokenMinter().GenerateAuthToken(config)
	assert.Error(t, err)
}

func TestGenerateAuthToken_PerWorkspaceKeys(t *testing.T) {
	t.Setenv("AEAD_SECRET_KEY", testAEADKey)

	a, publicA := newTestDeployment(t)
	b, publicB := newTestDeployment(t)
	minter := NewTokenMinter()

	tokenA, err := minter.GenerateAuthToken(a)
	require.NoError(t, err)
	tokenB, err := minter.GenerateAuthToken(b)
	require.NoError(t, err)

	verify := func(token string, key ed25519.PublicKey) bool {
		parts := strings.Split(token, ".")
		payload, _ := base64.RawURLEncoding.DecodeString(parts[0])
		signature, _ := base64.RawURLEncoding.DecodeString(parts[1])
		return ed25519.Verify(key, payload, signature)
	}

	assert.True(t, verify(tokenA, publicA))
	assert.True(t, verify(tokenB, publicB))
	assert.False(t, verify(tokenA, publicB), fmt.Sprintf("workspace %s token must not verify under another workspace's key", a.WorkspaceID))
}
