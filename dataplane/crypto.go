// Package dataplane implements the deployment router and the authentication
// machinery for HYBRID workspaces: envelope encryption of stored workspace
// secrets and Ed25519-signed bearer tokens for the data plane relay.
package dataplane

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// aeadKeyEnv names the environment variable holding the process-wide
// symmetric key: 64 hex characters (32 bytes).
const aeadKeyEnv = "AEAD_SECRET_KEY"

func keyFromEnv() ([]byte, error) {
	keyHex := os.Getenv(aeadKeyEnv)
	if keyHex == "" {
		return nil, fmt.Errorf("%s environment variable not set", aeadKeyEnv)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s from hex: %w", aeadKeyEnv, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%s must be 32 bytes (64 hex characters), got %d bytes", aeadKeyEnv, len(key))
	}
	return key, nil
}

// EncryptWorkspaceString encrypts a workspace secret with XChaCha20-Poly1305,
// binding the workspace id as additional authenticated data. It returns the
// hex-encoded nonce and ciphertext.
func EncryptWorkspaceString(workspaceID uuid.UUID, value string) (nonceHex, ciphertextHex string, err error) {
	key, err := keyFromEnv()
	if err != nil {
		return "", "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", err
	}

	aad := []byte(workspaceID.String())
	ciphertext := aead.Seal(nil, nonce, []byte(value), aad)

	return hex.EncodeToString(nonce), hex.EncodeToString(ciphertext), nil
}

// DecryptWorkspaceString reverses EncryptWorkspaceString. Decryption fails if
// the ciphertext was sealed for a different workspace.
func DecryptWorkspaceString(workspaceID uuid.UUID, nonceHex, ciphertextHex string) (string, error) {
	key, err := keyFromEnv()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce from hex: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("invalid nonce length, expected %d bytes", chacha20poly1305.NonceSizeX)
	}
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext from hex: %w", err)
	}

	aad := []byte(workspaceID.String())
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt (authentication failed or corrupted data)")
	}

	return string(plaintext), nil
}
