package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Prefixes distinguish credential categories in logs and support tickets.
// They carry no security meaning: validation always goes through the store,
// never through prefix inspection.
const (
	ClientIDPrefix     = "wyi_client_"
	ClientSecretPrefix = "wyi_secret_"
	CodePrefix         = "wyi_code_"
	AccessTokenPrefix  = "wyi_token_"
	RefreshTokenPrefix = "wyi_refresh_"
)

// Byte lengths follow the platform's original scheme; every category clears
// 128 bits of entropy.
const (
	clientIDBytes     = 16
	clientSecretBytes = 32
	codeBytes         = 32
	accessTokenBytes  = 32
	refreshTokenBytes = 48
)

// NewClientID returns a public, opaque client identifier.
func NewClientID() (string, error) {
	return opaque(ClientIDPrefix, clientIDBytes)
}

// NewClientSecret returns a confidential client secret.
func NewClientSecret() (string, error) {
	return opaque(ClientSecretPrefix, clientSecretBytes)
}

// NewAuthorizationCode returns a single-use authorization code.
func NewAuthorizationCode() (string, error) {
	return opaque(CodePrefix, codeBytes)
}

// NewAccessToken returns an opaque bearer access token.
func NewAccessToken() (string, error) {
	return opaque(AccessTokenPrefix, accessTokenBytes)
}

// NewRefreshToken returns an opaque refresh token.
func NewRefreshToken() (string, error) {
	return opaque(RefreshTokenPrefix, refreshTokenBytes)
}

// Hash returns the hex-encoded SHA-256 fingerprint under which single-use
// credentials (codes, tokens) are persisted. The plaintext never reaches the
// store.
func Hash(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func opaque(prefix string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random credential: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
