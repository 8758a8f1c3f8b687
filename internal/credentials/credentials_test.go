package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorsCarryPrefixes(t *testing.T) {
	cases := []struct {
		name     string
		generate func() (string, error)
		prefix   string
		hexLen   int
	}{
		{"client id", NewClientID, ClientIDPrefix, 32},
		{"client secret", NewClientSecret, ClientSecretPrefix, 64},
		{"authorization code", NewAuthorizationCode, CodePrefix, 64},
		{"access token", NewAccessToken, AccessTokenPrefix, 64},
		{"refresh token", NewRefreshToken, RefreshTokenPrefix, 96},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, err := tc.generate()
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(value, tc.prefix))

			suffix := strings.TrimPrefix(value, tc.prefix)
			require.Len(t, suffix, tc.hexLen)
			require.Regexp(t, "^[0-9a-f]+$", suffix)
		})
	}
}

func TestGeneratorsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		value, err := NewRefreshToken()
		require.NoError(t, err)
		_, dup := seen[value]
		require.False(t, dup)
		seen[value] = struct{}{}
	}
}

func TestHashIsStableAndOpaque(t *testing.T) {
	token, err := NewAccessToken()
	require.NoError(t, err)

	first := Hash(token)
	require.Equal(t, first, Hash(token))
	require.Len(t, first, 64)
	require.NotContains(t, first, token)

	other, err := NewAccessToken()
	require.NoError(t, err)
	require.NotEqual(t, first, Hash(other))
}
