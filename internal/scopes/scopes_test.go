package scopes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	for _, id := range All() {
		require.True(t, Valid(id))
	}
	require.False(t, Valid("admin"))
	require.False(t, Valid("profile:admin"))
	require.False(t, Valid(""))
}

func TestDescribeCoversCatalog(t *testing.T) {
	for _, id := range All() {
		require.NotEmpty(t, Describe(id))
	}
	require.Empty(t, Describe("unknown"))
}

func TestParse(t *testing.T) {
	t.Run("splits on whitespace", func(t *testing.T) {
		require.Equal(t, []string{"profile:read", "email:read"}, Parse("profile:read email:read"))
	})
	t.Run("dedupes preserving first-seen order", func(t *testing.T) {
		require.Equal(t, []string{"email:read", "profile:read"}, Parse("email:read profile:read email:read"))
	})
	t.Run("drops empty segments", func(t *testing.T) {
		require.Equal(t, []string{"links:read"}, Parse("  links:read  "))
	})
	t.Run("empty input yields nil", func(t *testing.T) {
		require.Nil(t, Parse(""))
		require.Nil(t, Parse("   "))
	})
}

func TestJoinRoundTrip(t *testing.T) {
	require.Equal(t, "profile:read email:read", Join(Parse("profile:read email:read")))
}

func TestCoveredBy(t *testing.T) {
	granted := []string{ProfileRead, EmailRead}
	require.True(t, CoveredBy([]string{ProfileRead}, granted))
	require.True(t, CoveredBy([]string{ProfileRead, EmailRead}, granted))
	require.True(t, CoveredBy(nil, granted))
	require.False(t, CoveredBy([]string{ProfileWrite}, granted))
	require.False(t, CoveredBy([]string{ProfileRead, LinksWrite}, granted))
}
