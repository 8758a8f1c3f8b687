package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

func TestProjectUserMissingUserRecord(t *testing.T) {
	auth := store.Authorization{
		UserID:        uuid.New(),
		GrantedScopes: []string{scopes.ProfileRead, scopes.EmailRead},
		CreatedAt:     time.Now(),
	}

	// A grant can outlive the user record; the row still lists the grant
	// but discloses no profile data.
	out := ProjectUser(nil, auth)
	require.Equal(t, auth.UserID, out.UserID)
	require.Equal(t, auth.GrantedScopes, out.GrantedScopes)
	require.Nil(t, out.Username)
	require.Nil(t, out.Email)
}

func TestProjectUserWriteScopesDiscloseNothing(t *testing.T) {
	user := &store.User{ID: uuid.New(), Username: "ada", Email: "ada@example.com"}
	auth := store.Authorization{
		UserID:        user.ID,
		GrantedScopes: []string{scopes.ProfileWrite, scopes.LinksWrite},
	}

	out := ProjectUser(user, auth)
	require.Nil(t, out.Username)
	require.Nil(t, out.Name)
	require.Nil(t, out.AvatarURL)
	require.Nil(t, out.Email)
}
