package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

// AuthorizedUser is one end-user's row in a client's authorized-user list.
// Fields not permitted by that user's specific grant are nil, never omitted
// and never silently populated.
type AuthorizedUser struct {
	UserID        uuid.UUID `json:"user_id"`
	GrantedScopes []string  `json:"granted_scopes"`
	AuthorizedAt  time.Time `json:"authorized_at"`
	Username      *string   `json:"username"`
	Name          *string   `json:"name"`
	AvatarURL     *string   `json:"avatar_url"`
	Email         *string   `json:"email"`
}

// ProjectUser applies the per-grant disclosure rule to a user record. It is
// a pure function: the decision depends only on the grant's scope set, never
// on the client's request ceiling, so one user granting email:read can never
// expose another user who did not.
func ProjectUser(user *store.User, auth store.Authorization) AuthorizedUser {
	out := AuthorizedUser{
		UserID:        auth.UserID,
		GrantedScopes: append([]string(nil), auth.GrantedScopes...),
		AuthorizedAt:  auth.CreatedAt,
	}
	if user == nil {
		return out
	}
	if scopes.Contains(auth.GrantedScopes, scopes.ProfileRead) {
		out.Username = ptr(user.Username)
		out.Name = ptr(user.Name)
		out.AvatarURL = ptr(user.AvatarURL)
	}
	if scopes.Contains(auth.GrantedScopes, scopes.EmailRead) {
		out.Email = ptr(user.Email)
	}
	return out
}

func ptr(s string) *string {
	return &s
}
