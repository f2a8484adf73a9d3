package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated player. Users are created on first
// login and keyed by the identifier the auth provider hands back.
type User struct {
	ID          uuid.UUID `json:"id"`
	ProviderUID string    `json:"-"` // never expose the provider identity
	Nickname    string    `json:"nickname"`
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserProfile is the safe-to-expose projection of User embedded in
// room snapshots and division results.
type UserProfile struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatarUrl"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
	}
}
