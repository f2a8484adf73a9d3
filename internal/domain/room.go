package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting"
	StatusDivided RoomStatus = "divided"
	StatusClosed  RoomStatus = "closed"
)

type Team string

const (
	TeamNone Team = "none"
	TeamA    Team = "team_a"
	TeamB    Team = "team_b"
)

const (
	MinMaxMembers     = 2
	MaxMaxMembers     = 100
	DefaultMaxMembers = 10
	MaxGameNameRunes  = 128
)

// Room is the aggregate root. It exclusively owns its memberships;
// deleting a room deletes them too.
type Room struct {
	ID             uuid.UUID       `json:"id"`
	RoomCode       string          `json:"roomCode"`
	GameName       string          `json:"gameName"`
	OwnerID        uuid.UUID       `json:"ownerId"`
	Status         RoomStatus      `json:"status"`
	MaxMembers     int             `json:"maxMembers"`
	LabelRules     LabelRules      `json:"labelRules"`
	DivisionResult *DivisionResult `json:"divisionResult,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`

	// Populated on fetch, ordered by join time.
	Members []Member `json:"members,omitempty"`
}

// Member represents a user's membership in a room.
type Member struct {
	ID       uuid.UUID `json:"id"`
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	Team     Team      `json:"team"`
	Labels   []Label   `json:"labels"`
	JoinedAt time.Time `json:"joinedAt"`

	// Populated on fetch
	User *UserProfile `json:"user,omitempty"`
}

// MemberOf returns the membership for a user, or nil.
func (r *Room) MemberOf(userID uuid.UUID) *Member {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}

func (r *Room) IsOwner(userID uuid.UUID) bool {
	return r.OwnerID == userID
}

func (r *Room) IsFull() bool {
	return len(r.Members) >= r.MaxMembers
}

// RoomSnapshot is the aggregated read model returned by the API and
// carried in published events.
type RoomSnapshot struct {
	ID          uuid.UUID        `json:"id"`
	RoomCode    string           `json:"roomCode"`
	GameName    string           `json:"gameName"`
	Status      RoomStatus       `json:"status"`
	MaxMembers  int              `json:"maxMembers"`
	OwnerID     uuid.UUID        `json:"ownerId"`
	LabelRules  LabelRules       `json:"labelRules"`
	Owner       *UserProfile     `json:"owner"`
	Members     []MemberSnapshot `json:"members"`
	MemberCount int              `json:"memberCount"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// MemberSnapshot projects a membership onto the wire. ID is the
// member's user id, which is what every member-scoped route takes.
type MemberSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatarUrl"`
	Team      Team      `json:"team"`
	Labels    []Label   `json:"labels"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Snapshot builds the read model from a fully loaded aggregate.
func (r *Room) Snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		ID:          r.ID,
		RoomCode:    r.RoomCode,
		GameName:    r.GameName,
		Status:      r.Status,
		MaxMembers:  r.MaxMembers,
		OwnerID:     r.OwnerID,
		LabelRules:  r.LabelRules,
		Members:     make([]MemberSnapshot, 0, len(r.Members)),
		MemberCount: len(r.Members),
		CreatedAt:   r.CreatedAt,
	}
	if snap.LabelRules == nil {
		snap.LabelRules = LabelRules{}
	}
	for i := range r.Members {
		m := &r.Members[i]
		ms := MemberSnapshot{
			ID:       m.UserID,
			Team:     m.Team,
			Labels:   m.Labels,
			JoinedAt: m.JoinedAt,
		}
		if ms.Labels == nil {
			ms.Labels = []Label{}
		}
		if m.User != nil {
			ms.Nickname = m.User.Nickname
			ms.AvatarURL = m.User.AvatarURL
		}
		if m.UserID == r.OwnerID && m.User != nil {
			owner := *m.User
			snap.Owner = &owner
		}
		snap.Members = append(snap.Members, ms)
	}
	return snap
}
