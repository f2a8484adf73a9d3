package domain

import "github.com/google/uuid"

// TeamMember is the per-member projection stored inside a division result.
type TeamMember struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatarUrl"`
	Labels    []Label   `json:"labels"`
}

// DivisionResult holds the two teams produced by a divide, in the order
// the solver placed the members.
type DivisionResult struct {
	TeamA []TeamMember `json:"teamA"`
	TeamB []TeamMember `json:"teamB"`
}

// RebuildDivision reconstructs a division result from the team fields on
// the memberships, in join order. Used when the cached result is absent.
func (r *Room) RebuildDivision() *DivisionResult {
	res := &DivisionResult{
		TeamA: []TeamMember{},
		TeamB: []TeamMember{},
	}
	for i := range r.Members {
		m := &r.Members[i]
		tm := TeamMember{ID: m.UserID, Labels: m.Labels}
		if tm.Labels == nil {
			tm.Labels = []Label{}
		}
		if m.User != nil {
			tm.Nickname = m.User.Nickname
			tm.AvatarURL = m.User.AvatarURL
		}
		switch m.Team {
		case TeamA:
			res.TeamA = append(res.TeamA, tm)
		case TeamB:
			res.TeamB = append(res.TeamB, tm)
		}
	}
	return res
}
