// Package room implements the room state machine: create, join, leave,
// label management and team division. Every mutation goes through the
// Repository; every observable transition is fanned out through the
// Publisher after the transaction commits.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/CinitSwift/divide/internal/domain"
	"github.com/CinitSwift/divide/internal/metrics"
	"github.com/CinitSwift/divide/internal/pubsub"
	"github.com/CinitSwift/divide/internal/solver"
)

// Event names delivered on room channels.
const (
	EventMemberJoined = "member-joined"
	EventMemberLeft   = "member-left"
	EventRoomUpdated  = "room-updated"
	EventRoomClosed   = "room-closed"
	EventTeamsDivided = "teams-divided"
)

// Repository is the persistence surface the service needs. Mutations must
// serialize per room and re-check their guards authoritatively.
type Repository interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	FindOwnedWaitingRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	FindJoinedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	AddMember(ctx context.Context, roomID, userID uuid.UUID) error
	// RemoveMember deletes the membership. On a divided room it also
	// rebuilds the cached division result from the remaining
	// memberships, in the same transaction, so the cache never lists a
	// departed member.
	RemoveMember(ctx context.Context, roomID, userID uuid.UUID) error
	UpdateMemberLabels(ctx context.Context, roomID, memberID uuid.UUID, labels []domain.Label) error
	UpdateRoom(ctx context.Context, room *domain.Room) error
	ApplyDivision(ctx context.Context, roomID uuid.UUID, teams map[uuid.UUID]domain.Team, result *domain.DivisionResult) error
	ResetTeams(ctx context.Context, roomID uuid.UUID) error
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
}

// Publisher fans events out to a room's subscribers. Best effort.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Service coordinates room state transitions.
type Service struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger

	// rng drives code generation and seeds the solver. Guarded because
	// math/rand sources are not safe for concurrent use.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewService wires the room service. A nil rng gets a time-based seed;
// tests inject a fixed one for reproducible codes and divisions.
func NewService(repo Repository, publisher Publisher, logger *slog.Logger, rng *rand.Rand) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "room"),
		rng:       rng,
	}
}

// =============================================================================
// Creation and lookup
// =============================================================================

// CreateRoomInput for opening a new room.
type CreateRoomInput struct {
	GameName   string            `json:"gameName"`
	MaxMembers int               `json:"maxMembers"`
	LabelRules domain.LabelRules `json:"labelRules,omitempty"`
}

// CreateRoom opens a room in waiting state with the caller as owner and
// first member. No event is emitted: the channel has no subscribers yet.
func (s *Service) CreateRoom(ctx context.Context, ownerID uuid.UUID, input CreateRoomInput) (*domain.Room, error) {
	gameName := strings.TrimSpace(input.GameName)
	if n := utf8.RuneCountInString(gameName); n < 1 || n > domain.MaxGameNameRunes {
		return nil, domain.ErrInvalidGameName
	}

	maxMembers := input.MaxMembers
	if maxMembers == 0 {
		maxMembers = domain.DefaultMaxMembers
	}
	if maxMembers < domain.MinMaxMembers || maxMembers > domain.MaxMaxMembers {
		return nil, domain.ErrInvalidMaxMembers
	}

	rules := input.LabelRules
	if rules == nil {
		rules = domain.LabelRules{}
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	// Friendly pre-check; the partial unique index on (owner_id, waiting)
	// is the authoritative guard.
	existing, err := s.repo.FindOwnedWaitingRoom(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check active room: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrHasActiveRoom
	}

	room := &domain.Room{
		ID:         uuid.New(),
		GameName:   gameName,
		OwnerID:    ownerID,
		Status:     domain.StatusWaiting,
		MaxMembers: maxMembers,
		LabelRules: rules,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room.RoomCode = s.nextCode()

		err := s.repo.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrRoomCodeConflict) {
			continue
		}
		if errors.Is(err, domain.ErrHasActiveRoom) {
			return nil, domain.ErrHasActiveRoom
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}

		created, err := s.repo.GetRoomByCode(ctx, room.RoomCode)
		if err != nil {
			return nil, fmt.Errorf("load created room: %w", err)
		}
		metrics.RoomsActive.Inc()
		s.logger.Info("room created", "room", created.RoomCode, "owner", ownerID)
		return created, nil
	}

	return nil, domain.ErrCodeExhausted
}

// GetRoom returns the full room snapshot aggregate.
func (s *Service) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	return s.repo.GetRoomByCode(ctx, code)
}

// GetMyOwnedRoom returns the caller's waiting room, or nil if none.
func (s *Service) GetMyOwnedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	return s.repo.FindOwnedWaitingRoom(ctx, userID)
}

// GetMyJoinedRoom returns a room the caller belongs to but does not own,
// or nil if none.
func (s *Service) GetMyJoinedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	return s.repo.FindJoinedRoom(ctx, userID)
}

// =============================================================================
// Membership
// =============================================================================

// JoinRoom adds the caller to a waiting room and emits member-joined.
// Joining a room you already belong to returns the current state without
// emitting anything.
func (s *Service) JoinRoom(ctx context.Context, userID uuid.UUID, code string) (*domain.Room, error) {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.MemberOf(userID) != nil {
		return room, nil
	}
	if room.Status != domain.StatusWaiting {
		return nil, domain.ErrRoomNotJoinable
	}
	if room.IsFull() {
		return nil, domain.ErrRoomFull
	}

	err = s.repo.AddMember(ctx, room.ID, userID)
	if errors.Is(err, domain.ErrAlreadyMember) {
		// Lost a race against ourselves; same idempotent answer.
		return s.repo.GetRoomByCode(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load room after join: %w", err)
	}
	s.publish(ctx, fresh.RoomCode, EventMemberJoined, fresh.Snapshot())
	return fresh, nil
}

// LeaveRoom removes the caller's membership and emits member-left. The
// owner leaving closes the whole room instead.
func (s *Service) LeaveRoom(ctx context.Context, userID uuid.UUID, code string) error {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.IsOwner(userID) {
		return s.CloseRoom(ctx, userID, code)
	}
	if room.MemberOf(userID) == nil {
		return nil // idempotent
	}

	if err := s.repo.RemoveMember(ctx, room.ID, userID); err != nil {
		return err
	}
	s.publishSnapshot(ctx, code, EventMemberLeft)
	return nil
}

// RemoveMember ejects another member from the caller's room.
func (s *Service) RemoveMember(ctx context.Context, callerID uuid.UUID, code string, memberUserID uuid.UUID) error {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsOwner(callerID) {
		return domain.ErrNotOwner
	}
	if memberUserID == callerID {
		return domain.ErrCannotRemoveOwner
	}
	if room.MemberOf(memberUserID) == nil {
		return domain.ErrMemberNotFound
	}

	if err := s.repo.RemoveMember(ctx, room.ID, memberUserID); err != nil {
		return err
	}
	s.publishSnapshot(ctx, code, EventMemberLeft)
	return nil
}

// CloseRoom tears the room down. The room-closed event goes out before
// the delete so subscribers still attached to the channel hear it.
func (s *Service) CloseRoom(ctx context.Context, callerID uuid.UUID, code string) error {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsOwner(callerID) {
		return domain.ErrNotOwner
	}

	s.publish(ctx, code, EventRoomClosed, struct{}{})

	if err := s.repo.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	metrics.RoomsActive.Dec()
	s.logger.Info("room closed", "room", code, "owner", callerID)
	return nil
}

// =============================================================================
// Labels and rules
// =============================================================================

// SetMemberLabels replaces a member's labels and emits room-updated.
// Owner-only.
func (s *Service) SetMemberLabels(ctx context.Context, callerID uuid.UUID, code string, memberUserID uuid.UUID, labels []domain.Label) error {
	if err := domain.ValidateLabels(labels); err != nil {
		return err
	}

	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsOwner(callerID) {
		return domain.ErrNotOwner
	}
	member := room.MemberOf(memberUserID)
	if member == nil {
		return domain.ErrMemberNotFound
	}

	if err := s.repo.UpdateMemberLabels(ctx, room.ID, member.ID, labels); err != nil {
		return err
	}
	s.publishSnapshot(ctx, code, EventRoomUpdated)
	return nil
}

// SetLabelRules replaces the room's rule map and emits room-updated.
// Owner-only. At most one label may carry same_team.
func (s *Service) SetLabelRules(ctx context.Context, callerID uuid.UUID, code string, rules domain.LabelRules) error {
	if rules == nil {
		rules = domain.LabelRules{}
	}
	if err := rules.Validate(); err != nil {
		return err
	}

	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsOwner(callerID) {
		return domain.ErrNotOwner
	}

	room.LabelRules = rules
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return err
	}
	s.publish(ctx, code, EventRoomUpdated, room.Snapshot())
	return nil
}

// =============================================================================
// Division
// =============================================================================

// teamsDividedPayload pairs the refreshed snapshot with the new split.
type teamsDividedPayload struct {
	Room           *domain.RoomSnapshot   `json:"room"`
	DivisionResult *domain.DivisionResult `json:"divisionResult"`
}

// DivideTeams runs the solver over the current members and persists the
// split. Owner-only, waiting rooms with at least two members. Returns
// the division result and, when debug is set, the solver trace.
func (s *Service) DivideTeams(ctx context.Context, callerID uuid.UUID, code string, debug bool) (*domain.DivisionResult, []string, error) {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsOwner(callerID) {
		return nil, nil, domain.ErrNotOwner
	}
	if room.Status != domain.StatusWaiting {
		return nil, nil, domain.ErrWrongStatus
	}
	if len(room.Members) < 2 {
		return nil, nil, domain.ErrTooFewMembers
	}

	members := make([]solver.Member, 0, len(room.Members))
	byID := make(map[uuid.UUID]*domain.Member, len(room.Members))
	for i := range room.Members {
		m := &room.Members[i]
		byID[m.ID] = m
		sm := solver.Member{ID: m.ID, Labels: m.Labels}
		if m.User != nil {
			sm.Name = m.User.Nickname
		}
		members = append(members, sm)
	}

	start := time.Now()
	solved := solver.Solve(members, room.LabelRules, solver.Options{Rand: s.solverRand(), Debug: debug})
	metrics.SolverDuration.WithLabelValues(solved.Algorithm).Observe(time.Since(start).Seconds())

	teams := make(map[uuid.UUID]domain.Team, len(members))
	result := &domain.DivisionResult{
		TeamA: make([]domain.TeamMember, 0, len(solved.TeamA)),
		TeamB: make([]domain.TeamMember, 0, len(solved.TeamB)),
	}
	for _, sm := range solved.TeamA {
		teams[sm.ID] = domain.TeamA
		result.TeamA = append(result.TeamA, teamMember(byID[sm.ID]))
	}
	for _, sm := range solved.TeamB {
		teams[sm.ID] = domain.TeamB
		result.TeamB = append(result.TeamB, teamMember(byID[sm.ID]))
	}

	if err := s.repo.ApplyDivision(ctx, room.ID, teams, result); err != nil {
		metrics.DividesTotal.WithLabelValues("failed").Inc()
		return nil, nil, err
	}
	metrics.DividesTotal.WithLabelValues("success").Inc()
	s.logger.Info("teams divided",
		"room", code, "algorithm", solved.Algorithm,
		"teamA", len(result.TeamA), "teamB", len(result.TeamB))

	fresh, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		s.logger.Error("load room after divide", "room", code, "error", err)
		return result, solved.Trace, nil
	}
	s.publish(ctx, code, EventTeamsDivided, teamsDividedPayload{
		Room:           fresh.Snapshot(),
		DivisionResult: result,
	})
	return result, solved.Trace, nil
}

// RedivideTeams clears the previous split and divides again.
func (s *Service) RedivideTeams(ctx context.Context, callerID uuid.UUID, code string, debug bool) (*domain.DivisionResult, []string, error) {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsOwner(callerID) {
		return nil, nil, domain.ErrNotOwner
	}

	if err := s.repo.ResetTeams(ctx, room.ID); err != nil {
		return nil, nil, err
	}
	return s.DivideTeams(ctx, callerID, code, debug)
}

// GetDivisionResult returns the cached result, falling back to rebuilding
// it from the persisted team assignments.
func (s *Service) GetDivisionResult(ctx context.Context, code string) (*domain.DivisionResult, error) {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.DivisionResult != nil {
		return room.DivisionResult, nil
	}
	return room.RebuildDivision(), nil
}

func teamMember(m *domain.Member) domain.TeamMember {
	tm := domain.TeamMember{Labels: []domain.Label{}}
	if m == nil {
		return tm
	}
	tm.ID = m.UserID
	if m.Labels != nil {
		tm.Labels = m.Labels
	}
	if m.User != nil {
		tm.Nickname = m.User.Nickname
		tm.AvatarURL = m.User.AvatarURL
	}
	return tm
}

// =============================================================================
// Event fan-out
// =============================================================================

// publish sends one room event. Failures are logged and swallowed: a
// dropped event never fails the operation that caused it.
func (s *Service) publish(ctx context.Context, code, event string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.Channels.Room(code), event, payload); err != nil {
		s.logger.Error("publish failed", "event", event, "room", code, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(event).Inc()
}

// publishSnapshot re-reads the room and publishes its snapshot. Used by
// mutations whose event payload is the post-transition state.
func (s *Service) publishSnapshot(ctx context.Context, code, event string) {
	room, err := s.repo.GetRoomByCode(ctx, code)
	if err != nil {
		s.logger.Error("load room for event", "event", event, "room", code, "error", err)
		return
	}
	s.publish(ctx, code, event, room.Snapshot())
}

func (s *Service) nextCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newRoomCode(s.rng)
}

// solverRand hands the solver its own source so a long solve never holds
// the service lock.
func (s *Service) solverRand() *rand.Rand {
	s.mu.Lock()
	seed := s.rng.Int63()
	s.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}
