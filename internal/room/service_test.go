package room

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand"
	"regexp"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CinitSwift/divide/internal/domain"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeRepo keeps rooms in memory with the same guard semantics as the
// real repository: mutations lock, re-check status and capacity, and
// reads hand back copies.
type fakeRepo struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*domain.Room
	users map[uuid.UUID]domain.UserProfile
	seq   int

	// codeConflicts makes the next n CreateRoom calls fail as if the
	// generated code already existed.
	codeConflicts int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rooms: make(map[uuid.UUID]*domain.Room),
		users: make(map[uuid.UUID]domain.UserProfile),
	}
}

func (f *fakeRepo) addUser(nickname string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = domain.UserProfile{ID: id, Nickname: nickname, AvatarURL: "https://cdn.example.com/" + nickname}
	return id
}

func (f *fakeRepo) nextJoinTime() time.Time {
	f.seq++
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Second)
}

func (f *fakeRepo) CreateRoom(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.codeConflicts > 0 {
		f.codeConflicts--
		return domain.ErrRoomCodeConflict
	}
	for _, r := range f.rooms {
		if r.RoomCode == room.RoomCode {
			return domain.ErrRoomCodeConflict
		}
		if r.OwnerID == room.OwnerID && r.Status == domain.StatusWaiting {
			return domain.ErrHasActiveRoom
		}
	}

	stored := cloneRoom(room)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	stored.Members = []domain.Member{{
		ID:       uuid.New(),
		RoomID:   room.ID,
		UserID:   room.OwnerID,
		Team:     domain.TeamNone,
		Labels:   []domain.Label{},
		JoinedAt: f.nextJoinTime(),
	}}
	f.rooms[room.ID] = stored
	return nil
}

func (f *fakeRepo) GetRoomByCode(_ context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.RoomCode == code {
			return f.loaded(r), nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (f *fakeRepo) FindOwnedWaitingRoom(_ context.Context, userID uuid.UUID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.OwnerID == userID && r.Status == domain.StatusWaiting {
			return f.loaded(r), nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindJoinedRoom(_ context.Context, userID uuid.UUID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.Room
	var bestJoined time.Time
	for _, r := range f.rooms {
		if r.OwnerID == userID {
			continue
		}
		for i := range r.Members {
			if r.Members[i].UserID == userID && r.Members[i].JoinedAt.After(bestJoined) {
				best = r
				bestJoined = r.Members[i].JoinedAt
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return f.loaded(best), nil
}

func (f *fakeRepo) AddMember(_ context.Context, roomID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if r.Status != domain.StatusWaiting {
		return domain.ErrRoomNotJoinable
	}
	if len(r.Members) >= r.MaxMembers {
		return domain.ErrRoomFull
	}
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return domain.ErrAlreadyMember
		}
	}
	r.Members = append(r.Members, domain.Member{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		Team:     domain.TeamNone,
		Labels:   []domain.Label{},
		JoinedAt: f.nextJoinTime(),
	})
	return nil
}

func (f *fakeRepo) RemoveMember(_ context.Context, roomID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Members = slices.DeleteFunc(r.Members, func(m domain.Member) bool {
		return m.UserID == userID
	})
	// Same contract as the real repository: a divided room's cached
	// result is rebuilt from the members that are left.
	if r.Status == domain.StatusDivided {
		loaded := f.loaded(r)
		r.DivisionResult = loaded.RebuildDivision()
	}
	return nil
}

func (f *fakeRepo) UpdateMemberLabels(_ context.Context, roomID, memberID uuid.UUID, labels []domain.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for i := range r.Members {
		if r.Members[i].ID == memberID {
			r.Members[i].Labels = slices.Clone(labels)
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (f *fakeRepo) UpdateRoom(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[room.ID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Status = room.Status
	r.LabelRules = maps.Clone(room.LabelRules)
	r.DivisionResult = room.DivisionResult
	return nil
}

func (f *fakeRepo) ApplyDivision(_ context.Context, roomID uuid.UUID, teams map[uuid.UUID]domain.Team, result *domain.DivisionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if r.Status != domain.StatusWaiting {
		return domain.ErrWrongStatus
	}
	for memberID, team := range teams {
		found := false
		for i := range r.Members {
			if r.Members[i].ID == memberID {
				r.Members[i].Team = team
				found = true
				break
			}
		}
		if !found {
			return domain.ErrMemberNotFound
		}
	}
	for i := range r.Members {
		if r.Members[i].Team == domain.TeamNone {
			return fmt.Errorf("member %s unassigned", r.Members[i].UserID)
		}
	}
	r.Status = domain.StatusDivided
	r.DivisionResult = result
	return nil
}

func (f *fakeRepo) ResetTeams(_ context.Context, roomID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for i := range r.Members {
		r.Members[i].Team = domain.TeamNone
	}
	r.Status = domain.StatusWaiting
	r.DivisionResult = nil
	return nil
}

func (f *fakeRepo) DeleteRoom(_ context.Context, roomID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rooms[roomID]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(f.rooms, roomID)
	return nil
}

// loaded copies the aggregate and attaches user profiles, like the SQL
// join does.
func (f *fakeRepo) loaded(r *domain.Room) *domain.Room {
	cp := cloneRoom(r)
	for i := range cp.Members {
		if u, ok := f.users[cp.Members[i].UserID]; ok {
			profile := u
			cp.Members[i].User = &profile
		}
	}
	return cp
}

func cloneRoom(r *domain.Room) *domain.Room {
	cp := *r
	cp.LabelRules = maps.Clone(r.LabelRules)
	cp.Members = make([]domain.Member, len(r.Members))
	for i, m := range r.Members {
		m.Labels = slices.Clone(m.Labels)
		cp.Members[i] = m
	}
	return &cp
}

type publishedEvent struct {
	Channel string
	Event   string
	Payload any
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, channel, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Channel: channel, Event: event, Payload: payload})
	return nil
}

func (p *capturingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.Event
	}
	return names
}

func (p *capturingPublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	repo *fakeRepo
	pub  *capturingPublisher
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	pub := &capturingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, pub, logger, rand.New(rand.NewSource(1)))
	return &fixture{repo: repo, pub: pub, svc: svc}
}

// createRoom makes a waiting room with the given capacity and returns
// the owner id and code.
func (fx *fixture) createRoom(t *testing.T, maxMembers int) (uuid.UUID, string) {
	t.Helper()
	owner := fx.repo.addUser("owner")
	room, err := fx.svc.CreateRoom(context.Background(), owner, CreateRoomInput{
		GameName:   "Werewolf",
		MaxMembers: maxMembers,
	})
	require.NoError(t, err)
	return owner, room.RoomCode
}

func (fx *fixture) join(t *testing.T, code, nickname string) uuid.UUID {
	t.Helper()
	id := fx.repo.addUser(nickname)
	_, err := fx.svc.JoinRoom(context.Background(), id, code)
	require.NoError(t, err)
	return id
}

func memberUserIDs(r *domain.Room) []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Members))
	for i := range r.Members {
		ids[i] = r.Members[i].UserID
	}
	return ids
}

// =============================================================================
// CreateRoom
// =============================================================================

var codePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func TestCreateRoom(t *testing.T) {
	fx := newFixture(t)
	owner := fx.repo.addUser("owner")

	room, err := fx.svc.CreateRoom(context.Background(), owner, CreateRoomInput{GameName: "Werewolf"})
	require.NoError(t, err)

	assert.Regexp(t, codePattern, room.RoomCode)
	assert.Equal(t, domain.StatusWaiting, room.Status)
	assert.Equal(t, domain.DefaultMaxMembers, room.MaxMembers)
	assert.Equal(t, owner, room.OwnerID)
	require.Len(t, room.Members, 1)
	assert.Equal(t, owner, room.Members[0].UserID)
	assert.Empty(t, fx.pub.names(), "create must not emit")
}

func TestCreateRoomValidation(t *testing.T) {
	fx := newFixture(t)
	owner := fx.repo.addUser("owner")
	ctx := context.Background()

	_, err := fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidGameName)

	long := make([]rune, domain.MaxGameNameRunes+1)
	for i := range long {
		long[i] = '狼'
	}
	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: string(long)})
	assert.ErrorIs(t, err, domain.ErrInvalidGameName)

	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: "ok", MaxMembers: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidMaxMembers)

	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: "ok", MaxMembers: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidMaxMembers)

	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{
		GameName:   "ok",
		LabelRules: domain.LabelRules{domain.LabelGod: "sideways"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{
		GameName: "ok",
		LabelRules: domain.LabelRules{
			domain.LabelGod:  domain.RuleSameTeam,
			domain.LabelBoss: domain.RuleSameTeam,
		},
	})
	assert.ErrorIs(t, err, domain.ErrConflictingRules)
}

func TestCreateRoomRejectsSecondActiveRoom(t *testing.T) {
	fx := newFixture(t)
	owner := fx.repo.addUser("owner")
	ctx := context.Background()

	_, err := fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: "first"})
	require.NoError(t, err)

	_, err = fx.svc.CreateRoom(ctx, owner, CreateRoomInput{GameName: "second"})
	assert.ErrorIs(t, err, domain.ErrHasActiveRoom)
}

func TestCreateRoomRetriesCodeCollisions(t *testing.T) {
	fx := newFixture(t)
	fx.repo.codeConflicts = 3
	owner := fx.repo.addUser("owner")

	room, err := fx.svc.CreateRoom(context.Background(), owner, CreateRoomInput{GameName: "retry"})
	require.NoError(t, err)
	assert.Regexp(t, codePattern, room.RoomCode)
}

func TestCreateRoomCodeExhausted(t *testing.T) {
	fx := newFixture(t)
	fx.repo.codeConflicts = maxCodeAttempts
	owner := fx.repo.addUser("owner")

	_, err := fx.svc.CreateRoom(context.Background(), owner, CreateRoomInput{GameName: "unlucky"})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

// =============================================================================
// Lookup
// =============================================================================

func TestGetRoomNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.GetRoom(context.Background(), "123456")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)

	got, err := fx.svc.GetRoom(context.Background(), code)
	require.NoError(t, err)

	snap := got.Snapshot()
	assert.Equal(t, code, snap.RoomCode)
	assert.Equal(t, "Werewolf", snap.GameName)
	assert.Equal(t, 1, snap.MemberCount)
	require.NotNil(t, snap.Owner)
	assert.Equal(t, "owner", snap.Owner.Nickname)
}

func TestGetMyRooms(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	joiner := fx.join(t, code, "joiner")
	ctx := context.Background()

	owned, err := fx.svc.GetMyOwnedRoom(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, owned)
	assert.Equal(t, code, owned.RoomCode)

	none, err := fx.svc.GetMyOwnedRoom(ctx, joiner)
	require.NoError(t, err)
	assert.Nil(t, none)

	joined, err := fx.svc.GetMyJoinedRoom(ctx, joiner)
	require.NoError(t, err)
	require.NotNil(t, joined)
	assert.Equal(t, code, joined.RoomCode)

	noneJoined, err := fx.svc.GetMyJoinedRoom(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, noneJoined)
}

// =============================================================================
// Join and leave
// =============================================================================

func TestJoinRoomEmitsMemberJoined(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)

	fx.join(t, code, "alice")

	require.Equal(t, []string{EventMemberJoined}, fx.pub.names())
	evt := fx.pub.last()
	assert.Equal(t, "room-"+code, evt.Channel)
	snap, ok := evt.Payload.(*domain.RoomSnapshot)
	require.True(t, ok, "payload should be the room snapshot")
	assert.Equal(t, 2, snap.MemberCount)
}

func TestJoinRoomIdempotent(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")

	again, err := fx.svc.JoinRoom(context.Background(), alice, code)
	require.NoError(t, err)
	assert.Len(t, again.Members, 2)
	assert.Equal(t, []string{EventMemberJoined}, fx.pub.names(), "repeat join must not emit")
}

func TestJoinRoomFull(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 2)
	fx.join(t, code, "alice")

	late := fx.repo.addUser("late")
	_, err := fx.svc.JoinRoom(context.Background(), late, code)
	assert.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestJoinRoomNotJoinableAfterDivide(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")

	_, _, err := fx.svc.DivideTeams(context.Background(), owner, code, false)
	require.NoError(t, err)

	late := fx.repo.addUser("late")
	_, err = fx.svc.JoinRoom(context.Background(), late, code)
	assert.ErrorIs(t, err, domain.ErrRoomNotJoinable)
}

func TestConcurrentJoinAdmitsExactlyOne(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 3)
	fx.join(t, code, "second")

	// One seat left, five contenders.
	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		id := fx.repo.addUser(fmt.Sprintf("contender%d", i))
		wg.Add(1)
		go func(slot int, userID uuid.UUID) {
			defer wg.Done()
			_, errs[slot] = fx.svc.JoinRoom(context.Background(), userID, code)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrRoomFull)
		}
	}
	assert.Equal(t, 1, succeeded)

	joined := 0
	for _, name := range fx.pub.names() {
		if name == EventMemberJoined {
			joined++
		}
	}
	assert.Equal(t, 2, joined, "one for the setup join, one for the winner")
}

func TestLeaveRoomRestoresMemberList(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)
	ctx := context.Background()

	before, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)

	alice := fx.join(t, code, "alice")
	require.NoError(t, fx.svc.LeaveRoom(ctx, alice, code))

	after, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, memberUserIDs(before), memberUserIDs(after))
	assert.Equal(t, []string{EventMemberJoined, EventMemberLeft}, fx.pub.names())
}

func TestLeaveRoomIdempotentForNonMember(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)

	stranger := fx.repo.addUser("stranger")
	require.NoError(t, fx.svc.LeaveRoom(context.Background(), stranger, code))
	assert.Empty(t, fx.pub.names())
}

func TestOwnerLeaveClosesRoom(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")
	ctx := context.Background()

	require.NoError(t, fx.svc.LeaveRoom(ctx, owner, code))

	assert.Equal(t, []string{EventMemberJoined, EventRoomClosed}, fx.pub.names())
	_, err := fx.svc.GetRoom(ctx, code)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

// =============================================================================
// RemoveMember and CloseRoom
// =============================================================================

func TestRemoveMember(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	require.NoError(t, fx.svc.RemoveMember(ctx, owner, code, alice))

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, room.Members, 1)
	assert.Equal(t, []string{EventMemberJoined, EventMemberLeft}, fx.pub.names())
}

func TestRemoveMemberGuards(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	err := fx.svc.RemoveMember(ctx, alice, code, owner)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	err = fx.svc.RemoveMember(ctx, owner, code, owner)
	assert.ErrorIs(t, err, domain.ErrCannotRemoveOwner)

	err = fx.svc.RemoveMember(ctx, owner, code, uuid.New())
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestCloseRoomRequiresOwner(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")

	err := fx.svc.CloseRoom(context.Background(), alice, code)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestCloseRoomEmitsThenDeletes(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	ctx := context.Background()

	require.NoError(t, fx.svc.CloseRoom(ctx, owner, code))

	require.Equal(t, []string{EventRoomClosed}, fx.pub.names())
	_, err := fx.svc.GetRoom(ctx, code)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

// =============================================================================
// Labels and rules
// =============================================================================

func TestSetMemberLabels(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	labels := []domain.Label{domain.LabelGod, domain.LabelSister}
	require.NoError(t, fx.svc.SetMemberLabels(ctx, owner, code, alice, labels))

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, labels, room.MemberOf(alice).Labels)
	assert.Equal(t, []string{EventMemberJoined, EventRoomUpdated}, fx.pub.names())
}

func TestSetMemberLabelsGuards(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	err := fx.svc.SetMemberLabels(ctx, owner, code, alice, []domain.Label{"dragon"})
	assert.ErrorIs(t, err, domain.ErrInvalidLabel)

	err = fx.svc.SetMemberLabels(ctx, alice, code, alice, []domain.Label{domain.LabelGod})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	err = fx.svc.SetMemberLabels(ctx, owner, code, uuid.New(), []domain.Label{domain.LabelGod})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestSetLabelRules(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	ctx := context.Background()

	rules := domain.LabelRules{
		domain.LabelGod:  domain.RuleEven,
		domain.LabelBoss: domain.RuleSameTeam,
	}
	require.NoError(t, fx.svc.SetLabelRules(ctx, owner, code, rules))

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, rules, room.LabelRules)
	assert.Equal(t, []string{EventRoomUpdated}, fx.pub.names())
}

func TestSetLabelRulesConflicting(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)

	err := fx.svc.SetLabelRules(context.Background(), owner, code, domain.LabelRules{
		domain.LabelGod:  domain.RuleSameTeam,
		domain.LabelBoss: domain.RuleSameTeam,
	})
	assert.ErrorIs(t, err, domain.ErrConflictingRules)
	assert.Empty(t, fx.pub.names())
}

// =============================================================================
// Division
// =============================================================================

func TestDivideTeams(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 10)
	ctx := context.Background()

	g1 := fx.join(t, code, "g1")
	g2 := fx.join(t, code, "g2")
	fx.join(t, code, "p1")

	require.NoError(t, fx.svc.SetLabelRules(ctx, owner, code, domain.LabelRules{domain.LabelGod: domain.RuleEven}))
	require.NoError(t, fx.svc.SetMemberLabels(ctx, owner, code, g1, []domain.Label{domain.LabelGod}))
	require.NoError(t, fx.svc.SetMemberLabels(ctx, owner, code, g2, []domain.Label{domain.LabelGod}))

	result, trace, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)
	assert.Empty(t, trace)

	assert.Len(t, result.TeamA, 2)
	assert.Len(t, result.TeamB, 2)

	godsA := 0
	for _, m := range result.TeamA {
		if slices.Contains(m.Labels, domain.LabelGod) {
			godsA++
		}
	}
	assert.Equal(t, 1, godsA, "gods must split evenly")

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDivided, room.Status)
	for _, m := range room.Members {
		assert.NotEqual(t, domain.TeamNone, m.Team)
	}

	evt := fx.pub.last()
	require.Equal(t, EventTeamsDivided, evt.Event)
	payload, ok := evt.Payload.(teamsDividedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDivided, payload.Room.Status)
	assert.Equal(t, result, payload.DivisionResult)
}

func TestDivideTeamsGuards(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	_, _, err := fx.svc.DivideTeams(ctx, alice, code, false)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, _, err = fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	_, _, err = fx.svc.DivideTeams(ctx, owner, code, false)
	assert.ErrorIs(t, err, domain.ErrWrongStatus)
}

func TestDivideTeamsTooFewMembers(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)

	_, _, err := fx.svc.DivideTeams(context.Background(), owner, code, false)
	assert.ErrorIs(t, err, domain.ErrTooFewMembers)
}

func TestDivideKeepsSameTeamTogether(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 10)
	ctx := context.Background()

	boss1 := fx.join(t, code, "boss1")
	boss2 := fx.join(t, code, "boss2")
	fx.join(t, code, "p1")
	fx.join(t, code, "p2")
	fx.join(t, code, "p3")

	require.NoError(t, fx.svc.SetLabelRules(ctx, owner, code, domain.LabelRules{domain.LabelBoss: domain.RuleSameTeam}))
	require.NoError(t, fx.svc.SetMemberLabels(ctx, owner, code, boss1, []domain.Label{domain.LabelBoss}))
	require.NoError(t, fx.svc.SetMemberLabels(ctx, owner, code, boss2, []domain.Label{domain.LabelBoss}))

	result, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	inTeam := func(team []domain.TeamMember, id uuid.UUID) bool {
		for _, m := range team {
			if m.ID == id {
				return true
			}
		}
		return false
	}
	sameA := inTeam(result.TeamA, boss1) && inTeam(result.TeamA, boss2)
	sameB := inTeam(result.TeamB, boss1) && inTeam(result.TeamB, boss2)
	assert.True(t, sameA || sameB, "bosses must end up together")

	diff := len(result.TeamA) - len(result.TeamB)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 2)
}

func TestDivideThenGetResultCached(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")
	ctx := context.Background()

	result, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	got, err := fx.svc.GetDivisionResult(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestGetDivisionResultRebuildsWithoutCache(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")
	ctx := context.Background()

	result, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	// Drop the cached copy; the team columns must be enough.
	fx.repo.mu.Lock()
	for _, r := range fx.repo.rooms {
		r.DivisionResult = nil
	}
	fx.repo.mu.Unlock()

	rebuilt, err := fx.svc.GetDivisionResult(ctx, code)
	require.NoError(t, err)
	assert.ElementsMatch(t, teamIDs(result.TeamA), teamIDs(rebuilt.TeamA))
	assert.ElementsMatch(t, teamIDs(result.TeamB), teamIDs(rebuilt.TeamB))
}

func TestLeaveAfterDividePrunesResult(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	fx.join(t, code, "bob")
	ctx := context.Background()

	_, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	require.NoError(t, fx.svc.LeaveRoom(ctx, alice, code))

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDivided, room.Status)
	require.Len(t, room.Members, 2)

	// The cached result must track the membership set.
	result, err := fx.svc.GetDivisionResult(ctx, code)
	require.NoError(t, err)
	assert.Len(t, append(teamIDs(result.TeamA), teamIDs(result.TeamB)...), 2)
	assert.NotContains(t, teamIDs(result.TeamA), alice)
	assert.NotContains(t, teamIDs(result.TeamB), alice)
}

func TestRemoveAfterDividePrunesResult(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	fx.join(t, code, "bob")
	ctx := context.Background()

	_, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	require.NoError(t, fx.svc.RemoveMember(ctx, owner, code, alice))

	result, err := fx.svc.GetDivisionResult(ctx, code)
	require.NoError(t, err)
	assert.Len(t, append(teamIDs(result.TeamA), teamIDs(result.TeamB)...), 2)
	assert.NotContains(t, teamIDs(result.TeamA), alice)
	assert.NotContains(t, teamIDs(result.TeamB), alice)
}

func TestGetDivisionResultOnWaitingRoom(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)

	result, err := fx.svc.GetDivisionResult(context.Background(), code)
	require.NoError(t, err)
	assert.Empty(t, result.TeamA)
	assert.Empty(t, result.TeamB)
}

func TestRedivideTeams(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")
	fx.join(t, code, "bob")
	ctx := context.Background()

	_, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	result, _, err := fx.svc.RedivideTeams(ctx, owner, code, false)
	require.NoError(t, err)
	assert.Equal(t, 3, len(result.TeamA)+len(result.TeamB))

	room, err := fx.svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDivided, room.Status)
	assert.Len(t, room.Members, 3)
	for _, m := range room.Members {
		assert.NotEqual(t, domain.TeamNone, m.Team)
	}

	divided := 0
	for _, name := range fx.pub.names() {
		if name == EventTeamsDivided {
			divided++
		}
	}
	assert.Equal(t, 2, divided)
}

func TestRedivideRequiresOwner(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	alice := fx.join(t, code, "alice")
	ctx := context.Background()

	_, _, err := fx.svc.DivideTeams(ctx, owner, code, false)
	require.NoError(t, err)

	_, _, err = fx.svc.RedivideTeams(ctx, alice, code, false)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestDivideDebugTrace(t *testing.T) {
	fx := newFixture(t)
	owner, code := fx.createRoom(t, 8)
	fx.join(t, code, "alice")

	_, trace, err := fx.svc.DivideTeams(context.Background(), owner, code, true)
	require.NoError(t, err)
	assert.NotEmpty(t, trace)
}

func TestPublisherFailureDoesNotFailOperation(t *testing.T) {
	fx := newFixture(t)
	_, code := fx.createRoom(t, 8)
	fx.pub.err = fmt.Errorf("broker down")

	alice := fx.repo.addUser("alice")
	room, err := fx.svc.JoinRoom(context.Background(), alice, code)
	require.NoError(t, err)
	assert.Len(t, room.Members, 2)
}

func teamIDs(team []domain.TeamMember) []uuid.UUID {
	ids := make([]uuid.UUID, len(team))
	for i, m := range team {
		ids[i] = m.ID
	}
	return ids
}
