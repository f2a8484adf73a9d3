package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CinitSwift/divide/internal/domain"
)

// RoomRepository handles room and membership data access.
//
// Every mutation runs in its own transaction and takes a FOR UPDATE lock
// on the room row first, so concurrent calls on the same room serialize.
// Guards that protect invariants under concurrency (status, capacity,
// membership uniqueness) are re-checked inside the transaction; callers
// may pre-validate on a stale snapshot for friendlier errors.
type RoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateRoom persists a new room and its owner membership atomically.
func (r *RoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	labelRules := room.LabelRules
	if labelRules == nil {
		labelRules = domain.LabelRules{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO rooms (id, room_code, game_name, owner_id, status, max_members, label_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, room.ID, room.RoomCode, room.GameName, room.OwnerID, room.Status, room.MaxMembers, labelRules)
	if isUniqueViolation(err, "rooms_room_code_key") {
		return domain.ErrRoomCodeConflict
	}
	if isUniqueViolation(err, "rooms_owner_waiting_key") {
		return domain.ErrHasActiveRoom
	}
	if err != nil {
		return err
	}

	// The owner is always the first member.
	_, err = tx.Exec(ctx, `
		INSERT INTO room_members (id, room_id, user_id, team, labels)
		VALUES ($1, $2, $3, $4, '[]'::jsonb)
	`, uuid.New(), room.ID, room.OwnerID, domain.TeamNone)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetRoomByCode retrieves the full aggregate: room, memberships and
// member user projections, ordered by join time.
func (r *RoomRepository) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, room_code, game_name, owner_id, status, max_members,
		       label_rules, division_result, created_at, updated_at
		FROM rooms WHERE room_code = $1
	`, code).Scan(
		&room.ID, &room.RoomCode, &room.GameName, &room.OwnerID,
		&room.Status, &room.MaxMembers, &room.LabelRules,
		&room.DivisionResult, &room.CreatedAt, &room.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadMembers(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomByID retrieves the full aggregate by primary key.
func (r *RoomRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, room_code, game_name, owner_id, status, max_members,
		       label_rules, division_result, created_at, updated_at
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID, &room.RoomCode, &room.GameName, &room.OwnerID,
		&room.Status, &room.MaxMembers, &room.LabelRules,
		&room.DivisionResult, &room.CreatedAt, &room.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadMembers(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) loadMembers(ctx context.Context, room *domain.Room) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT m.id, m.room_id, m.user_id, m.team, m.labels, m.joined_at,
		       u.id, u.nickname, u.avatar_url
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.joined_at, m.id
	`, room.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Member
		var user domain.UserProfile
		err := rows.Scan(
			&m.ID, &m.RoomID, &m.UserID, &m.Team, &m.Labels, &m.JoinedAt,
			&user.ID, &user.Nickname, &user.AvatarURL,
		)
		if err != nil {
			return err
		}
		m.User = &user
		room.Members = append(room.Members, m)
	}
	return rows.Err()
}

// FindOwnedWaitingRoom returns a waiting room owned by the user, or nil.
func (r *RoomRepository) FindOwnedWaitingRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	var roomID uuid.UUID
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM rooms WHERE owner_id = $1 AND status = 'waiting'
	`, userID).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // not an error
	}
	if err != nil {
		return nil, err
	}
	return r.GetRoomByID(ctx, roomID)
}

// FindJoinedRoom returns the most recently joined non-owned room the
// user belongs to, or nil.
func (r *RoomRepository) FindJoinedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	var roomID uuid.UUID
	err := r.db.Pool.QueryRow(ctx, `
		SELECT r.id
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id = $1 AND r.owner_id <> $1
		ORDER BY m.joined_at DESC
		LIMIT 1
	`, userID).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // not an error
	}
	if err != nil {
		return nil, err
	}
	return r.GetRoomByID(ctx, roomID)
}

// AddMember inserts a membership with team=none. Status and capacity are
// checked under the room lock so concurrent joins cannot overfill.
func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.RoomStatus
	var maxMembers int
	err = tx.QueryRow(ctx, `
		SELECT status, max_members FROM rooms WHERE id = $1 FOR UPDATE
	`, roomID).Scan(&status, &maxMembers)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	if status != domain.StatusWaiting {
		return domain.ErrRoomNotJoinable
	}

	var count int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM room_members WHERE room_id = $1
	`, roomID).Scan(&count); err != nil {
		return err
	}
	if count >= maxMembers {
		return domain.ErrRoomFull
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO room_members (id, room_id, user_id, team, labels)
		VALUES ($1, $2, $3, $4, '[]'::jsonb)
	`, uuid.New(), roomID, userID, domain.TeamNone)
	if isUniqueViolation(err, "room_members_room_user_key") {
		return domain.ErrAlreadyMember
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RemoveMember deletes a membership. Idempotent.
func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID uuid.UUID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.RoomStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM rooms WHERE id = $1 FOR UPDATE
	`, roomID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return err
	}

	// A divided room caches its division result. Rebuild it from the
	// remaining memberships so the cache never lists a departed member.
	if status == domain.StatusDivided {
		if err := refreshDivisionResult(ctx, tx, roomID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// refreshDivisionResult recomputes the cached division result from the
// team fields on the remaining memberships, inside the caller's
// transaction.
func refreshDivisionResult(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) error {
	rows, err := tx.Query(ctx, `
		SELECT m.user_id, m.team, m.labels, u.nickname, u.avatar_url
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.joined_at, m.id
	`, roomID)
	if err != nil {
		return err
	}
	defer rows.Close()

	result := &domain.DivisionResult{TeamA: []domain.TeamMember{}, TeamB: []domain.TeamMember{}}
	for rows.Next() {
		var tm domain.TeamMember
		var team domain.Team
		if err := rows.Scan(&tm.ID, &team, &tm.Labels, &tm.Nickname, &tm.AvatarURL); err != nil {
			return err
		}
		if tm.Labels == nil {
			tm.Labels = []domain.Label{}
		}
		switch team {
		case domain.TeamA:
			result.TeamA = append(result.TeamA, tm)
		case domain.TeamB:
			result.TeamB = append(result.TeamB, tm)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE rooms SET division_result = $2 WHERE id = $1
	`, roomID, result)
	return err
}

// UpdateMemberLabels replaces the label set on one membership.
func (r *RoomRepository) UpdateMemberLabels(ctx context.Context, roomID, memberID uuid.UUID, labels []domain.Label) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return err
	}

	if labels == nil {
		labels = []domain.Label{}
	}
	tag, err := tx.Exec(ctx, `
		UPDATE room_members SET labels = $3 WHERE id = $1 AND room_id = $2
	`, memberID, roomID, labels)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateRoom persists the mutable room fields: status, label rules and
// the cached division result.
func (r *RoomRepository) UpdateRoom(ctx context.Context, room *domain.Room) error {
	labelRules := room.LabelRules
	if labelRules == nil {
		labelRules = domain.LabelRules{}
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE rooms
		SET status = $2, label_rules = $3, division_result = $4, updated_at = NOW()
		WHERE id = $1
	`, room.ID, room.Status, labelRules, room.DivisionResult)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// ApplyDivision writes every member's team, flips the room to divided and
// stores the result, all in one transaction. Fails with ErrWrongStatus if
// the room left waiting since the caller loaded it.
func (r *RoomRepository) ApplyDivision(ctx context.Context, roomID uuid.UUID, teams map[uuid.UUID]domain.Team, result *domain.DivisionResult) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.RoomStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM rooms WHERE id = $1 FOR UPDATE
	`, roomID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	if status != domain.StatusWaiting {
		return domain.ErrWrongStatus
	}

	for memberID, team := range teams {
		tag, err := tx.Exec(ctx, `
			UPDATE room_members SET team = $3 WHERE id = $1 AND room_id = $2
		`, memberID, roomID, team)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrMemberNotFound
		}
	}

	// Someone who joined after the division was computed would be left
	// without a team; reject so the caller can retry on fresh state.
	var unassigned int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM room_members WHERE room_id = $1 AND team = 'none'
	`, roomID).Scan(&unassigned); err != nil {
		return err
	}
	if unassigned > 0 {
		return fmt.Errorf("room %s: %d members joined during division", roomID, unassigned)
	}

	_, err = tx.Exec(ctx, `
		UPDATE rooms SET status = $2, division_result = $3, updated_at = NOW() WHERE id = $1
	`, roomID, domain.StatusDivided, result)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ResetTeams clears all team assignments, drops the cached result and
// returns the room to waiting.
func (r *RoomRepository) ResetTeams(ctx context.Context, roomID uuid.UUID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE room_members SET team = $2 WHERE room_id = $1
	`, roomID, domain.TeamNone)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE rooms SET status = $2, division_result = NULL, updated_at = NOW() WHERE id = $1
	`, roomID, domain.StatusWaiting)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteRoom removes the room; memberships go with it (ON DELETE CASCADE).
func (r *RoomRepository) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// lockRoom takes the per-room exclusive lock inside tx.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	return err
}
