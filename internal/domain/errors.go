package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Auth errors
	ErrUnauthenticated = errors.New("authentication required")
	ErrTokenExpired    = errors.New("token has expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrUserNotFound    = errors.New("user not found")

	// Room lookup / ownership errors
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("member not found in this room")
	ErrNotOwner       = errors.New("only the room owner may perform this action")

	// Room lifecycle errors
	ErrHasActiveRoom     = errors.New("user already owns a waiting room")
	ErrRoomNotJoinable   = errors.New("room is not accepting new members")
	ErrRoomFull          = errors.New("room is already full")
	ErrWrongStatus       = errors.New("room is not in the required status")
	ErrTooFewMembers     = errors.New("dividing requires at least two members")
	ErrCannotRemoveOwner = errors.New("the owner cannot be removed from the room")
	ErrAlreadyMember     = errors.New("user is already a member of this room")

	// Validation errors
	ErrInvalidGameName   = errors.New("game name must be between 1 and 128 characters")
	ErrInvalidMaxMembers = errors.New("max members must be between 2 and 100")
	ErrInvalidLabel      = errors.New("label is not part of the vocabulary")
	ErrInvalidRule       = errors.New("label rule must be none, even or same_team")
	ErrConflictingRules  = errors.New("at most one label may use the same_team rule")

	// Repository errors
	ErrRoomCodeConflict = errors.New("room code is already in use")
	ErrCodeExhausted    = errors.New("could not allocate an unused room code")
)
