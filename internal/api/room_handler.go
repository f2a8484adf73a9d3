package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/CinitSwift/divide/internal/auth"
	"github.com/CinitSwift/divide/internal/domain"
	"github.com/CinitSwift/divide/internal/room"
)

// RoomService is the slice of the room service the handler dispatches to.
type RoomService interface {
	CreateRoom(ctx context.Context, ownerID uuid.UUID, input room.CreateRoomInput) (*domain.Room, error)
	GetRoom(ctx context.Context, code string) (*domain.Room, error)
	GetMyOwnedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	GetMyJoinedRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	JoinRoom(ctx context.Context, userID uuid.UUID, code string) (*domain.Room, error)
	LeaveRoom(ctx context.Context, userID uuid.UUID, code string) error
	RemoveMember(ctx context.Context, callerID uuid.UUID, code string, memberUserID uuid.UUID) error
	CloseRoom(ctx context.Context, callerID uuid.UUID, code string) error
	SetMemberLabels(ctx context.Context, callerID uuid.UUID, code string, memberUserID uuid.UUID, labels []domain.Label) error
	SetLabelRules(ctx context.Context, callerID uuid.UUID, code string, rules domain.LabelRules) error
	DivideTeams(ctx context.Context, callerID uuid.UUID, code string, debug bool) (*domain.DivisionResult, []string, error)
	RedivideTeams(ctx context.Context, callerID uuid.UUID, code string, debug bool) (*domain.DivisionResult, []string, error)
	GetDivisionResult(ctx context.Context, code string) (*domain.DivisionResult, error)
}

// RoomHandler maps the /api/room routes onto the room service.
type RoomHandler struct {
	rooms  RoomService
	logger *slog.Logger
}

func NewRoomHandler(rooms RoomService, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{rooms: rooms, logger: logger.With("component", "api")}
}

type successResponse struct {
	Success bool `json:"success"`
}

// divisionResponse is the divide/redivide payload. Trace is only present
// when the caller asked for a debug run.
type divisionResponse struct {
	*domain.DivisionResult
	Trace []string `json:"trace,omitempty"`
}

// Create handles POST /api/room/create.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var input room.CreateRoomInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.rooms.CreateRoom(r.Context(), userID, input)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, created.Snapshot())
}

// MyRoom handles GET /api/room/my-room.
func (h *RoomHandler) MyRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	owned, err := h.rooms.GetMyOwnedRoom(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if owned == nil {
		writeData(w, http.StatusOK, nil)
		return
	}
	writeData(w, http.StatusOK, owned.Snapshot())
}

// MyJoinedRoom handles GET /api/room/my-joined-room.
func (h *RoomHandler) MyJoinedRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	joined, err := h.rooms.GetMyJoinedRoom(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if joined == nil {
		writeData(w, http.StatusOK, nil)
		return
	}
	writeData(w, http.StatusOK, joined.Snapshot())
}

// Get handles GET /api/room/{code}.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, loaded.Snapshot())
}

// Join handles POST /api/room/{code}/join.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	joined, err := h.rooms.JoinRoom(r.Context(), userID, r.PathValue("code"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, joined.Snapshot())
}

// Leave handles POST /api/room/{code}/leave.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.rooms.LeaveRoom(r.Context(), userID, r.PathValue("code")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, successResponse{Success: true})
}

// Remove handles POST /api/room/{code}/remove/{memberId}.
func (h *RoomHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	memberID, err := uuid.Parse(r.PathValue("memberId"))
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid member id")
		return
	}

	if err := h.rooms.RemoveMember(r.Context(), userID, r.PathValue("code"), memberID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, successResponse{Success: true})
}

// Close handles DELETE /api/room/{code}.
func (h *RoomHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.rooms.CloseRoom(r.Context(), userID, r.PathValue("code")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, successResponse{Success: true})
}

// Divide handles POST /api/room/{code}/divide.
func (h *RoomHandler) Divide(w http.ResponseWriter, r *http.Request) {
	h.divide(w, r, h.rooms.DivideTeams)
}

// Redivide handles POST /api/room/{code}/redivide.
func (h *RoomHandler) Redivide(w http.ResponseWriter, r *http.Request) {
	h.divide(w, r, h.rooms.RedivideTeams)
}

func (h *RoomHandler) divide(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, callerID uuid.UUID, code string, debug bool) (*domain.DivisionResult, []string, error)) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	debug := r.URL.Query().Get("debug") == "true"
	result, trace, err := op(r.Context(), userID, r.PathValue("code"), debug)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, divisionResponse{DivisionResult: result, Trace: trace})
}

// Result handles GET /api/room/{code}/result.
func (h *RoomHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, err := h.rooms.GetDivisionResult(r.Context(), r.PathValue("code"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// SetLabels handles POST /api/room/{code}/member/{memberId}/labels.
func (h *RoomHandler) SetLabels(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	memberID, err := uuid.Parse(r.PathValue("memberId"))
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid member id")
		return
	}

	var input struct {
		Labels []domain.Label `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rooms.SetMemberLabels(r.Context(), userID, r.PathValue("code"), memberID, input.Labels); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, successResponse{Success: true})
}

// SetLabelRules handles POST /api/room/{code}/label-rules.
func (h *RoomHandler) SetLabelRules(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var input struct {
		LabelRules domain.LabelRules `json:"labelRules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rooms.SetLabelRules(r.Context(), userID, r.PathValue("code"), input.LabelRules); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, successResponse{Success: true})
}
