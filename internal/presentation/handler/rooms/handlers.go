package rooms

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/json"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/ratelimiter"
	"github.com/marloweh/tutti/internal/presentation/utils"
	"github.com/marloweh/tutti/internal/presentation/ws"
	"github.com/marloweh/tutti/internal/roomdoc"
	"github.com/marloweh/tutti/internal/sync/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by middleware; the socket accepts any origin the
		// middleware let through.
		return true
	},
}

type Handler struct {
	docs        roomdoc.Store
	audit       domain.RoomAuditRepository
	bus         bus.Bus
	registry    *ws.Registry
	broadcaster *broadcast.Broadcaster
	noteLimiter ratelimiter.Limiter
	tunables    ws.Tunables
	logger      logging.Logger
}

func NewHandler(
	docs roomdoc.Store,
	audit domain.RoomAuditRepository,
	b bus.Bus,
	registry *ws.Registry,
	broadcaster *broadcast.Broadcaster,
	noteLimiter ratelimiter.Limiter,
	tunables ws.Tunables,
	logger logging.Logger,
) *Handler {
	return &Handler{
		docs:        docs,
		audit:       audit,
		bus:         b,
		registry:    registry,
		broadcaster: broadcaster,
		noteLimiter: noteLimiter,
		tunables:    tunables,
		logger:      logger,
	}
}

// CreateRoomHandler godoc
// @Summary      Create a new music room
// @Description  Creates a room owned by the caller and returns its id and join code
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        request body createRoomRequest true "Room creation parameters"
// @Success      201 {object} createRoomResponse "Room created successfully"
// @Failure      409 {object} map[string]interface{} "Conflict - room already exists"
// @Failure      422 {object} map[string]interface{} "Validation error"
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Router       /rooms [post]
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	participantID := utils.EnsureParticipantID(w, r)
	if participantID == "" {
		json.WriteError(w, http.StatusUnauthorized, errors.New("unauthorized"), "Missing or invalid authentication")
		return
	}

	newRoom, err := domain.NewRoom(req.Name, participantID, req.IsPrivate, req.MaxParticipants)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.docs.CreateRoom(newRoom); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomAlreadyExists):
			json.WriteError(w, http.StatusConflict, err, "Room already exists")
		case errors.Is(err, roomdoc.ErrCapacityReached):
			json.WriteError(w, http.StatusServiceUnavailable, err, "Too many rooms, try again later")
		default:
			log.Printf("Failed to create room for participant %s: %v", participantID, err)
			json.WriteInternalError(w, err)
		}
		return
	}

	ctx := r.Context()
	if err := h.audit.Log(ctx, domain.NewRoomCreatedLog(newRoom.ID, newRoom.IsPrivate, newRoom.MaxParticipants)); err != nil {
		log.Printf("Error writing room created audit log: %v", err)
	}

	json.Write(w, http.StatusCreated, createRoomResponse{
		RoomID:    newRoom.ID,
		JoinCode:  newRoom.JoinCode,
		HostID:    participantID,
		CreatedAt: newRoom.CreatedAt,
	})
}

// GetRoomHandler godoc
// @Summary      Get room details
// @Description  Returns a room's metadata and its current participant roster
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Success      200 {object} roomResponse "Room details"
// @Failure      404 {object} map[string]interface{} "Room not found"
// @Router       /rooms/{roomId} [get]
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	// The join code is only for the host to hand out.
	if !data.Room.IsHost(utils.GetParticipantIDFromRequest(r)) {
		data.Room.JoinCode = ""
	}

	json.Write(w, http.StatusOK, roomResponse{
		Room:         data.Room,
		Participants: data.Participants,
	})
}

// JoinRoomHandler godoc
// @Summary      Join a room via WebSocket
// @Description  Validates the join code, adds the caller to the roster, and upgrades to a room socket
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Param        joinCode query string false "Join code, required for private rooms"
// @Param        name query string true "Display name to join with"
// @Param        instrument query string false "Starting instrument"
// @Success      101 {object} map[string]interface{} "Switching Protocols"
// @Failure      403 {object} map[string]interface{} "Wrong join code or room full"
// @Failure      404 {object} map[string]interface{} "Room not found"
// @Router       /rooms/{roomId}/join [get]
func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		json.WriteValidationError(w, errors.New("name query parameter is required"))
		return
	}

	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	participantID := utils.EnsureParticipantID(w, r)
	isHost := data.Room.IsHost(participantID)

	if data.Room.IsPrivate && !isHost {
		if r.URL.Query().Get("joinCode") != data.Room.JoinCode {
			json.WriteError(w, http.StatusForbidden, errors.New("forbidden"), "Wrong join code")
			return
		}
	}

	participant, err := domain.NewParticipant(name, r.URL.Query().Get("instrument"))
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}
	// A stable identity across reconnects keeps the roster entry instead of
	// duplicating it.
	participant.ID = participantID
	if isHost {
		participant.GrantHost()
	}

	if err := h.docs.AddParticipant(roomID, *participant); err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			if auditErr := h.audit.Log(r.Context(), domain.NewRoomFullRejectionLog(roomID, data.Room.MaxParticipants)); auditErr != nil {
				log.Printf("Error writing room-full audit log: %v", auditErr)
			}
			json.WriteError(w, http.StatusForbidden, err, "Room is full")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), domain.NewParticipantJoinedLog(roomID, len(data.Participants)+1)); err != nil {
		log.Printf("Error writing participant joined audit log: %v", err)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = h.docs.RemoveParticipant(roomID, participantID)
		return
	}

	client := ws.NewClient(ws.ClientConfig{
		Conn:        conn,
		Registry:    h.registry,
		Bus:         h.bus,
		Docs:        h.docs,
		Broadcaster: h.broadcaster,
		Limiter:     h.noteLimiter,
		Logger:      h.logger,
		RoomID:      roomID,
		Participant: *participant,
		Tunables:    h.tunables,
	})

	// Run blocks for the life of the socket. The request context dies when
	// this handler returns, so the client runs on its own context.
	if err := client.Run(context.Background(), isHost); err != nil {
		h.logger.Error(logging.Rooms, logging.Membership, "room socket terminated", map[logging.ExtraKey]any{
			logging.RoomID:        roomID,
			logging.ParticipantID: participantID,
			logging.ErrorMessage:  err.Error(),
		})
	}
}

// LeaveRoomHandler godoc
// @Summary      Leave a room
// @Description  Removes the caller from the roster; the longest-present participant inherits the host role
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Success      204 "Left"
// @Failure      404 {object} map[string]interface{} "Room or participant not found"
// @Router       /rooms/{roomId}/leave [post]
func (h *Handler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	participantID := utils.GetParticipantIDFromRequest(r)
	if participantID == "" {
		json.WriteError(w, http.StatusUnauthorized, errors.New("unauthorized"), "Missing or invalid authentication")
		return
	}

	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}
	wasHost := data.Room.IsHost(participantID)

	if err := h.docs.RemoveParticipant(roomID, participantID); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Participant not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), domain.NewParticipantLeftLog(roomID, len(data.Participants)-1, wasHost)); err != nil {
		log.Printf("Error writing participant left audit log: %v", err)
	}
	if wasHost && len(data.Participants) > 1 {
		if err := h.audit.Log(r.Context(), domain.NewHostTransferredLog(roomID, "host_left")); err != nil {
			log.Printf("Error writing host transfer audit log: %v", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// KickParticipantHandler godoc
// @Summary      Kick a participant
// @Description  Host-only removal of another participant from the room
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Param        request body kickRequest true "Participant to kick"
// @Success      204 "Kicked"
// @Failure      401 {object} map[string]interface{} "Caller is not the host"
// @Failure      404 {object} map[string]interface{} "Room or participant not found"
// @Router       /rooms/{roomId}/kick [post]
func (h *Handler) KickParticipantHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	var req kickRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	callerID := utils.GetParticipantIDFromRequest(r)
	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if !data.Room.IsHost(callerID) {
		json.WriteError(w, http.StatusUnauthorized, domain.ErrNotHost, "Only the host can kick")
		return
	}
	if req.ParticipantID == callerID {
		json.WriteBadRequestError(w, "You cannot kick yourself")
		return
	}

	if err := h.docs.RemoveParticipant(roomID, req.ParticipantID); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Participant not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), domain.NewParticipantKickedLog(roomID, callerID)); err != nil {
		log.Printf("Error writing participant kicked audit log: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettingsHandler godoc
// @Summary      Update room settings
// @Description  Host-only partial update of room settings
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Param        request body updateSettingsRequest true "Fields to update"
// @Success      200 {object} roomResponse "Updated room"
// @Failure      401 {object} map[string]interface{} "Caller is not the host"
// @Failure      404 {object} map[string]interface{} "Room not found"
// @Router       /rooms/{roomId}/settings [patch]
func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	var req updateSettingsRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	callerID := utils.GetParticipantIDFromRequest(r)
	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if !data.Room.IsHost(callerID) {
		json.WriteError(w, http.StatusUnauthorized, domain.ErrNotHost, "Only the host can change settings")
		return
	}

	patch := roomdoc.SettingsPatch{
		Name:            req.Name,
		IsPrivate:       req.IsPrivate,
		MaxParticipants: req.MaxParticipants,
		AllowGuestJoin:  req.AllowGuestJoin,
		RequireApproval: req.RequireApproval,
		EnableChat:      req.EnableChat,
		EnableVoice:     req.EnableVoice,
		Tempo:           req.Tempo,
		Key:             req.Key,
		Scale:           req.Scale,
	}
	if err := h.docs.UpdateRoomSettings(roomID, patch); err != nil {
		json.WriteInternalError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), domain.NewSettingsUpdatedLog(roomID, callerID)); err != nil {
		log.Printf("Error writing settings updated audit log: %v", err)
	}

	updated, err := h.docs.GetRoom(roomID)
	if err != nil {
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, roomResponse{
		Room:         updated.Room,
		Participants: updated.Participants,
	})
}

// SetInstrumentHandler godoc
// @Summary      Switch instrument
// @Description  Changes the caller's instrument; subsequent notes use the new voice
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Param        request body setInstrumentRequest true "New instrument"
// @Success      204 "Switched"
// @Failure      404 {object} map[string]interface{} "Room or participant not found"
// @Router       /rooms/{roomId}/instrument [put]
func (h *Handler) SetInstrumentHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	var req setInstrumentRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	participantID := utils.GetParticipantIDFromRequest(r)
	if err := h.docs.UpdateParticipantInstrument(roomID, participantID, req.Instrument); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
		case errors.Is(err, domain.ErrParticipantNotFound):
			json.WriteError(w, http.StatusNotFound, err, "Participant not found")
		default:
			json.WriteInternalError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleMuteHandler godoc
// @Summary      Mute or unmute a participant
// @Description  The host can mute anyone; participants can mute themselves
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Param        participantId path string true "Participant ID"
// @Success      200 {object} muteResponse "New mute state"
// @Failure      401 {object} map[string]interface{} "Not allowed"
// @Failure      404 {object} map[string]interface{} "Room or participant not found"
// @Router       /rooms/{roomId}/participants/{participantId}/mute [post]
func (h *Handler) ToggleMuteHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	targetID := chi.URLParam(r, "participantId")
	if roomID == "" || targetID == "" {
		json.WriteValidationError(w, errors.New("room ID and participant ID are required"))
		return
	}

	callerID := utils.GetParticipantIDFromRequest(r)
	data, err := h.docs.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	if callerID != targetID && !data.Room.IsHost(callerID) {
		json.WriteError(w, http.StatusUnauthorized, domain.ErrNotHost, "Only the host can mute others")
		return
	}

	muted, err := h.docs.ToggleParticipantMute(roomID, targetID)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Participant not found")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, muteResponse{
		ParticipantID: targetID,
		IsMuted:       muted,
	})
}

// GetAuditLogHandler godoc
// @Summary      Room audit trail
// @Description  Returns the most recent lifecycle events for a room
// @Tags         rooms
// @Produce      json
// @Param        roomId path string true "Room ID"
// @Success      200 {object} auditResponse "Audit entries, newest first"
// @Router       /rooms/{roomId}/audit [get]
func (h *Handler) GetAuditLogHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	logs, err := h.audit.GetByRoomID(r.Context(), roomID, 100)
	if err != nil {
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, auditResponse{Logs: logs})
}
