package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/padel-league/internal/domain"
)

// playerRequest is the body of join and cancel calls
type playerRequest struct {
	PlayerID string `json:"player_id"`
}

// actorRequest is the body of a finish call
type actorRequest struct {
	ActorID string `json:"actor_id"`
}

// CreateLobby opens a lobby
func (h *Handler) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLobbyRequest
	if !h.decode(w, r, &req) {
		return
	}
	l, err := h.lobbies.CreateLobby(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCreated(w, l)
}

// ListLobbies returns open lobbies, optionally filtered by type
func (h *Handler) ListLobbies(w http.ResponseWriter, r *http.Request) {
	lobbyType := domain.MatchType(r.URL.Query().Get("type"))
	lobbies, err := h.lobbies.ListOpenLobbies(r.Context(), lobbyType, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, lobbies)
}

// GetLobby returns a lobby by ID
func (h *Handler) GetLobby(w http.ResponseWriter, r *http.Request) {
	l, err := h.lobbies.GetLobby(r.Context(), chi.URLParam(r, "lobbyID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, l)
}

// JoinLobby queues a join request
func (h *Handler) JoinLobby(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.RequestJoin(r.Context(), chi.URLParam(r, "lobbyID"), req.PlayerID))
}

// CancelJoin withdraws a join request
func (h *Handler) CancelJoin(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.CancelRequest(r.Context(), chi.URLParam(r, "lobbyID"), req.PlayerID))
}

// AcceptPlayer confirms a requested player
func (h *Handler) AcceptPlayer(w http.ResponseWriter, r *http.Request) {
	var action domain.LobbyAction
	if !h.decode(w, r, &action) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.Accept(r.Context(), chi.URLParam(r, "lobbyID"), action))
}

// RejectPlayer drops a pending request
func (h *Handler) RejectPlayer(w http.ResponseWriter, r *http.Request) {
	var action domain.LobbyAction
	if !h.decode(w, r, &action) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.Reject(r.Context(), chi.URLParam(r, "lobbyID"), action))
}

// AssignSlot places a confirmed player on a side
func (h *Handler) AssignSlot(w http.ResponseWriter, r *http.Request) {
	var action domain.LobbyAction
	if !h.decode(w, r, &action) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.AssignTeamSlot(r.Context(), chi.URLParam(r, "lobbyID"), action))
}

// FinishLobby closes a full lobby
func (h *Handler) FinishLobby(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.lobbyResult(w, r)(h.lobbies.Finish(r.Context(), chi.URLParam(r, "lobbyID"), req.ActorID))
}

func (h *Handler) lobbyResult(w http.ResponseWriter, r *http.Request) func(*domain.Lobby, error) {
	return func(l *domain.Lobby, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeSuccess(w, l)
	}
}
