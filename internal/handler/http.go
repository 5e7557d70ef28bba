package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/padel-league/internal/domain"
	"github.com/padel-league/internal/rating"
	"github.com/padel-league/internal/websocket"
)

// League is the player, team, match and leaderboard API
type League interface {
	CreatePlayer(ctx context.Context, req domain.CreatePlayerRequest) (*domain.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	CreateTeam(ctx context.Context, req domain.CreateTeamRequest) (*domain.Team, error)
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	SubmitMatch(ctx context.Context, sub domain.MatchSubmission) (*domain.MatchOutcome, error)
	SubmitMatchBatch(ctx context.Context, batch domain.BatchMatchSubmission) error
	GetMatch(ctx context.Context, matchID string) (*domain.MatchOutcome, error)
	MatchHistory(ctx context.Context, subjectID string, limit int) ([]domain.MatchOutcome, error)
	Forecast(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast, error)
	TopTeams(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	TopPlayers(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	TeamRank(ctx context.Context, teamID string) (*domain.LeaderboardEntry, error)
	PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error)
	Around(ctx context.Context, board domain.Board, id string, count int) ([]domain.LeaderboardEntry, error)
	BoardStats(ctx context.Context, board domain.Board) (*domain.LeaderboardStats, error)
	Tiers() []rating.TierBand
}

// Lobbies is the lobby roster API
type Lobbies interface {
	CreateLobby(ctx context.Context, req domain.CreateLobbyRequest) (*domain.Lobby, error)
	GetLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error)
	ListOpenLobbies(ctx context.Context, lobbyType domain.MatchType, limit int) ([]domain.Lobby, error)
	RequestJoin(ctx context.Context, lobbyID, playerID string) (*domain.Lobby, error)
	CancelRequest(ctx context.Context, lobbyID, playerID string) (*domain.Lobby, error)
	Accept(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error)
	Reject(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error)
	AssignTeamSlot(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error)
	Finish(ctx context.Context, lobbyID, actorID string) (*domain.Lobby, error)
}

// Rebuilder refills a leaderboard from the durable store
type Rebuilder interface {
	Rebuild(ctx context.Context, board domain.Board) (int, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the league API
type Handler struct {
	league    League
	lobbies   Lobbies
	rebuilder Rebuilder
	hub       *websocket.Hub
	deps      map[string]Pinger
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. deps are pinged by /ready.
func NewHandler(
	league League,
	lobbies Lobbies,
	rebuilder Rebuilder,
	hub *websocket.Hub,
	deps map[string]Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		league:    league,
		lobbies:   lobbies,
		rebuilder: rebuilder,
		hub:       hub,
		deps:      deps,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/players", h.CreatePlayer)
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Get("/rank", h.GetPlayerRank)
			r.Get("/matches", h.GetPlayerMatches)
		})

		r.Post("/teams", h.CreateTeam)
		r.Route("/teams/{teamID}", func(r chi.Router) {
			r.Get("/", h.GetTeam)
			r.Get("/rank", h.GetTeamRank)
			r.Get("/matches", h.GetTeamMatches)
		})

		r.Post("/matches", h.SubmitMatch)
		r.Post("/matches/batch", h.SubmitMatchBatch)
		r.Get("/matches/{matchID}", h.GetMatch)

		r.Post("/forecast", h.Forecast)
		r.Get("/tiers", h.GetTiers)

		r.Route("/leaderboards/{board}", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/around/{id}", h.GetAround)
			r.Get("/stats", h.GetStats)
			r.Post("/rebuild", h.RebuildBoard)
		})

		r.Route("/lobbies", func(r chi.Router) {
			r.Post("/", h.CreateLobby)
			r.Get("/", h.ListLobbies)
			r.Route("/{lobbyID}", func(r chi.Router) {
				r.Get("/", h.GetLobby)
				r.Post("/join", h.JoinLobby)
				r.Post("/cancel", h.CancelJoin)
				r.Post("/accept", h.AcceptPlayer)
				r.Post("/reject", h.RejectPlayer)
				r.Post("/slot", h.AssignSlot)
				r.Post("/finish", h.FinishLobby)
			})
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// writeError maps a domain error onto a status code. Anything unclassified
// is logged and reported as an internal error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		err = domain.ErrInternalError
	}
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error(), Kind: string(kind)})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidScore, domain.KindUndecidedMatch, domain.KindDomainMismatch, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotHost:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindLobbyCapacity, domain.KindLobbyState, domain.KindDuplicateRequest, domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body, answering 400 itself on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, errors.Join(domain.ErrInvalidRequest, err))
		return false
	}
	return true
}

// queryInt returns a positive integer query parameter or def
func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"subscribers": map[string]int{
			string(domain.BoardTeams):   h.hub.GetSubscriberCount(string(domain.BoardTeams)),
			string(domain.BoardPlayers): h.hub.GetSubscriberCount(string(domain.BoardPlayers)),
			websocket.TopicMatches:      h.hub.GetSubscriberCount(websocket.TopicMatches),
			websocket.TopicTiers:        h.hub.GetSubscriberCount(websocket.TopicTiers),
		},
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	for name, dep := range h.deps {
		if err := dep.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   name + " unavailable",
			})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CreatePlayer registers a player
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePlayerRequest
	if !h.decode(w, r, &req) {
		return
	}
	player, err := h.league.CreatePlayer(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCreated(w, player)
}

// GetPlayer returns a player by ID
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := h.league.GetPlayer(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, player)
}

// GetPlayerRank returns a player's position on the MMR board
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.league.PlayerRank(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entry)
}

// GetPlayerMatches returns a player's recent matches
func (h *Handler) GetPlayerMatches(w http.ResponseWriter, r *http.Request) {
	h.matchHistory(w, r, chi.URLParam(r, "playerID"))
}

// CreateTeam forms a team
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTeamRequest
	if !h.decode(w, r, &req) {
		return
	}
	team, err := h.league.CreateTeam(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCreated(w, team)
}

// GetTeam returns a team with its rank
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.league.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, team)
}

// GetTeamRank returns a team's position on the LP board
func (h *Handler) GetTeamRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.league.TeamRank(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entry)
}

// GetTeamMatches returns a team's recent matches
func (h *Handler) GetTeamMatches(w http.ResponseWriter, r *http.Request) {
	h.matchHistory(w, r, chi.URLParam(r, "teamID"))
}

func (h *Handler) matchHistory(w http.ResponseWriter, r *http.Request, subjectID string) {
	matches, err := h.league.MatchHistory(r.Context(), subjectID, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, matches)
}

// SubmitMatch rates and records one match
func (h *Handler) SubmitMatch(w http.ResponseWriter, r *http.Request) {
	var sub domain.MatchSubmission
	if !h.decode(w, r, &sub) {
		return
	}
	outcome, err := h.league.SubmitMatch(r.Context(), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCreated(w, outcome)
}

// SubmitMatchBatch records several matches, skipping failures
func (h *Handler) SubmitMatchBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchMatchSubmission
	if !h.decode(w, r, &batch) {
		return
	}
	if len(batch.Matches) == 0 {
		h.writeError(w, r, domain.ErrInvalidRequest)
		return
	}
	if err := h.league.SubmitMatchBatch(r.Context(), batch); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"status":   "accepted",
		"received": len(batch.Matches),
	})
}

// GetMatch returns a recorded match
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.league.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, outcome)
}

// Forecast returns the win probability for a pairing
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	var req domain.ForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	forecast, err := h.league.Forecast(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, forecast)
}

// GetTiers returns the tier table
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.league.Tiers())
}

// GetTop returns the top of a board
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	switch board := domain.Board(chi.URLParam(r, "board")); board {
	case domain.BoardTeams:
		entries, err = h.league.TopTeams(r.Context(), limit)
	case domain.BoardPlayers:
		entries, err = h.league.TopPlayers(r.Context(), limit)
	default:
		err = errors.Join(domain.ErrInvalidRequest, errors.New("unknown board "+string(board)))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetAround returns the entries surrounding a team or player
func (h *Handler) GetAround(w http.ResponseWriter, r *http.Request) {
	board := domain.Board(chi.URLParam(r, "board"))
	entries, err := h.league.Around(r.Context(), board, chi.URLParam(r, "id"), queryInt(r, "range", 5))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetStats returns statistics for a board
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.league.BoardStats(r.Context(), domain.Board(chi.URLParam(r, "board")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, stats)
}

// RebuildBoard clears a board and refills it from PostgreSQL
func (h *Handler) RebuildBoard(w http.ResponseWriter, r *http.Request) {
	board := domain.Board(chi.URLParam(r, "board"))
	n, err := h.rebuilder.Rebuild(r.Context(), board)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"board":   board,
		"members": n,
	})
}
