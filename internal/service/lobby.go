package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
	"github.com/padel-league/internal/lobby"
)

// lobbyCacheTTL bounds how long a cached snapshot may be served
const lobbyCacheTTL = 5 * time.Minute

// LobbyService runs roster transitions against stored lobbies. Mutations on
// the same lobby are serialized in-process and guarded by the stored version.
type LobbyService struct {
	store    LobbyStore
	cache    LobbyCache
	roster   lobby.Roster
	locker   *lobby.Locker
	hub      Broadcaster
	notifier Notifier
	cfg      *config.LobbyConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLobbyService creates a new lobby service. cache, hub and notifier may be nil.
func NewLobbyService(
	store LobbyStore,
	cache LobbyCache,
	hub Broadcaster,
	notifier Notifier,
	cfg *config.LobbyConfig,
	logger *slog.Logger,
) *LobbyService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LobbyService{
		store:    store,
		cache:    cache,
		roster:   lobby.NewRoster(cfg.Capacity),
		locker:   lobby.NewLocker(),
		hub:      hub,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateLobby opens a lobby with the host confirmed on side A
func (s *LobbyService) CreateLobby(ctx context.Context, req domain.CreateLobbyRequest) (*domain.Lobby, error) {
	host, err := s.store.GetPlayer(ctx, req.HostID)
	if err != nil {
		return nil, err
	}

	l, err := s.roster.NewLobby(uuid.NewString(), req, toLobbyPlayer(host), s.now().UTC())
	if err != nil {
		return nil, err
	}

	saved, err := s.store.InsertLobby(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("creating lobby: %w", err)
	}

	s.published(ctx, saved, domain.LobbyCreated, req.HostID, "")
	return &saved, nil
}

// GetLobby returns a lobby, preferring the cached snapshot
func (s *LobbyService) GetLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error) {
	if s.cache != nil {
		cached, err := s.cache.CachedLobby(ctx, lobbyID)
		if err != nil {
			s.logger.Warn("lobby cache read failed", "lobby_id", lobbyID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	l, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	s.cacheLobby(ctx, *l)
	return l, nil
}

// ListOpenLobbies returns lobbies still taking requests
func (s *LobbyService) ListOpenLobbies(ctx context.Context, lobbyType domain.MatchType, limit int) ([]domain.Lobby, error) {
	if lobbyType != "" && lobbyType != domain.MatchTypeRanked && lobbyType != domain.MatchTypeLeague {
		return nil, fmt.Errorf("%w: lobby type %q", domain.ErrInvalidRequest, lobbyType)
	}
	if limit <= 0 || limit > s.cfg.ListLimit {
		limit = s.cfg.ListLimit
	}
	return s.store.ListOpenLobbies(ctx, lobbyType, limit)
}

// RequestJoin queues playerID for the host's decision
func (s *LobbyService) RequestJoin(ctx context.Context, lobbyID, playerID string) (*domain.Lobby, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, lobbyID, domain.LobbyJoinRequested, playerID, playerID, func(l domain.Lobby) (domain.Lobby, error) {
		return s.roster.RequestJoin(l, toLobbyPlayer(player))
	})
}

// CancelRequest withdraws the player's own pending request
func (s *LobbyService) CancelRequest(ctx context.Context, lobbyID, playerID string) (*domain.Lobby, error) {
	return s.mutate(ctx, lobbyID, domain.LobbyRequestCanceled, playerID, playerID, func(l domain.Lobby) (domain.Lobby, error) {
		return s.roster.CancelRequest(l, playerID)
	})
}

// Accept confirms a requested player; only the host may do this
func (s *LobbyService) Accept(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error) {
	return s.mutate(ctx, lobbyID, domain.LobbyPlayerAccepted, action.ActorID, action.PlayerID, func(l domain.Lobby) (domain.Lobby, error) {
		return s.roster.Accept(l, action.ActorID, action.PlayerID)
	})
}

// Reject drops a pending request; only the host may do this
func (s *LobbyService) Reject(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error) {
	return s.mutate(ctx, lobbyID, domain.LobbyPlayerRejected, action.ActorID, action.PlayerID, func(l domain.Lobby) (domain.Lobby, error) {
		return s.roster.Reject(l, action.ActorID, action.PlayerID)
	})
}

// AssignTeamSlot moves a confirmed player to a side. The host may place
// anyone; players may only place themselves.
func (s *LobbyService) AssignTeamSlot(ctx context.Context, lobbyID string, action domain.LobbyAction) (*domain.Lobby, error) {
	return s.mutate(ctx, lobbyID, domain.LobbySlotAssigned, action.ActorID, action.PlayerID, func(l domain.Lobby) (domain.Lobby, error) {
		if action.ActorID != l.HostID && action.ActorID != action.PlayerID {
			return l, fmt.Errorf("%w: %s cannot move %s", domain.ErrNotHost, action.ActorID, action.PlayerID)
		}
		return s.roster.AssignTeamSlot(l, action.PlayerID, action.Side)
	})
}

// Finish closes a full lobby
func (s *LobbyService) Finish(ctx context.Context, lobbyID, actorID string) (*domain.Lobby, error) {
	return s.mutate(ctx, lobbyID, domain.LobbyFinished, actorID, "", func(l domain.Lobby) (domain.Lobby, error) {
		return s.roster.Finish(l, actorID)
	})
}

// mutate runs one transition under the lobby's lock against the stored
// snapshot, then persists it with a version check.
func (s *LobbyService) mutate(
	ctx context.Context,
	lobbyID string,
	event domain.LobbyEventType,
	actorID, playerID string,
	transition func(domain.Lobby) (domain.Lobby, error),
) (*domain.Lobby, error) {
	unlock := s.locker.Lock(lobbyID)
	defer unlock()

	current, err := s.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	next, err := transition(*current)
	if err != nil {
		s.logger.Debug("lobby transition rejected",
			"lobby_id", lobbyID,
			"event", event,
			"actor_id", actorID,
			"error", err,
		)
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	saved, err := s.store.UpdateLobby(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("saving lobby: %w", err)
	}

	s.published(ctx, saved, event, actorID, playerID)
	return &saved, nil
}

func (s *LobbyService) published(ctx context.Context, l domain.Lobby, event domain.LobbyEventType, actorID, playerID string) {
	s.cacheLobby(ctx, l)
	s.hub.BroadcastLobby(l)

	err := s.notifier.PublishLobby(ctx, domain.LobbyEvent{
		Type:     event,
		LobbyID:  l.ID,
		ActorID:  actorID,
		PlayerID: playerID,
		Status:   l.Status(),
		Version:  l.Version,
		At:       l.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to publish lobby event", "lobby_id", l.ID, "event", event, "error", err)
	}

	s.logger.Info("lobby updated",
		"lobby_id", l.ID,
		"event", event,
		"status", l.Status(),
		"confirmed", len(l.Confirmed),
		"version", l.Version,
	)
}

func (s *LobbyService) cacheLobby(ctx context.Context, l domain.Lobby) {
	if s.cache == nil {
		return
	}
	if err := s.cache.CacheLobby(ctx, l, lobbyCacheTTL); err != nil {
		s.logger.Warn("failed to cache lobby", "lobby_id", l.ID, "error", err)
	}
}

func toLobbyPlayer(p *domain.Player) domain.LobbyPlayer {
	return domain.LobbyPlayer{PlayerID: p.ID, Name: p.Name, MMR: p.MMR}
}
