package service

import (
	"context"
	"time"

	"github.com/padel-league/internal/domain"
)

// PlayerStore reads and writes players
type PlayerStore interface {
	CreatePlayer(ctx context.Context, p domain.Player) error
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	GetPlayers(ctx context.Context, playerIDs []string) (map[string]domain.Player, error)
}

// LeagueStore is the durable state behind LeagueService
type LeagueStore interface {
	PlayerStore
	CreateTeam(ctx context.Context, t domain.Team) error
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	SaveMatch(ctx context.Context, sub domain.MatchSubmission, outcome domain.MatchOutcome, players []domain.Player, teams []domain.Team) error
	GetMatch(ctx context.Context, matchID string) (*domain.MatchOutcome, error)
	ListRecentMatches(ctx context.Context, subjectID string, limit int) ([]domain.MatchOutcome, error)
}

// LobbyStore is the durable state behind LobbyService
type LobbyStore interface {
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	InsertLobby(ctx context.Context, l domain.Lobby) (domain.Lobby, error)
	UpdateLobby(ctx context.Context, l domain.Lobby) (domain.Lobby, error)
	GetLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error)
	ListOpenLobbies(ctx context.Context, lobbyType domain.MatchType, limit int) ([]domain.Lobby, error)
}

// Rankings is the leaderboard read model
type Rankings interface {
	SetTeams(ctx context.Context, teams []domain.Team) error
	SetPlayers(ctx context.Context, players []domain.Player) error
	GetTopN(ctx context.Context, board domain.Board, n int) ([]domain.LeaderboardEntry, error)
	GetRank(ctx context.Context, board domain.Board, id string) (*domain.LeaderboardEntry, error)
	GetAround(ctx context.Context, board domain.Board, id string, count int) ([]domain.LeaderboardEntry, error)
	Stats(ctx context.Context, board domain.Board) (*domain.LeaderboardStats, error)
}

// LobbyCache keeps hot lobby snapshots. A nil lobby from CachedLobby is a miss.
type LobbyCache interface {
	CacheLobby(ctx context.Context, l domain.Lobby, ttl time.Duration) error
	CachedLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error)
}

// Broadcaster pushes live updates to connected clients
type Broadcaster interface {
	BroadcastMatch(outcome domain.MatchOutcome)
	BroadcastBoard(board domain.Board, entries []domain.LeaderboardEntry, total int64)
	BroadcastTierChange(change domain.TierChange)
	BroadcastLobby(l domain.Lobby)
}

// Notifier fans events out to other services
type Notifier interface {
	PublishMatch(ctx context.Context, outcome domain.MatchOutcome) error
	PublishTierChange(ctx context.Context, change domain.TierChange) error
	PublishLobby(ctx context.Context, event domain.LobbyEvent) error
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastMatch(domain.MatchOutcome)                            {}
func (nopBroadcaster) BroadcastBoard(domain.Board, []domain.LeaderboardEntry, int64) {}
func (nopBroadcaster) BroadcastTierChange(domain.TierChange)                         {}
func (nopBroadcaster) BroadcastLobby(domain.Lobby)                                   {}

type nopNotifier struct{}

func (nopNotifier) PublishMatch(context.Context, domain.MatchOutcome) error    { return nil }
func (nopNotifier) PublishTierChange(context.Context, domain.TierChange) error { return nil }
func (nopNotifier) PublishLobby(context.Context, domain.LobbyEvent) error      { return nil }
