package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
	"github.com/padel-league/internal/rating"
)

var testNow = time.Date(2024, 7, 1, 20, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory LeagueStore and LobbyStore
type memStore struct {
	mu        sync.Mutex
	players   map[string]domain.Player
	teams     map[string]domain.Team
	matches   map[string]domain.MatchOutcome
	lobbies   map[string]domain.Lobby
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		players: map[string]domain.Player{},
		teams:   map[string]domain.Team{},
		matches: map[string]domain.MatchOutcome{},
		lobbies: map[string]domain.Lobby{},
	}
}

func (m *memStore) CreatePlayer(_ context.Context, p domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[p.ID]; ok {
		return domain.ErrPlayerExists
	}
	m.players[p.ID] = p
	return nil
}

func (m *memStore) GetPlayer(_ context.Context, id string) (*domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
	}
	return &p, nil
}

func (m *memStore) GetPlayers(_ context.Context, ids []string) (map[string]domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Player{}
	for _, id := range ids {
		p, ok := m.players[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
		}
		out[id] = p
	}
	return out, nil
}

func (m *memStore) CreateTeam(_ context.Context, t domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; ok {
		return domain.ErrTeamExists
	}
	m.teams[t.ID] = t
	return nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTeamNotFound, id)
	}
	return &t, nil
}

func (m *memStore) SaveMatch(_ context.Context, _ domain.MatchSubmission, outcome domain.MatchOutcome, players []domain.Player, teams []domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return domain.ErrRatingConflict
	}
	if _, ok := m.matches[outcome.MatchID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrMatchExists, outcome.MatchID)
	}
	for i, p := range players {
		if m.players[p.ID].MMR != outcome.PlayerDeltas[i].Before {
			return domain.ErrRatingConflict
		}
	}
	for i, t := range teams {
		if m.teams[t.ID].LP != outcome.TeamDeltas[i].LPBefore {
			return domain.ErrRatingConflict
		}
	}

	m.matches[outcome.MatchID] = outcome
	for _, p := range players {
		m.players[p.ID] = p
	}
	for _, t := range teams {
		m.teams[t.ID] = t
	}
	return nil
}

func (m *memStore) GetMatch(_ context.Context, id string) (*domain.MatchOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return &o, nil
}

func (m *memStore) ListRecentMatches(_ context.Context, subjectID string, limit int) ([]domain.MatchOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MatchOutcome
	for _, o := range m.matches {
		for _, d := range o.TeamDeltas {
			if d.TeamID == subjectID {
				out = append(out, o)
			}
		}
		for _, d := range o.PlayerDeltas {
			if d.PlayerID == subjectID {
				out = append(out, o)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertLobby(_ context.Context, l domain.Lobby) (domain.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Version = 1
	m.lobbies[l.ID] = l.Clone()
	return l, nil
}

func (m *memStore) UpdateLobby(_ context.Context, l domain.Lobby) (domain.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.lobbies[l.ID]
	if !ok {
		return l, domain.ErrLobbyNotFound
	}
	if stored.Version != l.Version {
		return l, domain.ErrLobbyConflict
	}
	l.Version++
	m.lobbies[l.ID] = l.Clone()
	return l, nil
}

func (m *memStore) GetLobby(_ context.Context, id string) (*domain.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLobbyNotFound, id)
	}
	c := l.Clone()
	return &c, nil
}

func (m *memStore) ListOpenLobbies(_ context.Context, typ domain.MatchType, limit int) ([]domain.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lobby
	for _, l := range m.lobbies {
		if l.Status() == domain.LobbyStatusOpen && (typ == "" || l.Type == typ) {
			out = append(out, l.Clone())
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memRankings is an in-memory Rankings and LobbyCache
type memRankings struct {
	mu      sync.Mutex
	ratings map[domain.Board]map[string]float64
	lobbies map[string]domain.Lobby
}

func newMemRankings() *memRankings {
	return &memRankings{
		ratings: map[domain.Board]map[string]float64{
			domain.BoardTeams:   {},
			domain.BoardPlayers: {},
		},
		lobbies: map[string]domain.Lobby{},
	}
}

func (r *memRankings) SetTeams(_ context.Context, teams []domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range teams {
		r.ratings[domain.BoardTeams][t.ID] = float64(t.LP)
	}
	return nil
}

func (r *memRankings) SetPlayers(_ context.Context, players []domain.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range players {
		r.ratings[domain.BoardPlayers][p.ID] = p.MMR
	}
	return nil
}

func (r *memRankings) sorted(board domain.Board) []domain.LeaderboardEntry {
	var entries []domain.LeaderboardEntry
	for id, v := range r.ratings[board] {
		entries = append(entries, domain.LeaderboardEntry{ID: id, Rating: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating == entries[j].Rating {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Rating > entries[j].Rating
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (r *memRankings) GetTopN(_ context.Context, board domain.Board, n int) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted(board)
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (r *memRankings) GetRank(_ context.Context, board domain.Board, id string) (*domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sorted(board) {
		if e.ID == id {
			return &e, nil
		}
	}
	if board == domain.BoardTeams {
		return nil, domain.ErrTeamNotFound
	}
	return nil, domain.ErrPlayerNotFound
}

func (r *memRankings) GetAround(ctx context.Context, board domain.Board, id string, count int) ([]domain.LeaderboardEntry, error) {
	entry, err := r.GetRank(ctx, board, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(board)
	start := int(entry.Rank) - count - 1
	if start < 0 {
		start = 0
	}
	end := int(entry.Rank) + count
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memRankings) Stats(_ context.Context, board domain.Board) (*domain.LeaderboardStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted(board)
	stats := &domain.LeaderboardStats{Board: board, Total: int64(len(entries))}
	if len(entries) > 0 {
		stats.Highest = entries[0].Rating
		stats.Lowest = entries[len(entries)-1].Rating
	}
	return stats, nil
}

func (r *memRankings) CacheLobby(_ context.Context, l domain.Lobby, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobbies[l.ID] = l.Clone()
	return nil
}

func (r *memRankings) CachedLobby(_ context.Context, id string) (*domain.Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[id]
	if !ok {
		return nil, nil
	}
	c := l.Clone()
	return &c, nil
}

// recorder captures broadcasts and published events
type recorder struct {
	mu          sync.Mutex
	matches     []domain.MatchOutcome
	boards      []domain.Board
	tierChanges []domain.TierChange
	lobbies     []domain.Lobby
	published   []string
	lobbyEvents []domain.LobbyEvent
}

func (r *recorder) BroadcastMatch(o domain.MatchOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, o)
}

func (r *recorder) BroadcastBoard(b domain.Board, _ []domain.LeaderboardEntry, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
}

func (r *recorder) BroadcastTierChange(c domain.TierChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tierChanges = append(r.tierChanges, c)
}

func (r *recorder) BroadcastLobby(l domain.Lobby) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobbies = append(r.lobbies, l)
}

func (r *recorder) PublishMatch(_ context.Context, o domain.MatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, "match:"+o.MatchID)
	return nil
}

func (r *recorder) PublishTierChange(_ context.Context, c domain.TierChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, "tier:"+c.TeamID)
	return nil
}

func (r *recorder) PublishLobby(_ context.Context, e domain.LobbyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobbyEvents = append(r.lobbyEvents, e)
	return nil
}

func newTestLeague(store *memStore, rankings *memRankings, rec *recorder) *LeagueService {
	cfg := config.DefaultConfig()
	svc := NewLeagueService(store, rankings, rating.DefaultEngine(), rec, rec, &cfg.Rating, &cfg.Leaderboard, discardLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}

func newTestLobbies(store *memStore, cache LobbyCache, rec *recorder) *LobbyService {
	cfg := config.DefaultConfig()
	svc := NewLobbyService(store, cache, rec, rec, &cfg.Lobby, discardLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}
