package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

// RankingService keeps the team LP and player MMR leaderboards in sorted sets
type RankingService struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRankingService creates a new Redis ranking service
func NewRankingService(cfg *config.RedisConfig, logger *slog.Logger) (*RankingService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RankingService{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RankingService) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *RankingService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// boardKey returns the Redis key for a board's sorted set
func (s *RankingService) boardKey(board domain.Board) string {
	return fmt.Sprintf("%s:board:%s", s.prefix, board)
}

// infoKey returns the Redis key for the display info of a board member
func (s *RankingService) infoKey(board domain.Board, id string) string {
	return fmt.Sprintf("%s:%s:%s:info", s.prefix, board, id)
}

func (s *RankingService) lobbyKey(lobbyID string) string {
	return fmt.Sprintf("%s:lobby:%s", s.prefix, lobbyID)
}

func notFound(board domain.Board, id string) error {
	if board == domain.BoardTeams {
		return fmt.Errorf("%w: %s not ranked", domain.ErrTeamNotFound, id)
	}
	return fmt.Errorf("%w: %s not ranked", domain.ErrPlayerNotFound, id)
}

func (s *RankingService) queueTeam(ctx context.Context, pipe redis.Pipeliner, t domain.Team) {
	pipe.ZAdd(ctx, s.boardKey(domain.BoardTeams), redis.Z{Score: float64(t.LP), Member: t.ID})
	pipe.HSet(ctx, s.infoKey(domain.BoardTeams, t.ID), "name", t.Name, "tier", string(t.Tier))
}

func (s *RankingService) queuePlayer(ctx context.Context, pipe redis.Pipeliner, p domain.Player) {
	pipe.ZAdd(ctx, s.boardKey(domain.BoardPlayers), redis.Z{Score: p.MMR, Member: p.ID})
	pipe.HSet(ctx, s.infoKey(domain.BoardPlayers, p.ID), "name", p.Name)
}

// SetTeams writes team LP and display info using pipelining
func (s *RankingService) SetTeams(ctx context.Context, teams []domain.Team) error {
	if len(teams) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, t := range teams {
		s.queueTeam(ctx, pipe, t)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting team ratings: %w", err)
	}
	return nil
}

// SetPlayers writes player MMR and display info using pipelining
func (s *RankingService) SetPlayers(ctx context.Context, players []domain.Player) error {
	if len(players) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, p := range players {
		s.queuePlayer(ctx, pipe, p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting player ratings: %w", err)
	}
	return nil
}

// GetTopN returns the top N members of a board (descending rating)
func (s *RankingService) GetTopN(ctx context.Context, board domain.Board, n int) ([]domain.LeaderboardEntry, error) {
	return s.GetRange(ctx, board, 0, n-1)
}

// GetRange returns members within a specific rank range (0-indexed, inclusive)
func (s *RankingService) GetRange(ctx context.Context, board domain.Board, start, end int) ([]domain.LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, s.boardKey(board), int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := toEntries(results, int64(start))
	if err := s.fillInfo(ctx, board, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func toEntries(results []redis.Z, offset int64) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		member, _ := result.Member.(string)
		entries[i] = domain.LeaderboardEntry{
			Rank:   offset + int64(i) + 1, // Convert to 1-indexed rank
			ID:     member,
			Rating: result.Score,
		}
	}
	return entries
}

// fillInfo attaches cached names and tiers in one round trip
func (s *RankingService) fillInfo(ctx context.Context, board domain.Board, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.HGetAll(ctx, s.infoKey(board, e.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("getting member info: %w", err)
	}

	for i, cmd := range cmds {
		info, err := cmd.Result()
		if err != nil {
			continue
		}
		entries[i].Name = info["name"]
		entries[i].Tier = domain.Tier(info["tier"])
	}
	return nil
}

// GetRank returns a member's rank and rating
func (s *RankingService) GetRank(ctx context.Context, board domain.Board, id string) (*domain.LeaderboardEntry, error) {
	key := s.boardKey(board)

	// Use pipeline to get both rank and score
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, id)
	scoreCmd := pipe.ZScore(ctx, key, id)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(board, id)
		}
		return nil, fmt.Errorf("getting rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(board, id)
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	entries := []domain.LeaderboardEntry{{Rank: rank + 1, ID: id, Rating: score}}
	if err := s.fillInfo(ctx, board, entries); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// GetAround returns members around a specific member's rank
func (s *RankingService) GetAround(ctx context.Context, board domain.Board, id string, count int) ([]domain.LeaderboardEntry, error) {
	entry, err := s.GetRank(ctx, board, id)
	if err != nil {
		return nil, err
	}

	start, end := aroundRange(entry.Rank, count)
	return s.GetRange(ctx, board, start, end)
}

// aroundRange converts a 1-indexed rank into the 0-indexed window around it
func aroundRange(rank int64, count int) (int, int) {
	start := rank - int64(count) - 1
	if start < 0 {
		start = 0
	}
	end := rank + int64(count) - 1
	return int(start), int(end)
}

// Stats returns size and rating extremes for a board
func (s *RankingService) Stats(ctx context.Context, board domain.Board) (*domain.LeaderboardStats, error) {
	key := s.boardKey(board)

	pipe := s.client.Pipeline()
	countCmd := pipe.ZCard(ctx, key)
	topCmd := pipe.ZRevRangeWithScores(ctx, key, 0, 0)
	bottomCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	stats := &domain.LeaderboardStats{Board: board, Total: countCmd.Val()}
	if top := topCmd.Val(); len(top) > 0 {
		stats.Highest = top[0].Score
	}
	if bottom := bottomCmd.Val(); len(bottom) > 0 {
		stats.Lowest = bottom[0].Score
	}
	return stats, nil
}

// Reset clears a board
func (s *RankingService) Reset(ctx context.Context, board domain.Board) error {
	if err := s.client.Del(ctx, s.boardKey(board)).Err(); err != nil {
		return fmt.Errorf("resetting %s board: %w", board, err)
	}
	return nil
}

// CacheLobby stores a lobby snapshot for fast reads
func (s *RankingService) CacheLobby(ctx context.Context, l domain.Lobby, ttl time.Duration) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling lobby: %w", err)
	}
	if err := s.client.Set(ctx, s.lobbyKey(l.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("caching lobby: %w", err)
	}
	return nil
}

// CachedLobby returns a cached lobby snapshot, or nil on a miss
func (s *RankingService) CachedLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error) {
	data, err := s.client.Get(ctx, s.lobbyKey(lobbyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cached lobby: %w", err)
	}

	var l domain.Lobby
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding cached lobby: %w", err)
	}
	return &l, nil
}
