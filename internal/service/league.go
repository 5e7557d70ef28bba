package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
	"github.com/padel-league/internal/rating"
)

const (
	// maxSubmitAttempts bounds retries when ratings move under a submission
	maxSubmitAttempts = 3
	// broadcastSize is how many rows a live board update carries
	broadcastSize = 10
	// defaultHistoryLimit applies when no match history limit is given
	defaultHistoryLimit = 20
)

// LeagueService provides business logic for players, teams and matches
type LeagueService struct {
	store      LeagueStore
	rankings   Rankings
	engine     *rating.Engine
	mmrOdds    *rating.Forecaster
	lpOdds     *rating.Forecaster
	hub        Broadcaster
	notifier   Notifier
	ratingCfg  *config.RatingConfig
	boardCfg   *config.LeaderboardConfig
	logger     *slog.Logger
	now        func() time.Time
	newMatchID func() string
}

// NewLeagueService creates a new league service. hub and notifier may be nil.
func NewLeagueService(
	store LeagueStore,
	rankings Rankings,
	engine *rating.Engine,
	hub Broadcaster,
	notifier Notifier,
	ratingCfg *config.RatingConfig,
	boardCfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeagueService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LeagueService{
		store:      store,
		rankings:   rankings,
		engine:     engine,
		mmrOdds:    rating.NewForecaster(engine.IndividualParams()),
		lpOdds:     rating.NewForecaster(engine.LeagueParams()),
		hub:        hub,
		notifier:   notifier,
		ratingCfg:  ratingCfg,
		boardCfg:   boardCfg,
		logger:     logger,
		now:        time.Now,
		newMatchID: uuid.NewString,
	}
}

// CreatePlayer registers a player
func (s *LeagueService) CreatePlayer(ctx context.Context, req domain.CreatePlayerRequest) (*domain.Player, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", domain.ErrInvalidRequest)
	}
	if req.MMR < 0 {
		return nil, fmt.Errorf("%w: mmr cannot be negative", domain.ErrInvalidRequest)
	}

	now := s.now().UTC()
	p := domain.Player{
		ID:        req.ID,
		Name:      name,
		MMR:       req.MMR,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.MMR == 0 {
		p.MMR = s.ratingCfg.InitialMMR
	}

	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}
	if err := s.rankings.SetPlayers(ctx, []domain.Player{p}); err != nil {
		s.logger.Warn("failed to rank new player", "player_id", p.ID, "error", err)
	}

	s.logger.Info("player created", "player_id", p.ID, "mmr", p.MMR)
	return &p, nil
}

// GetPlayer returns a player by ID
func (s *LeagueService) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	return s.store.GetPlayer(ctx, playerID)
}

// CreateTeam forms a team from two existing, distinct players
func (s *LeagueService) CreateTeam(ctx context.Context, req domain.CreateTeamRequest) (*domain.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", domain.ErrInvalidRequest)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	lp := s.ratingCfg.InitialLP
	team, err := domain.NewTeam(id, name, req.CaptainID, req.PartnerID, lp, s.engine.Tiers().Classify(lp))
	if err != nil {
		return nil, err
	}
	team.OpenToSparring = req.OpenToSparring
	team.CreatedAt = s.now().UTC()
	team.UpdatedAt = team.CreatedAt

	if _, err := s.store.GetPlayers(ctx, []string{team.CaptainID, team.PartnerID}); err != nil {
		return nil, fmt.Errorf("checking team members: %w", err)
	}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	if err := s.rankings.SetTeams(ctx, []domain.Team{team}); err != nil {
		s.logger.Warn("failed to rank new team", "team_id", team.ID, "error", err)
	}

	s.logger.Info("team created", "team_id", team.ID, "lp", team.LP, "tier", team.Tier)
	return &team, nil
}

// GetTeam returns a team with its current leaderboard rank
func (s *LeagueService) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	entry, err := s.rankings.GetRank(ctx, domain.BoardTeams, teamID)
	switch {
	case err == nil:
		team.Rank = entry.Rank
	case domain.IsNotFoundError(err):
		// Not synced yet; the sync worker will pick it up.
	default:
		s.logger.Warn("failed to read team rank", "team_id", teamID, "error", err)
	}
	rating.MarkStreak(team)
	return team, nil
}

// SubmitMatch validates, rates and stores a match exactly once
func (s *LeagueService) SubmitMatch(ctx context.Context, sub domain.MatchSubmission) (*domain.MatchOutcome, error) {
	if !sub.Type.Valid() {
		return nil, fmt.Errorf("%w: match type %q", domain.ErrInvalidRequest, sub.Type)
	}
	if err := rating.ValidateSets(sub.Sets, s.ratingCfg.MaxGames); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		sub.ID = s.newMatchID()
	}

	var (
		outcome domain.MatchOutcome
		applied rating.Applied
		err     error
	)
	for attempt := 1; ; attempt++ {
		outcome, applied, err = s.rateAndSave(ctx, sub)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrRatingConflict) || attempt == maxSubmitAttempts {
			return nil, err
		}
		s.logger.Debug("ratings changed during submission, retrying", "match_id", sub.ID, "attempt", attempt)
	}

	s.afterMatch(ctx, outcome, applied)

	s.logger.Info("match recorded",
		"match_id", outcome.MatchID,
		"type", outcome.Type,
		"winner", outcome.Winner,
		"score", outcome.ScoreLine,
		"tier_changes", len(outcome.TierChanges),
	)
	return &outcome, nil
}

func (s *LeagueService) rateAndSave(ctx context.Context, sub domain.MatchSubmission) (domain.MatchOutcome, rating.Applied, error) {
	result, err := s.buildResult(ctx, sub)
	if err != nil {
		return domain.MatchOutcome{}, rating.Applied{}, err
	}

	applied, err := s.engine.Apply(result)
	if err != nil {
		return domain.MatchOutcome{}, rating.Applied{}, err
	}

	outcome := domain.MatchOutcome{
		MatchID:      result.ID,
		Type:         result.Type,
		Winner:       applied.Outcome.Winner,
		SetsWonA:     applied.Outcome.SetsWon.A,
		SetsWonB:     applied.Outcome.SetsWon.B,
		ScoreLine:    applied.Outcome.ScoreLine,
		PlayerDeltas: applied.PlayerDeltas,
		TeamDeltas:   applied.TeamDeltas,
		TierChanges:  applied.TierChanges,
		PlayedAt:     result.PlayedAt,
	}

	if err := s.store.SaveMatch(ctx, sub, outcome, applied.Players, applied.Teams); err != nil {
		return domain.MatchOutcome{}, rating.Applied{}, fmt.Errorf("saving match: %w", err)
	}
	return outcome, applied, nil
}

// buildResult loads the participant snapshot for a submission
func (s *LeagueService) buildResult(ctx context.Context, sub domain.MatchSubmission) (domain.MatchResult, error) {
	result := domain.MatchResult{
		ID:       sub.ID,
		Type:     sub.Type,
		Sets:     sub.Sets,
		PlayedAt: s.now().UTC(),
	}

	if sub.Type == domain.MatchTypeLeague {
		if len(sub.SideA) > 0 || len(sub.SideB) > 0 {
			return result, fmt.Errorf("%w: league matches are reported by team", domain.ErrRatingDomainMismatch)
		}
		if sub.TeamAID == "" || sub.TeamBID == "" {
			return result, fmt.Errorf("%w: league matches need two teams", domain.ErrRatingDomainMismatch)
		}
		teamA, err := s.store.GetTeam(ctx, sub.TeamAID)
		if err != nil {
			return result, err
		}
		teamB, err := s.store.GetTeam(ctx, sub.TeamBID)
		if err != nil {
			return result, err
		}
		for _, id := range teamB.Members() {
			if teamA.HasMember(id) {
				return result, fmt.Errorf("%w: %s plays for both teams", domain.ErrInvalidRequest, id)
			}
		}
		result.TeamA, result.TeamB = teamA, teamB
		return result, nil
	}

	if sub.TeamAID != "" || sub.TeamBID != "" {
		return result, fmt.Errorf("%w: %s matches are reported by player", domain.ErrRatingDomainMismatch, sub.Type)
	}
	if len(sub.SideA) != 2 || len(sub.SideB) != 2 {
		return result, fmt.Errorf("%w: each side needs exactly two players", domain.ErrRatingDomainMismatch)
	}

	ids := append(append([]string{}, sub.SideA...), sub.SideB...)
	players, err := s.store.GetPlayers(ctx, ids)
	if err != nil {
		return result, err
	}
	for i := 0; i < 2; i++ {
		result.SideA[i] = players[sub.SideA[i]]
		result.SideB[i] = players[sub.SideB[i]]
	}
	return result, nil
}

// afterMatch refreshes the read models and fans the outcome out. Failures
// are logged; the sync worker rebuilds the boards from Postgres.
func (s *LeagueService) afterMatch(ctx context.Context, outcome domain.MatchOutcome, applied rating.Applied) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.rankings.SetPlayers(gctx, applied.Players)
	})
	g.Go(func() error {
		return s.rankings.SetTeams(gctx, applied.Teams)
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to refresh leaderboards", "match_id", outcome.MatchID, "error", err)
	}

	board := domain.BoardPlayers
	if outcome.Type == domain.MatchTypeLeague {
		board = domain.BoardTeams
	}
	s.broadcastBoard(ctx, board)
	s.hub.BroadcastMatch(outcome)

	if err := s.notifier.PublishMatch(ctx, outcome); err != nil {
		s.logger.Warn("failed to publish match", "match_id", outcome.MatchID, "error", err)
	}
	for _, change := range outcome.TierChanges {
		s.hub.BroadcastTierChange(change)
		if err := s.notifier.PublishTierChange(ctx, change); err != nil {
			s.logger.Warn("failed to publish tier change", "team_id", change.TeamID, "error", err)
		}
	}
}

func (s *LeagueService) broadcastBoard(ctx context.Context, board domain.Board) {
	var (
		entries []domain.LeaderboardEntry
		stats   *domain.LeaderboardStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.rankings.GetTopN(gctx, board, broadcastSize)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.rankings.Stats(gctx, board)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to read board for broadcast", "board", board, "error", err)
		return
	}
	s.hub.BroadcastBoard(board, entries, stats.Total)
}

// SubmitMatchBatch submits several matches, continuing past failures
func (s *LeagueService) SubmitMatchBatch(ctx context.Context, batch domain.BatchMatchSubmission) error {
	for _, sub := range batch.Matches {
		if _, err := s.SubmitMatch(ctx, sub); err != nil {
			if errors.Is(err, domain.ErrMatchExists) {
				s.logger.Debug("skipping duplicate match", "match_id", sub.ID)
				continue
			}
			s.logger.Error("failed to submit match in batch",
				"match_id", sub.ID,
				"type", sub.Type,
				"error", err,
			)
			// Continue processing other matches
		}
	}
	return nil
}

// GetMatch returns a stored match outcome
func (s *LeagueService) GetMatch(ctx context.Context, matchID string) (*domain.MatchOutcome, error) {
	return s.store.GetMatch(ctx, matchID)
}

// MatchHistory returns recent matches of a player or team
func (s *LeagueService) MatchHistory(ctx context.Context, subjectID string, limit int) ([]domain.MatchOutcome, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > s.boardCfg.MaxLimit {
		limit = s.boardCfg.MaxLimit
	}
	return s.store.ListRecentMatches(ctx, subjectID, limit)
}

// Forecast returns side A's win probability with the engine's own curve
func (s *LeagueService) Forecast(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast, error) {
	f := &domain.Forecast{Type: req.Type}

	switch {
	case req.Type == domain.MatchTypeLeague:
		if req.TeamAID == "" || req.TeamBID == "" {
			return nil, fmt.Errorf("%w: league forecasts need two teams", domain.ErrRatingDomainMismatch)
		}
		teamA, err := s.store.GetTeam(ctx, req.TeamAID)
		if err != nil {
			return nil, err
		}
		teamB, err := s.store.GetTeam(ctx, req.TeamBID)
		if err != nil {
			return nil, err
		}
		f.RatingA, f.RatingB = float64(teamA.LP), float64(teamB.LP)
		f.ProbabilityA = s.lpOdds.Forecast(f.RatingA, f.RatingB)

	case req.Type.Individual():
		if len(req.SideA) != 2 || len(req.SideB) != 2 {
			return nil, fmt.Errorf("%w: each side needs exactly two players", domain.ErrRatingDomainMismatch)
		}
		ids := append(append([]string{}, req.SideA...), req.SideB...)
		players, err := s.store.GetPlayers(ctx, ids)
		if err != nil {
			return nil, err
		}
		f.RatingA = rating.Average(players[req.SideA[0]].MMR, players[req.SideA[1]].MMR)
		f.RatingB = rating.Average(players[req.SideB[0]].MMR, players[req.SideB[1]].MMR)
		f.ProbabilityA = s.mmrOdds.Forecast(f.RatingA, f.RatingB)

	default:
		return nil, fmt.Errorf("%w: match type %q", domain.ErrInvalidRequest, req.Type)
	}

	f.ProbabilityB = 1 - f.ProbabilityA
	return f, nil
}

// clampLimit applies the configured leaderboard limits
func (s *LeagueService) clampLimit(n int) int {
	if n <= 0 {
		n = s.boardCfg.DefaultLimit
	}
	if n > s.boardCfg.MaxLimit {
		n = s.boardCfg.MaxLimit
	}
	return n
}

// TopTeams returns the highest-LP teams
func (s *LeagueService) TopTeams(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.rankings.GetTopN(ctx, domain.BoardTeams, s.clampLimit(n))
	if err != nil {
		return nil, fmt.Errorf("getting top teams: %w", err)
	}
	return entries, nil
}

// TopPlayers returns the highest-MMR players
func (s *LeagueService) TopPlayers(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.rankings.GetTopN(ctx, domain.BoardPlayers, s.clampLimit(n))
	if err != nil {
		return nil, fmt.Errorf("getting top players: %w", err)
	}
	return entries, nil
}

// TeamRank returns a team's leaderboard position
func (s *LeagueService) TeamRank(ctx context.Context, teamID string) (*domain.LeaderboardEntry, error) {
	return s.rankings.GetRank(ctx, domain.BoardTeams, teamID)
}

// PlayerRank returns a player's leaderboard position
func (s *LeagueService) PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	return s.rankings.GetRank(ctx, domain.BoardPlayers, playerID)
}

// Around returns the entries surrounding id on a board
func (s *LeagueService) Around(ctx context.Context, board domain.Board, id string, count int) ([]domain.LeaderboardEntry, error) {
	if !board.Valid() {
		return nil, fmt.Errorf("%w: board %q", domain.ErrInvalidRequest, board)
	}
	if count <= 0 {
		count = 5
	}
	if count > 50 {
		count = 50
	}
	return s.rankings.GetAround(ctx, board, id, count)
}

// BoardStats returns statistics for a board
func (s *LeagueService) BoardStats(ctx context.Context, board domain.Board) (*domain.LeaderboardStats, error) {
	if !board.Valid() {
		return nil, fmt.Errorf("%w: board %q", domain.ErrInvalidRequest, board)
	}
	return s.rankings.Stats(ctx, board)
}

// Tiers returns the tier table in ascending order
func (s *LeagueService) Tiers() []rating.TierBand {
	return s.engine.Tiers().Boundaries()
}
