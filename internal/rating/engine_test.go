package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padel-league/internal/domain"
)

var playedAt = time.Date(2024, 5, 4, 18, 30, 0, 0, time.UTC)

func player(id string, mmr float64) domain.Player {
	return domain.Player{ID: id, Name: id, MMR: mmr}
}

func team(id string, lp int, streak int) *domain.Team {
	return &domain.Team{
		ID:        id,
		Name:      id,
		CaptainID: id + "-c",
		PartnerID: id + "-p",
		LP:        lp,
		Tier:      DefaultTierClassifier().Classify(lp),
		WinStreak: streak,
	}
}

func individualMatch(typ domain.MatchType, a1, a2, b1, b2 float64, s []domain.SetScore) domain.MatchResult {
	return domain.MatchResult{
		ID:       "m-1",
		Type:     typ,
		Sets:     s,
		SideA:    [2]domain.Player{player("a1", a1), player("a2", a2)},
		SideB:    [2]domain.Player{player("b1", b1), player("b2", b2)},
		PlayedAt: playedAt,
	}
}

func leagueMatch(a, b *domain.Team, s []domain.SetScore) domain.MatchResult {
	return domain.MatchResult{
		ID:       "m-1",
		Type:     domain.MatchTypeLeague,
		Sets:     s,
		TeamA:    a,
		TeamB:    b,
		PlayedAt: playedAt,
	}
}

var (
	aWins = sets([2]int{6, 4}, [2]int{6, 3})
	bWins = sets([2]int{4, 6}, [2]int{2, 6})
)

func TestApplyIndividualIsZeroSum(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		name           string
		a1, a2, b1, b2 float64
		sets           []domain.SetScore
	}{
		{"even pairs", 3.5, 3.5, 3.5, 3.5, aWins},
		{"favourite wins", 5.0, 4.5, 3.0, 3.2, aWins},
		{"underdog wins", 2.5, 3.0, 4.8, 5.1, aWins},
		{"B wins in three", 4.0, 4.0, 3.9, 4.1, sets([2]int{6, 4}, [2]int{3, 6}, [2]int{5, 7})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, typ := range []domain.MatchType{domain.MatchTypeSparring, domain.MatchTypeRanked} {
				applied, err := engine.Apply(individualMatch(typ, tt.a1, tt.a2, tt.b1, tt.b2, tt.sets))
				require.NoError(t, err)
				require.Len(t, applied.PlayerDeltas, 4)
				assert.Empty(t, applied.Teams)
				assert.Empty(t, applied.TierChanges)

				total := 0.0
				for _, d := range applied.PlayerDeltas {
					total += d.Delta
					assert.InDelta(t, d.After-d.Before, d.Delta, 1e-9)
				}
				assert.InDelta(t, 0, total, 1e-9)

				// Partners always move together.
				assert.Equal(t, applied.PlayerDeltas[0].Delta, applied.PlayerDeltas[1].Delta)
				assert.Equal(t, applied.PlayerDeltas[2].Delta, applied.PlayerDeltas[3].Delta)
			}
		})
	}
}

func TestApplyIndividualMagnitudes(t *testing.T) {
	engine := DefaultEngine()

	even, err := engine.Apply(individualMatch(domain.MatchTypeRanked, 3.5, 3.5, 3.5, 3.5, aWins))
	require.NoError(t, err)
	assert.InDelta(t, 0.0625, even.PlayerDeltas[0].Delta, 1e-9)
	assert.InDelta(t, 3.5625, even.Players[0].MMR, 1e-9)
	assert.InDelta(t, 3.4375, even.Players[2].MMR, 1e-9)

	// A lopsided favourite still moves by the floor.
	fav, err := engine.Apply(individualMatch(domain.MatchTypeRanked, 6.0, 6.0, 2.0, 2.0, aWins))
	require.NoError(t, err)
	assert.InDelta(t, 0.05, fav.PlayerDeltas[0].Delta, 1e-9)

	// A big upset is capped at the ceiling.
	upset, err := engine.Apply(individualMatch(domain.MatchTypeRanked, 2.0, 2.0, 6.0, 6.0, aWins))
	require.NoError(t, err)
	assert.InDelta(t, 0.125, upset.PlayerDeltas[0].Delta, 1e-9)
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	engine := DefaultEngine()
	a, b := team("t-a", 1000, 2), team("t-b", 1000, 4)

	_, err := engine.Apply(leagueMatch(a, b, aWins))
	require.NoError(t, err)
	assert.Equal(t, 1000, a.LP)
	assert.Equal(t, 2, a.WinStreak)
	assert.Equal(t, 1000, b.LP)

	result := individualMatch(domain.MatchTypeSparring, 3, 3, 3, 3, aWins)
	_, err = engine.Apply(result)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.SideA[0].MMR)
}

func TestApplyLeague(t *testing.T) {
	engine := DefaultEngine()

	t.Run("equal teams move 25", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1000, 0), team("t-b", 1000, 0), aWins))
		require.NoError(t, err)
		require.Len(t, applied.TeamDeltas, 2)

		assert.Equal(t, 1025, applied.Teams[0].LP)
		assert.Equal(t, 975, applied.Teams[1].LP)
		assert.Equal(t, 25, applied.TeamDeltas[0].Delta)
		assert.Equal(t, -25, applied.TeamDeltas[1].Delta)
		assert.Equal(t, domain.TierHerald, applied.Teams[0].Tier)
		assert.Equal(t, domain.TierHerald, applied.Teams[1].Tier)
		assert.Empty(t, applied.TierChanges)
		assert.Empty(t, applied.Players)
	})

	t.Run("output keeps side order when B wins", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1000, 3), team("t-b", 1000, 1), bWins))
		require.NoError(t, err)
		assert.Equal(t, "t-a", applied.Teams[0].ID)
		assert.Equal(t, "t-b", applied.Teams[1].ID)
		assert.Equal(t, 975, applied.Teams[0].LP)
		assert.Equal(t, 1025, applied.Teams[1].LP)
		assert.Equal(t, 0, applied.Teams[0].WinStreak)
		assert.Equal(t, 2, applied.Teams[1].WinStreak)
	})

	t.Run("upset pays more", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1000, 0), team("t-b", 1400, 0), aWins))
		require.NoError(t, err)
		assert.Equal(t, 45, applied.TeamDeltas[0].Delta)
		assert.Equal(t, -45, applied.TeamDeltas[1].Delta)
	})

	t.Run("favourite win floored", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1400, 0), team("t-b", 1000, 0), aWins))
		require.NoError(t, err)
		assert.Equal(t, 10, applied.TeamDeltas[0].Delta)
		assert.Equal(t, 990, applied.Teams[1].LP)
	})

	t.Run("loser clamped at zero", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 10, 0), team("t-b", 10, 0), aWins))
		require.NoError(t, err)
		assert.Equal(t, 0, applied.Teams[1].LP)
		assert.Equal(t, -10, applied.TeamDeltas[1].Delta)
		assert.Equal(t, 35, applied.Teams[0].LP)
	})

	t.Run("promotion emits tier change", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1190, 0), team("t-b", 1190, 0), aWins))
		require.NoError(t, err)
		assert.Equal(t, domain.TierEpic, applied.Teams[0].Tier)
		require.Len(t, applied.TierChanges, 1)

		change := applied.TierChanges[0]
		assert.Equal(t, "t-a", change.TeamID)
		assert.Equal(t, "m-1", change.MatchID)
		assert.Equal(t, domain.TierHerald, change.From)
		assert.Equal(t, domain.TierEpic, change.To)
		assert.True(t, change.Promoted)
		assert.Equal(t, playedAt, change.At)
	})

	t.Run("demotion emits tier change", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1510, 0), team("t-b", 1510, 0), bWins))
		require.NoError(t, err)
		require.Len(t, applied.TierChanges, 1)
		assert.Equal(t, "t-a", applied.TierChanges[0].TeamID)
		assert.Equal(t, domain.TierLegend, applied.TierChanges[0].From)
		assert.Equal(t, domain.TierEpic, applied.TierChanges[0].To)
		assert.False(t, applied.TierChanges[0].Promoted)
	})

	t.Run("streak grows to on fire", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1000, 2), team("t-b", 1000, 0), aWins))
		require.NoError(t, err)
		assert.Equal(t, 3, applied.Teams[0].WinStreak)
		assert.True(t, OnFire(applied.Teams[0].WinStreak))
		assert.Equal(t, 2, applied.TeamDeltas[0].StreakBefore)
		assert.True(t, applied.Teams[0].OnFire)
		assert.True(t, applied.TeamDeltas[0].OnFire)
		assert.False(t, applied.TeamDeltas[0].Blazing)
		assert.False(t, applied.Teams[1].OnFire)
	})

	t.Run("blazing after five wins, cleared by a loss", func(t *testing.T) {
		applied, err := engine.Apply(leagueMatch(team("t-a", 1000, 4), team("t-b", 1000, 7), aWins))
		require.NoError(t, err)
		assert.True(t, applied.Teams[0].Blazing)
		assert.True(t, applied.TeamDeltas[0].Blazing)
		assert.False(t, applied.Teams[1].OnFire)
		assert.False(t, applied.Teams[1].Blazing)
		assert.Equal(t, 0, applied.TeamDeltas[1].StreakAfter)
	})
}

func TestApplyRejects(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		name   string
		result domain.MatchResult
		err    error
	}{
		{
			name:   "undecided sets",
			result: individualMatch(domain.MatchTypeRanked, 3, 3, 3, 3, sets([2]int{6, 4}, [2]int{4, 6})),
			err:    domain.ErrUndecidedMatch,
		},
		{
			name: "league match with players",
			result: func() domain.MatchResult {
				r := leagueMatch(team("t-a", 1000, 0), team("t-b", 1000, 0), aWins)
				r.SideA[0] = player("p", 3)
				return r
			}(),
			err: domain.ErrRatingDomainMismatch,
		},
		{
			name:   "league match missing team",
			result: leagueMatch(team("t-a", 1000, 0), nil, aWins),
			err:    domain.ErrRatingDomainMismatch,
		},
		{
			name: "ranked match with teams",
			result: func() domain.MatchResult {
				r := individualMatch(domain.MatchTypeRanked, 3, 3, 3, 3, aWins)
				r.TeamA = team("t-a", 1000, 0)
				return r
			}(),
			err: domain.ErrRatingDomainMismatch,
		},
		{
			name: "sparring match missing a player",
			result: func() domain.MatchResult {
				r := individualMatch(domain.MatchTypeSparring, 3, 3, 3, 3, aWins)
				r.SideB[1] = domain.Player{}
				return r
			}(),
			err: domain.ErrRatingDomainMismatch,
		},
		{
			name: "same player on both sides",
			result: func() domain.MatchResult {
				r := individualMatch(domain.MatchTypeSparring, 3, 3, 3, 3, aWins)
				r.SideB[0] = r.SideA[0]
				return r
			}(),
			err: domain.ErrInvalidRequest,
		},
		{
			name:   "team against itself",
			result: leagueMatch(team("t-a", 1000, 0), team("t-a", 1000, 0), aWins),
			err:    domain.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Apply(tt.result)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
