package rating

import (
	"fmt"
	"math"

	"github.com/padel-league/internal/domain"
)

// Engine converts resolved matches into rating movements. It never mutates
// its inputs: Apply returns the new snapshots and the caller stores them.
type Engine struct {
	individual Params
	league     Params
	tiers      *TierClassifier
}

// NewEngine creates a rating engine
func NewEngine(individual, league Params, tiers *TierClassifier) *Engine {
	if tiers == nil {
		tiers = DefaultTierClassifier()
	}
	return &Engine{
		individual: individual,
		league:     league,
		tiers:      tiers,
	}
}

// DefaultEngine returns an engine with the default constants
func DefaultEngine() *Engine {
	return NewEngine(DefaultIndividualParams(), DefaultLeagueParams(), DefaultTierClassifier())
}

// Tiers exposes the classifier the engine uses
func (e *Engine) Tiers() *TierClassifier { return e.tiers }

// IndividualParams returns the MMR constants
func (e *Engine) IndividualParams() Params { return e.individual }

// LeagueParams returns the LP constants
func (e *Engine) LeagueParams() Params { return e.league }

// Applied is everything a resolved match changes. Exactly one of Players or
// Teams is populated, matching the match type.
type Applied struct {
	Outcome      Outcome
	Players      []domain.Player
	Teams        []domain.Team
	PlayerDeltas []domain.PlayerDelta
	TeamDeltas   []domain.TeamDelta
	TierChanges  []domain.TierChange
}

// Apply resolves the sets and computes new ratings. It fails fast on an
// undecided match or on participants that do not fit the match type.
func (e *Engine) Apply(result domain.MatchResult) (Applied, error) {
	if err := checkDomain(result); err != nil {
		return Applied{}, err
	}

	outcome := Evaluate(result.Sets)
	if !outcome.Decided() {
		return Applied{}, fmt.Errorf("%w: match %s after %q", domain.ErrUndecidedMatch, result.ID, outcome.ScoreLine)
	}

	if result.Type == domain.MatchTypeLeague {
		return e.applyLeague(result, outcome), nil
	}
	return e.applyIndividual(result, outcome), nil
}

func checkDomain(result domain.MatchResult) error {
	hasTeams := result.TeamA != nil || result.TeamB != nil
	hasPlayers := false
	for _, p := range append(result.SideA[:], result.SideB[:]...) {
		if p.ID != "" {
			hasPlayers = true
		}
	}

	switch {
	case result.Type == domain.MatchTypeLeague:
		if hasPlayers {
			return fmt.Errorf("%w: league match %s cannot rate individual MMR", domain.ErrRatingDomainMismatch, result.ID)
		}
		if result.TeamA == nil || result.TeamB == nil {
			return fmt.Errorf("%w: league match %s needs two teams", domain.ErrRatingDomainMismatch, result.ID)
		}
		if result.TeamA.ID == result.TeamB.ID {
			return fmt.Errorf("%w: team %s cannot play itself", domain.ErrInvalidRequest, result.TeamA.ID)
		}
	case result.Type.Individual():
		if hasTeams {
			return fmt.Errorf("%w: %s match %s cannot rate team LP", domain.ErrRatingDomainMismatch, result.Type, result.ID)
		}
		seen := make(map[string]bool, 4)
		for _, p := range append(result.SideA[:], result.SideB[:]...) {
			if p.ID == "" {
				return fmt.Errorf("%w: %s match %s needs four players", domain.ErrRatingDomainMismatch, result.Type, result.ID)
			}
			if seen[p.ID] {
				return fmt.Errorf("%w: player %s listed twice", domain.ErrInvalidRequest, p.ID)
			}
			seen[p.ID] = true
		}
	default:
		return fmt.Errorf("%w: unknown match type %q", domain.ErrInvalidRequest, result.Type)
	}
	return nil
}

func (e *Engine) applyIndividual(result domain.MatchResult, outcome Outcome) Applied {
	avgA := Average(result.SideA[0].MMR, result.SideA[1].MMR)
	avgB := Average(result.SideB[0].MMR, result.SideB[1].MMR)

	expectA := e.individual.Expectancy(avgA, avgB)
	winnerExpectancy := expectA
	if outcome.Winner == domain.SideB {
		winnerExpectancy = 1 - expectA
	}
	perPlayer := e.individual.Swing(winnerExpectancy) * e.individual.MemberFraction

	applied := Applied{Outcome: outcome}
	move := func(side [2]domain.Player, delta float64) {
		for _, p := range side {
			after := p
			after.MMR = p.MMR + delta
			after.UpdatedAt = result.PlayedAt
			applied.Players = append(applied.Players, after)
			applied.PlayerDeltas = append(applied.PlayerDeltas, domain.PlayerDelta{
				PlayerID: p.ID,
				Before:   p.MMR,
				After:    after.MMR,
				Delta:    delta,
			})
		}
	}

	if outcome.Winner == domain.SideA {
		move(result.SideA, perPlayer)
		move(result.SideB, -perPlayer)
	} else {
		move(result.SideA, -perPlayer)
		move(result.SideB, perPlayer)
	}
	return applied
}

func (e *Engine) applyLeague(result domain.MatchResult, outcome Outcome) Applied {
	winner, loser := *result.TeamA, *result.TeamB
	if outcome.Winner == domain.SideB {
		winner, loser = loser, winner
	}

	expect := e.league.Expectancy(float64(winner.LP), float64(loser.LP))
	swing := int(math.Round(e.league.Swing(expect)))

	applied := Applied{Outcome: outcome}
	winnerAfter, winnerDelta := e.moveTeam(winner, swing, true, result)
	loserAfter, loserDelta := e.moveTeam(loser, swing, false, result)

	// Keep A/B order in the output.
	if outcome.Winner == domain.SideA {
		applied.Teams = []domain.Team{winnerAfter, loserAfter}
		applied.TeamDeltas = []domain.TeamDelta{winnerDelta, loserDelta}
	} else {
		applied.Teams = []domain.Team{loserAfter, winnerAfter}
		applied.TeamDeltas = []domain.TeamDelta{loserDelta, winnerDelta}
	}

	for _, d := range applied.TeamDeltas {
		if d.TierBefore == d.TierAfter {
			continue
		}
		applied.TierChanges = append(applied.TierChanges, domain.TierChange{
			TeamID:   d.TeamID,
			MatchID:  result.ID,
			From:     d.TierBefore,
			To:       d.TierAfter,
			Promoted: e.tiers.Order(d.TierAfter) > e.tiers.Order(d.TierBefore),
			At:       result.PlayedAt,
		})
	}
	return applied
}

func (e *Engine) moveTeam(team domain.Team, swing int, won bool, result domain.MatchResult) (domain.Team, domain.TeamDelta) {
	after := team
	if won {
		after.LP = team.LP + swing
	} else {
		after.LP = team.LP - swing
		if after.LP < 0 {
			after.LP = 0
		}
	}
	after.Tier = e.tiers.Classify(after.LP)
	after.WinStreak = UpdateStreak(team.WinStreak, won)
	MarkStreak(&after)
	after.UpdatedAt = result.PlayedAt

	before := team.Tier
	if before == "" {
		before = e.tiers.Classify(team.LP)
	}

	return after, domain.TeamDelta{
		TeamID:       team.ID,
		LPBefore:     team.LP,
		LPAfter:      after.LP,
		Delta:        after.LP - team.LP,
		TierBefore:   before,
		TierAfter:    after.Tier,
		StreakBefore: team.WinStreak,
		StreakAfter:  after.WinStreak,
		OnFire:       after.OnFire,
		Blazing:      after.Blazing,
	}
}
