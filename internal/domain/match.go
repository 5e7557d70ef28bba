package domain

import (
	"fmt"
	"time"
)

// MatchType distinguishes casual, ranked and league matches
type MatchType string

const (
	MatchTypeSparring MatchType = "SPARRING"
	MatchTypeRanked   MatchType = "RANKED"
	MatchTypeLeague   MatchType = "LEAGUE"
)

// Valid reports whether t is a known match type
func (t MatchType) Valid() bool {
	switch t {
	case MatchTypeSparring, MatchTypeRanked, MatchTypeLeague:
		return true
	}
	return false
}

// Individual reports whether the match rates players rather than teams
func (t MatchType) Individual() bool {
	return t == MatchTypeSparring || t == MatchTypeRanked
}

// Side identifies one half of the court
type Side string

const (
	SideA         Side = "A"
	SideB         Side = "B"
	SideUndecided Side = ""
)

// Opponent returns the other side
func (s Side) Opponent() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideUndecided
}

// SetScore holds the games won by each side in one set
type SetScore struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Unplayed reports a 0-0 set
func (s SetScore) Unplayed() bool { return s.A == 0 && s.B == 0 }

// Tied reports an equal, non-zero set, which can never be decided
func (s SetScore) Tied() bool { return s.A == s.B && s.A != 0 }

// Winner returns the side that won the set, or SideUndecided
func (s SetScore) Winner() Side {
	switch {
	case s.A > s.B:
		return SideA
	case s.B > s.A:
		return SideB
	}
	return SideUndecided
}

func (s SetScore) String() string { return fmt.Sprintf("%d-%d", s.A, s.B) }

// MatchResult is the immutable record of one reported match. Individual matches
// carry four players, league matches carry two teams.
type MatchResult struct {
	ID       string     `json:"id"`
	Type     MatchType  `json:"type"`
	Sets     []SetScore `json:"sets"`
	SideA    [2]Player  `json:"side_a,omitempty"`
	SideB    [2]Player  `json:"side_b,omitempty"`
	TeamA    *Team      `json:"team_a,omitempty"`
	TeamB    *Team      `json:"team_b,omitempty"`
	PlayedAt time.Time  `json:"played_at"`
}

// MatchSubmission is what clients and the kafka topic send in
type MatchSubmission struct {
	ID         string     `json:"id,omitempty"`
	Type       MatchType  `json:"type"`
	Sets       []SetScore `json:"sets"`
	SideA      []string   `json:"side_a,omitempty"`
	SideB      []string   `json:"side_b,omitempty"`
	TeamAID    string     `json:"team_a_id,omitempty"`
	TeamBID    string     `json:"team_b_id,omitempty"`
	ReportedBy string     `json:"reported_by,omitempty"`
}

// BatchMatchSubmission groups several submissions
type BatchMatchSubmission struct {
	Matches []MatchSubmission `json:"matches"`
}

// PlayerDelta is the MMR movement of one player
type PlayerDelta struct {
	PlayerID string  `json:"player_id"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	Delta    float64 `json:"delta"`
}

// TeamDelta is the LP movement of one team
type TeamDelta struct {
	TeamID       string `json:"team_id"`
	LPBefore     int    `json:"lp_before"`
	LPAfter      int    `json:"lp_after"`
	Delta        int    `json:"delta"`
	TierBefore   Tier   `json:"tier_before"`
	TierAfter    Tier   `json:"tier_after"`
	StreakBefore int    `json:"streak_before"`
	StreakAfter  int    `json:"streak_after"`
	OnFire       bool   `json:"on_fire"`
	Blazing      bool   `json:"blazing"`
}

// TierChange is emitted when a league match moves a team across a tier boundary
type TierChange struct {
	TeamID   string    `json:"team_id"`
	MatchID  string    `json:"match_id"`
	From     Tier      `json:"from"`
	To       Tier      `json:"to"`
	Promoted bool      `json:"promoted"`
	At       time.Time `json:"at"`
}

// MatchOutcome is the full result of a resolved submission
type MatchOutcome struct {
	MatchID      string        `json:"match_id"`
	Type         MatchType     `json:"type"`
	Winner       Side          `json:"winner"`
	SetsWonA     int           `json:"sets_won_a"`
	SetsWonB     int           `json:"sets_won_b"`
	ScoreLine    string        `json:"score_line"`
	PlayerDeltas []PlayerDelta `json:"player_deltas,omitempty"`
	TeamDeltas   []TeamDelta   `json:"team_deltas,omitempty"`
	TierChanges  []TierChange  `json:"tier_changes,omitempty"`
	PlayedAt     time.Time     `json:"played_at"`
}

// ForecastRequest asks for side A's win probability
type ForecastRequest struct {
	Type    MatchType `json:"type"`
	SideA   []string  `json:"side_a,omitempty"`
	SideB   []string  `json:"side_b,omitempty"`
	TeamAID string    `json:"team_a_id,omitempty"`
	TeamBID string    `json:"team_b_id,omitempty"`
}

// Forecast is the read-only prediction for a pairing
type Forecast struct {
	Type         MatchType `json:"type"`
	RatingA      float64   `json:"rating_a"`
	RatingB      float64   `json:"rating_b"`
	ProbabilityA float64   `json:"probability_a"`
	ProbabilityB float64   `json:"probability_b"`
}
