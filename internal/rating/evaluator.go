package rating

import (
	"fmt"
	"strings"

	"github.com/padel-league/internal/domain"
)

const (
	// SetsToWin is the number of sets needed to take a best-of-three match
	SetsToWin = 2
	// MaxSets is the longest a best-of-three match can go
	MaxSets = 3
	// DefaultMaxGames is the highest game count a single set may show
	DefaultMaxGames = 7
)

// SetsWon counts set wins per side
type SetsWon struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Outcome is the resolution of a set list
type Outcome struct {
	Winner    domain.Side `json:"winner"`
	SetsWon   SetsWon     `json:"sets_won"`
	ScoreLine string      `json:"score_line"`
}

// Decided reports whether a winner was found
func (o Outcome) Decided() bool {
	return o.Winner != domain.SideUndecided
}

// Evaluate resolves a best-of-three set list. Unplayed 0-0 sets are skipped and
// sets after the deciding one are ignored. A tied set anywhere before the
// decision leaves the match undecided.
func Evaluate(sets []domain.SetScore) Outcome {
	var (
		won    SetsWon
		played []string
		winner = domain.SideUndecided
	)

	for _, set := range sets {
		if winner != domain.SideUndecided {
			break
		}
		if set.Unplayed() {
			continue
		}
		if set.Tied() {
			return Outcome{Winner: domain.SideUndecided, SetsWon: won, ScoreLine: strings.Join(played, ", ")}
		}

		played = append(played, set.String())
		switch set.Winner() {
		case domain.SideA:
			won.A++
		case domain.SideB:
			won.B++
		}

		if won.A == SetsToWin {
			winner = domain.SideA
		} else if won.B == SetsToWin {
			winner = domain.SideB
		}
	}

	return Outcome{Winner: winner, SetsWon: won, ScoreLine: strings.Join(played, ", ")}
}

// ValidateSets is the caller-side check run before Evaluate. It rejects bad
// shapes and scores with domain.ErrInvalidScore.
func ValidateSets(sets []domain.SetScore, maxGames int) error {
	if maxGames <= 0 {
		maxGames = DefaultMaxGames
	}
	if len(sets) < SetsToWin || len(sets) > MaxSets {
		return fmt.Errorf("%w: expected %d to %d sets, got %d", domain.ErrInvalidScore, SetsToWin, MaxSets, len(sets))
	}

	var a, b int
	unplayed := 0
	for i, set := range sets {
		if set.A < 0 || set.B < 0 || set.A > maxGames || set.B > maxGames {
			return fmt.Errorf("%w: set %d score %s outside 0-%d", domain.ErrInvalidScore, i+1, set, maxGames)
		}
		if set.Tied() {
			return fmt.Errorf("%w: set %d cannot tie at %s", domain.ErrInvalidScore, i+1, set)
		}
		if set.Unplayed() {
			if unplayed == 0 {
				unplayed = i + 1
			}
			continue
		}
		if unplayed != 0 {
			return fmt.Errorf("%w: set %d played after unplayed set %d", domain.ErrInvalidScore, i+1, unplayed)
		}
		if a == SetsToWin || b == SetsToWin {
			return fmt.Errorf("%w: set %d played after the match was decided", domain.ErrInvalidScore, i+1)
		}
		switch set.Winner() {
		case domain.SideA:
			a++
		case domain.SideB:
			b++
		}
	}
	return nil
}
