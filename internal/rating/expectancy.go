package rating

import (
	"errors"
	"fmt"
	"math"
)

// Params tune one rating domain. The same Expectancy curve drives both the
// engine and the forecaster, so they are always read from here.
type Params struct {
	// K is the rating sensitivity: the largest swing an upset can produce.
	K float64 `yaml:"k"`
	// Scale is the rating gap at which the favourite is a 10:1 pick.
	Scale float64 `yaml:"scale"`
	// MinDelta floors the swing so heavy favourites still move.
	MinDelta float64 `yaml:"min_delta"`
	// MaxDelta caps the swing. Zero means K.
	MaxDelta float64 `yaml:"max_delta"`
	// MemberFraction is the share of the pair swing each player receives.
	// Only used by the individual domain.
	MemberFraction float64 `yaml:"member_fraction"`
}

// DefaultIndividualParams returns the MMR constants (DUPR-like 0-7 scale)
func DefaultIndividualParams() Params {
	return Params{
		K:              0.25,
		Scale:          0.4,
		MinDelta:       0.1,
		MaxDelta:       0.25,
		MemberFraction: 0.5,
	}
}

// DefaultLeagueParams returns the team LP constants
func DefaultLeagueParams() Params {
	return Params{
		K:              50,
		Scale:          400,
		MinDelta:       10,
		MaxDelta:       50,
		MemberFraction: 1,
	}
}

// WithDefaults fills every field that must be positive and is unset from d.
// MinDelta and MaxDelta keep their zero values, which are meaningful.
func (p Params) WithDefaults(d Params) Params {
	if p == (Params{}) {
		return d
	}
	if p.K == 0 {
		p.K = d.K
	}
	if p.Scale == 0 {
		p.Scale = d.Scale
	}
	if p.MemberFraction == 0 {
		p.MemberFraction = d.MemberFraction
	}
	return p
}

// Validate rejects constants that would make Swing undefined or negative
func (p Params) Validate() error {
	var errs []error
	if !(p.K > 0) {
		errs = append(errs, fmt.Errorf("k must be positive, got %v", p.K))
	}
	if !(p.Scale > 0) {
		errs = append(errs, fmt.Errorf("scale must be positive, got %v", p.Scale))
	}
	if p.MinDelta < 0 {
		errs = append(errs, fmt.Errorf("min_delta cannot be negative, got %v", p.MinDelta))
	}
	if p.MaxDelta < 0 || (p.MaxDelta > 0 && p.MaxDelta < p.MinDelta) {
		errs = append(errs, fmt.Errorf("max_delta must be zero or at least min_delta, got %v", p.MaxDelta))
	}
	if !(p.MemberFraction > 0 && p.MemberFraction <= 1) {
		errs = append(errs, fmt.Errorf("member_fraction must be in (0, 1], got %v", p.MemberFraction))
	}
	return errors.Join(errs...)
}

// Expectancy is the logistic probability that a side rated `rating` beats a
// side rated `opponent`.
func (p Params) Expectancy(rating, opponent float64) float64 {
	return 1 / (1 + math.Pow(10, -(rating-opponent)/p.Scale))
}

// Swing is the unsigned pair-level rating change for the winner, given the
// winner's expectancy, with the floor and ceiling applied.
func (p Params) Swing(winnerExpectancy float64) float64 {
	m := p.K * (1 - winnerExpectancy)
	ceiling := p.MaxDelta
	if ceiling <= 0 {
		ceiling = p.K
	}
	if m > ceiling {
		m = ceiling
	}
	if m < p.MinDelta {
		m = p.MinDelta
	}
	return m
}

// Average is the mean of the given ratings, zero for none
func Average(ratings ...float64) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r
	}
	return sum / float64(len(ratings))
}
