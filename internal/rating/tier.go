package rating

import (
	"errors"
	"fmt"
	"math"

	"github.com/padel-league/internal/domain"
)

// TierBand is one row of the tier table. Min is inclusive, Max exclusive.
// The bottom band's Min is math.MinInt and the top band's Max is math.MaxInt.
type TierBand struct {
	Tier domain.Tier `json:"tier" yaml:"tier"`
	Min  int         `json:"min" yaml:"min"`
	Max  int         `json:"max" yaml:"max"`
}

// TierThreshold is the configurable lower bound of a tier
type TierThreshold struct {
	Tier  domain.Tier `yaml:"tier"`
	MinLP int         `yaml:"min_lp"`
}

// DefaultTierThresholds is the league tier table
func DefaultTierThresholds() []TierThreshold {
	return []TierThreshold{
		{Tier: domain.TierHerald, MinLP: 0},
		{Tier: domain.TierEpic, MinLP: 1200},
		{Tier: domain.TierLegend, MinLP: 1500},
		{Tier: domain.TierMythic, MinLP: 1800},
	}
}

// TierClassifier maps LP to a tier over a contiguous table
type TierClassifier struct {
	bands []TierBand
}

// NewTierClassifier builds a classifier from ascending thresholds. The first
// tier absorbs everything below the second threshold, including negatives.
func NewTierClassifier(thresholds []TierThreshold) (*TierClassifier, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("tier table is empty")
	}

	bands := make([]TierBand, len(thresholds))
	seen := make(map[domain.Tier]bool, len(thresholds))
	for i, t := range thresholds {
		if t.Tier == "" {
			return nil, fmt.Errorf("tier %d has no name", i)
		}
		if seen[t.Tier] {
			return nil, fmt.Errorf("tier %s listed twice", t.Tier)
		}
		seen[t.Tier] = true
		if i > 0 && t.MinLP <= thresholds[i-1].MinLP {
			return nil, fmt.Errorf("tier %s threshold %d not above %s", t.Tier, t.MinLP, thresholds[i-1].Tier)
		}

		bands[i] = TierBand{Tier: t.Tier, Min: t.MinLP, Max: math.MaxInt}
		if i > 0 {
			bands[i-1].Max = t.MinLP
		}
	}
	bands[0].Min = math.MinInt

	return &TierClassifier{bands: bands}, nil
}

// DefaultTierClassifier returns the classifier for the default table
func DefaultTierClassifier() *TierClassifier {
	c, err := NewTierClassifier(DefaultTierThresholds())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the tier holding lp
func (c *TierClassifier) Classify(lp int) domain.Tier {
	for i := len(c.bands) - 1; i > 0; i-- {
		if lp >= c.bands[i].Min {
			return c.bands[i].Tier
		}
	}
	return c.bands[0].Tier
}

// Boundaries returns the ordered tier table
func (c *TierClassifier) Boundaries() []TierBand {
	return append([]TierBand(nil), c.bands...)
}

// Order returns the position of tier in the table, -1 if unknown
func (c *TierClassifier) Order(tier domain.Tier) int {
	for i, b := range c.bands {
		if b.Tier == tier {
			return i
		}
	}
	return -1
}
