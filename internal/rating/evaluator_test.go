package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padel-league/internal/domain"
)

func sets(scores ...[2]int) []domain.SetScore {
	out := make([]domain.SetScore, len(scores))
	for i, s := range scores {
		out[i] = domain.SetScore{A: s[0], B: s[1]}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		sets      []domain.SetScore
		winner    domain.Side
		won       SetsWon
		scoreLine string
	}{
		{
			name:      "split sets without decider",
			sets:      sets([2]int{6, 4}, [2]int{4, 6}),
			winner:    domain.SideUndecided,
			won:       SetsWon{A: 1, B: 1},
			scoreLine: "6-4, 4-6",
		},
		{
			name:      "straight sets for A",
			sets:      sets([2]int{6, 4}, [2]int{6, 3}),
			winner:    domain.SideA,
			won:       SetsWon{A: 2},
			scoreLine: "6-4, 6-3",
		},
		{
			name:      "straight sets for B",
			sets:      sets([2]int{2, 6}, [2]int{5, 7}),
			winner:    domain.SideB,
			won:       SetsWon{B: 2},
			scoreLine: "2-6, 5-7",
		},
		{
			name:      "A wins first and third",
			sets:      sets([2]int{6, 4}, [2]int{3, 6}, [2]int{7, 5}),
			winner:    domain.SideA,
			won:       SetsWon{A: 2, B: 1},
			scoreLine: "6-4, 3-6, 7-5",
		},
		{
			name:      "A wins second and third",
			sets:      sets([2]int{4, 6}, [2]int{6, 3}, [2]int{6, 2}),
			winner:    domain.SideA,
			won:       SetsWon{A: 2, B: 1},
			scoreLine: "4-6, 6-3, 6-2",
		},
		{
			name:      "B wins first and third",
			sets:      sets([2]int{4, 6}, [2]int{6, 3}, [2]int{1, 6}),
			winner:    domain.SideB,
			won:       SetsWon{A: 1, B: 2},
			scoreLine: "4-6, 6-3, 1-6",
		},
		{
			name:      "B wins second and third",
			sets:      sets([2]int{6, 4}, [2]int{3, 6}, [2]int{5, 7}),
			winner:    domain.SideB,
			won:       SetsWon{A: 1, B: 2},
			scoreLine: "6-4, 3-6, 5-7",
		},
		{
			name:      "unplayed third set is skipped",
			sets:      sets([2]int{6, 1}, [2]int{6, 2}, [2]int{0, 0}),
			winner:    domain.SideA,
			won:       SetsWon{A: 2},
			scoreLine: "6-1, 6-2",
		},
		{
			name:      "set after decision is ignored",
			sets:      sets([2]int{6, 1}, [2]int{6, 2}, [2]int{1, 6}),
			winner:    domain.SideA,
			won:       SetsWon{A: 2},
			scoreLine: "6-1, 6-2",
		},
		{
			name:      "tied set leaves match undecided",
			sets:      sets([2]int{6, 4}, [2]int{5, 5}, [2]int{6, 2}),
			winner:    domain.SideUndecided,
			won:       SetsWon{A: 1},
			scoreLine: "6-4",
		},
		{
			name:   "no sets",
			sets:   nil,
			winner: domain.SideUndecided,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.sets)
			assert.Equal(t, tt.winner, got.Winner)
			assert.Equal(t, tt.won, got.SetsWon)
			assert.Equal(t, tt.scoreLine, got.ScoreLine)
			assert.Equal(t, tt.winner != domain.SideUndecided, got.Decided())
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	in := sets([2]int{7, 6}, [2]int{3, 6}, [2]int{6, 4})
	first := Evaluate(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Evaluate(in))
	}
}

func TestValidateSets(t *testing.T) {
	tests := []struct {
		name    string
		sets    []domain.SetScore
		wantErr bool
	}{
		{name: "two sets", sets: sets([2]int{6, 4}, [2]int{6, 3})},
		{name: "three sets", sets: sets([2]int{6, 4}, [2]int{3, 6}, [2]int{7, 6})},
		{name: "trailing unplayed set", sets: sets([2]int{6, 4}, [2]int{6, 3}, [2]int{0, 0})},
		{name: "one set", sets: sets([2]int{6, 4}), wantErr: true},
		{name: "four sets", sets: sets([2]int{6, 4}, [2]int{3, 6}, [2]int{6, 3}, [2]int{6, 3}), wantErr: true},
		{name: "negative games", sets: sets([2]int{-1, 6}, [2]int{6, 3}), wantErr: true},
		{name: "too many games", sets: sets([2]int{9, 7}, [2]int{6, 3}), wantErr: true},
		{name: "tied set", sets: sets([2]int{6, 6}, [2]int{6, 3}), wantErr: true},
		{name: "set after 2-0", sets: sets([2]int{6, 4}, [2]int{6, 3}, [2]int{6, 1}), wantErr: true},
		{name: "unplayed set in the middle", sets: sets([2]int{6, 4}, [2]int{0, 0}, [2]int{6, 3}), wantErr: true},
		{name: "unplayed first set", sets: sets([2]int{0, 0}, [2]int{6, 4}, [2]int{6, 3}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSets(tt.sets, DefaultMaxGames)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidScore)
				return
			}
			assert.NoError(t, err)
		})
	}
}
