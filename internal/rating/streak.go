package rating

import "github.com/padel-league/internal/domain"

const (
	// OnFireThreshold is the streak at which a team is shown as on fire
	OnFireThreshold = 3
	// BlazingThreshold is the higher-intensity streak marker
	BlazingThreshold = 5
)

// UpdateStreak advances a consecutive-win counter. Any loss resets it.
func UpdateStreak(previous int, won bool) int {
	if !won {
		return 0
	}
	if previous < 0 {
		previous = 0
	}
	return previous + 1
}

// OnFire reports whether streak reaches the first threshold
func OnFire(streak int) bool { return streak >= OnFireThreshold }

// Blazing reports whether streak reaches the second threshold
func Blazing(streak int) bool { return streak >= BlazingThreshold }

// MarkStreak sets the team's streak markers from its current win streak
func MarkStreak(team *domain.Team) {
	team.OnFire = OnFire(team.WinStreak)
	team.Blazing = Blazing(team.WinStreak)
}
