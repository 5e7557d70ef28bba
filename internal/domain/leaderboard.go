package domain

// Board identifies one of the two rating leaderboards
type Board string

const (
	// BoardTeams ranks teams by league LP
	BoardTeams Board = "teams"
	// BoardPlayers ranks players by individual MMR
	BoardPlayers Board = "players"
)

// Valid reports whether b is a known board
func (b Board) Valid() bool {
	return b == BoardTeams || b == BoardPlayers
}

// LeaderboardEntry represents a single entry in a leaderboard
type LeaderboardEntry struct {
	Rank   int64   `json:"rank"`
	ID     string  `json:"id"`
	Rating float64 `json:"rating"`
	Tier   Tier    `json:"tier,omitempty"`
	Name   string  `json:"name,omitempty"`
}

// LeaderboardStats contains statistics about a leaderboard
type LeaderboardStats struct {
	Board   Board   `json:"board"`
	Total   int64   `json:"total"`
	Highest float64 `json:"highest,omitempty"`
	Lowest  float64 `json:"lowest,omitempty"`
}
