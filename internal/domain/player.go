package domain

import (
	"fmt"
	"time"
)

// Player represents an individual padel player
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MMR       float64   `json:"mmr"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier is a named LP band
type Tier string

const (
	TierHerald Tier = "HERALD"
	TierEpic   Tier = "EPIC"
	TierLegend Tier = "LEGEND"
	TierMythic Tier = "MYTHIC"
)

// Team is a fixed pair of players competing in the league
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CaptainID      string    `json:"captain_id"`
	PartnerID      string    `json:"partner_id"`
	LP             int       `json:"lp"`
	Tier           Tier      `json:"tier"`
	Rank           int64     `json:"rank,omitempty"`
	WinStreak      int       `json:"win_streak"`
	OnFire         bool      `json:"on_fire"`
	Blazing        bool      `json:"blazing"`
	OpenToSparring bool      `json:"open_to_sparring"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewTeam builds a team, enforcing the two-distinct-players invariant
func NewTeam(id, name, captainID, partnerID string, lp int, tier Tier) (Team, error) {
	if captainID == "" || partnerID == "" || captainID == partnerID {
		return Team{}, fmt.Errorf("%w: captain %q partner %q", ErrInvalidTeam, captainID, partnerID)
	}
	now := time.Now()
	return Team{
		ID:        id,
		Name:      name,
		CaptainID: captainID,
		PartnerID: partnerID,
		LP:        lp,
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Members returns the two player ids of the team
func (t Team) Members() [2]string {
	return [2]string{t.CaptainID, t.PartnerID}
}

// HasMember reports whether playerID belongs to the team
func (t Team) HasMember(playerID string) bool {
	return t.CaptainID == playerID || t.PartnerID == playerID
}

// CreatePlayerRequest represents a request to register a player
type CreatePlayerRequest struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	MMR  float64 `json:"mmr"`
}

// CreateTeamRequest represents a request to form a team
type CreateTeamRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	CaptainID      string `json:"captain_id"`
	PartnerID      string `json:"partner_id"`
	OpenToSparring bool   `json:"open_to_sparring"`
}
