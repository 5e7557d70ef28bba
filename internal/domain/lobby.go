package domain

import (
	"encoding/json"
	"time"
)

// LobbyStatus is derived from the roster, never stored
type LobbyStatus string

const (
	LobbyStatusOpen     LobbyStatus = "OPEN"
	LobbyStatusFull     LobbyStatus = "FULL"
	LobbyStatusFinished LobbyStatus = "FINISHED"
)

// DefaultLobbyCapacity is the number of players on a padel court
const DefaultLobbyCapacity = 4

// Schedule describes when a lobby plays
type Schedule struct {
	Date     string        `json:"date"`
	Time     string        `json:"time"`
	Duration time.Duration `json:"duration"`
}

// MMRBand restricts who may request to join
type MMRBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether mmr lies inside the band, bounds included
func (b MMRBand) Contains(mmr float64) bool {
	return mmr >= b.Min && mmr <= b.Max
}

// LobbyPlayer is a player waiting on the host's decision
type LobbyPlayer struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name,omitempty"`
	MMR      float64 `json:"mmr"`
}

// Slot is a confirmed player, optionally placed on a side
type Slot struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Side     Side   `json:"side,omitempty"`
}

// Lobby is a match-seeking post with a capped roster
type Lobby struct {
	ID        string        `json:"id"`
	Type      MatchType     `json:"type"`
	HostID    string        `json:"host_id"`
	Schedule  Schedule      `json:"schedule"`
	Location  string        `json:"location"`
	Band      *MMRBand      `json:"mmr_band,omitempty"`
	Capacity  int           `json:"capacity"`
	Confirmed []Slot        `json:"confirmed"`
	Requested []LobbyPlayer `json:"requested"`
	Finished  bool          `json:"finished"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Status derives the lobby state from its counts and the finished flag
func (l Lobby) Status() LobbyStatus {
	switch {
	case l.Finished:
		return LobbyStatusFinished
	case len(l.Confirmed) >= l.Capacity:
		return LobbyStatusFull
	}
	return LobbyStatusOpen
}

// Clone returns a deep copy safe to mutate
func (l Lobby) Clone() Lobby {
	c := l
	c.Confirmed = append([]Slot(nil), l.Confirmed...)
	c.Requested = append([]LobbyPlayer(nil), l.Requested...)
	if l.Band != nil {
		band := *l.Band
		c.Band = &band
	}
	return c
}

// MarshalJSON adds the derived status to the wire form
func (l Lobby) MarshalJSON() ([]byte, error) {
	type plain Lobby
	return json.Marshal(struct {
		plain
		Status LobbyStatus `json:"status"`
	}{plain: plain(l), Status: l.Status()})
}

// CreateLobbyRequest represents a request to open a lobby
type CreateLobbyRequest struct {
	Type     MatchType `json:"type"`
	HostID   string    `json:"host_id"`
	Schedule Schedule  `json:"schedule"`
	Location string    `json:"location"`
	Band     *MMRBand  `json:"mmr_band,omitempty"`
}

// LobbyAction carries the actor and target of a roster operation
type LobbyAction struct {
	ActorID  string `json:"actor_id"`
	PlayerID string `json:"player_id"`
	Side     Side   `json:"side,omitempty"`
}

// LobbyEventType names a roster transition
type LobbyEventType string

const (
	LobbyCreated         LobbyEventType = "created"
	LobbyJoinRequested   LobbyEventType = "join_requested"
	LobbyRequestCanceled LobbyEventType = "request_canceled"
	LobbyPlayerAccepted  LobbyEventType = "player_accepted"
	LobbyPlayerRejected  LobbyEventType = "player_rejected"
	LobbySlotAssigned    LobbyEventType = "slot_assigned"
	LobbyFinished        LobbyEventType = "finished"
)

// LobbyEvent is published after a lobby transition is stored
type LobbyEvent struct {
	Type     LobbyEventType `json:"type"`
	LobbyID  string         `json:"lobby_id"`
	ActorID  string         `json:"actor_id,omitempty"`
	PlayerID string         `json:"player_id,omitempty"`
	Status   LobbyStatus    `json:"status"`
	Version  int64          `json:"version"`
	At       time.Time      `json:"at"`
}
