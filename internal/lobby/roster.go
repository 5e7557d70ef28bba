// Package lobby holds the roster state machine for match-seeking lobbies.
// Every operation takes a lobby snapshot and returns a new one, or an error
// and the untouched input.
package lobby

import (
	"fmt"
	"time"

	"github.com/padel-league/internal/domain"
)

// PlayersPerSide is how many confirmed players a LEAGUE side can hold
const PlayersPerSide = 2

// Roster applies lobby transitions for a fixed capacity
type Roster struct {
	Capacity int
}

// NewRoster returns a roster, falling back to the court size for capacity < 1
func NewRoster(capacity int) Roster {
	if capacity < 1 {
		capacity = domain.DefaultLobbyCapacity
	}
	return Roster{Capacity: capacity}
}

// NewLobby opens a lobby with the host already confirmed on side A
func (r Roster) NewLobby(id string, req domain.CreateLobbyRequest, host domain.LobbyPlayer, now time.Time) (domain.Lobby, error) {
	if id == "" || req.HostID == "" {
		return domain.Lobby{}, fmt.Errorf("%w: lobby id and host are required", domain.ErrInvalidRequest)
	}
	if req.Type != domain.MatchTypeRanked && req.Type != domain.MatchTypeLeague {
		return domain.Lobby{}, fmt.Errorf("%w: lobby type %q", domain.ErrInvalidRequest, req.Type)
	}
	if req.Band != nil && req.Band.Min > req.Band.Max {
		return domain.Lobby{}, fmt.Errorf("%w: mmr band %.2f-%.2f", domain.ErrInvalidRequest, req.Band.Min, req.Band.Max)
	}
	if host.PlayerID != req.HostID {
		return domain.Lobby{}, fmt.Errorf("%w: host %s does not match request", domain.ErrInvalidRequest, host.PlayerID)
	}

	l := domain.Lobby{
		ID:        id,
		Type:      req.Type,
		HostID:    req.HostID,
		Schedule:  req.Schedule,
		Location:  req.Location,
		Capacity:  r.Capacity,
		Confirmed: []domain.Slot{{PlayerID: host.PlayerID, Name: host.Name, Side: domain.SideA}},
		Requested: []domain.LobbyPlayer{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Band != nil {
		band := *req.Band
		l.Band = &band
	}
	return l, nil
}

// RequestJoin queues a player for the host's decision
func (r Roster) RequestJoin(l domain.Lobby, player domain.LobbyPlayer) (domain.Lobby, error) {
	if player.PlayerID == "" {
		return l, fmt.Errorf("%w: player id is required", domain.ErrInvalidRequest)
	}
	if confirmedIndex(l, player.PlayerID) >= 0 {
		return l, fmt.Errorf("%w: player %s already confirmed", domain.ErrDuplicateRequest, player.PlayerID)
	}
	if requestedIndex(l, player.PlayerID) >= 0 {
		return l, fmt.Errorf("%w: player %s already requested", domain.ErrDuplicateRequest, player.PlayerID)
	}
	if status := l.Status(); status != domain.LobbyStatusOpen {
		return l, fmt.Errorf("%w: lobby %s is %s", domain.ErrLobbyState, l.ID, status)
	}
	if l.Band != nil && !l.Band.Contains(player.MMR) {
		return l, fmt.Errorf("%w: mmr %.2f outside %.2f-%.2f", domain.ErrLobbyState, player.MMR, l.Band.Min, l.Band.Max)
	}

	next := l.Clone()
	next.Requested = append(next.Requested, player)
	return next, nil
}

// CancelRequest withdraws a pending request on the player's behalf
func (r Roster) CancelRequest(l domain.Lobby, playerID string) (domain.Lobby, error) {
	if l.Finished {
		return l, fmt.Errorf("%w: lobby %s is finished", domain.ErrLobbyState, l.ID)
	}
	i := requestedIndex(l, playerID)
	if i < 0 {
		return l, fmt.Errorf("%w: player %s has no pending request", domain.ErrLobbyState, playerID)
	}

	next := l.Clone()
	next.Requested = append(next.Requested[:i], next.Requested[i+1:]...)
	return next, nil
}

// Accept moves a requested player into the confirmed roster
func (r Roster) Accept(l domain.Lobby, actorID, playerID string) (domain.Lobby, error) {
	if actorID != l.HostID {
		return l, fmt.Errorf("%w: %s cannot accept in lobby %s", domain.ErrNotHost, actorID, l.ID)
	}
	if l.Finished {
		return l, fmt.Errorf("%w: lobby %s is finished", domain.ErrLobbyState, l.ID)
	}
	i := requestedIndex(l, playerID)
	if i < 0 {
		return l, fmt.Errorf("%w: player %s has no pending request", domain.ErrLobbyState, playerID)
	}
	if len(l.Confirmed) >= l.Capacity {
		return l, fmt.Errorf("%w: lobby %s holds %d of %d", domain.ErrLobbyCapacity, l.ID, len(l.Confirmed), l.Capacity)
	}

	next := l.Clone()
	p := next.Requested[i]
	next.Requested = append(next.Requested[:i], next.Requested[i+1:]...)
	next.Confirmed = append(next.Confirmed, domain.Slot{PlayerID: p.PlayerID, Name: p.Name})
	return next, nil
}

// Reject drops a pending request. Nothing else changes.
func (r Roster) Reject(l domain.Lobby, actorID, playerID string) (domain.Lobby, error) {
	if actorID != l.HostID {
		return l, fmt.Errorf("%w: %s cannot reject in lobby %s", domain.ErrNotHost, actorID, l.ID)
	}
	i := requestedIndex(l, playerID)
	if i < 0 {
		return l, fmt.Errorf("%w: player %s has no pending request", domain.ErrLobbyState, playerID)
	}

	next := l.Clone()
	next.Requested = append(next.Requested[:i], next.Requested[i+1:]...)
	return next, nil
}

// AssignTeamSlot places a confirmed player on a side of a LEAGUE lobby.
// Re-assigning a player to the side they already hold is a no-op.
func (r Roster) AssignTeamSlot(l domain.Lobby, playerID string, side domain.Side) (domain.Lobby, error) {
	if side != domain.SideA && side != domain.SideB {
		return l, fmt.Errorf("%w: side %q", domain.ErrInvalidRequest, side)
	}
	if l.Type != domain.MatchTypeLeague {
		return l, fmt.Errorf("%w: team slots only apply to league lobbies", domain.ErrLobbyState)
	}
	if l.Finished {
		return l, fmt.Errorf("%w: lobby %s is finished", domain.ErrLobbyState, l.ID)
	}
	i := confirmedIndex(l, playerID)
	if i < 0 {
		return l, fmt.Errorf("%w: player %s is not confirmed", domain.ErrLobbyState, playerID)
	}
	if l.Confirmed[i].Side == side {
		return l, nil
	}

	taken := 0
	for _, s := range l.Confirmed {
		if s.Side == side {
			taken++
		}
	}
	if taken >= PlayersPerSide {
		return l, fmt.Errorf("%w: side %s already has %d players", domain.ErrLobbyCapacity, side, taken)
	}

	next := l.Clone()
	next.Confirmed[i].Side = side
	return next, nil
}

// Finish closes a full lobby for good
func (r Roster) Finish(l domain.Lobby, actorID string) (domain.Lobby, error) {
	if actorID != l.HostID {
		return l, fmt.Errorf("%w: %s cannot finish lobby %s", domain.ErrNotHost, actorID, l.ID)
	}
	if status := l.Status(); status != domain.LobbyStatusFull {
		return l, fmt.Errorf("%w: lobby %s is %s", domain.ErrLobbyState, l.ID, status)
	}

	next := l.Clone()
	next.Finished = true
	return next, nil
}

func confirmedIndex(l domain.Lobby, playerID string) int {
	for i, s := range l.Confirmed {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func requestedIndex(l domain.Lobby, playerID string) int {
	for i, p := range l.Requested {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}
