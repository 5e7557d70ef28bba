package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padel-league/internal/domain"
)

func seedLobbyPlayers(t *testing.T, store *memStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.CreatePlayer(context.Background(), domain.Player{ID: id, Name: id, MMR: 4}))
	}
}

func TestLobbyFlow(t *testing.T) {
	store, cache, rec := newMemStore(), newMemRankings(), &recorder{}
	svc := newTestLobbies(store, cache, rec)
	seedLobbyPlayers(t, store, "host", "p1", "p2", "p3", "p4")
	ctx := context.Background()

	l, err := svc.CreateLobby(ctx, domain.CreateLobbyRequest{
		Type:     domain.MatchTypeRanked,
		HostID:   "host",
		Location: "Club Norte",
		Schedule: domain.Schedule{Date: "2024-07-05", Time: "19:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.Version)
	assert.Equal(t, domain.LobbyStatusOpen, l.Status())

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := svc.RequestJoin(ctx, l.ID, id)
		require.NoError(t, err)
	}
	_, err = svc.RequestJoin(ctx, l.ID, "p1")
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	_, err = svc.Accept(ctx, l.ID, domain.LobbyAction{ActorID: "p1", PlayerID: "p2"})
	assert.ErrorIs(t, err, domain.ErrNotHost)

	_, err = svc.Reject(ctx, l.ID, domain.LobbyAction{ActorID: "host", PlayerID: "p3"})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, l.ID, domain.LobbyAction{ActorID: "host", PlayerID: "p1"})
	require.NoError(t, err)
	got, err := svc.Accept(ctx, l.ID, domain.LobbyAction{ActorID: "host", PlayerID: "p2"})
	require.NoError(t, err)
	assert.Len(t, got.Confirmed, 3)
	assert.Empty(t, got.Requested)

	got, err = svc.AssignTeamSlot(ctx, l.ID, domain.LobbyAction{ActorID: "p1", PlayerID: "p2", Side: domain.SideB})
	assert.ErrorIs(t, err, domain.ErrNotHost)
	assert.Nil(t, got)

	_, err = svc.Finish(ctx, l.ID, "host")
	assert.ErrorIs(t, err, domain.ErrLobbyState)

	// Reads come from the cache, which always holds the last stored version.
	cached, err := svc.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	stored, err := store.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, cached.Version)
	assert.Equal(t, int64(7), stored.Version)

	var events []domain.LobbyEventType
	for _, e := range rec.lobbyEvents {
		events = append(events, e.Type)
	}
	assert.Equal(t, []domain.LobbyEventType{
		domain.LobbyCreated,
		domain.LobbyJoinRequested,
		domain.LobbyJoinRequested,
		domain.LobbyJoinRequested,
		domain.LobbyPlayerRejected,
		domain.LobbyPlayerAccepted,
		domain.LobbyPlayerAccepted,
	}, events)
	assert.Len(t, rec.lobbies, len(events))
}

func TestLobbyFinish(t *testing.T) {
	store, rec := newMemStore(), &recorder{}
	svc := newTestLobbies(store, nil, rec)
	seedLobbyPlayers(t, store, "host", "p1", "p2", "p3")
	ctx := context.Background()

	l, err := svc.CreateLobby(ctx, domain.CreateLobbyRequest{Type: domain.MatchTypeLeague, HostID: "host"})
	require.NoError(t, err)
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err = svc.RequestJoin(ctx, l.ID, id)
		require.NoError(t, err)
		_, err = svc.Accept(ctx, l.ID, domain.LobbyAction{ActorID: "host", PlayerID: id})
		require.NoError(t, err)
	}

	got, err := svc.AssignTeamSlot(ctx, l.ID, domain.LobbyAction{ActorID: "p3", PlayerID: "p3", Side: domain.SideA})
	require.NoError(t, err)
	assert.Equal(t, domain.LobbyStatusFull, got.Status())

	_, err = svc.Finish(ctx, l.ID, "p1")
	assert.ErrorIs(t, err, domain.ErrNotHost)

	got, err = svc.Finish(ctx, l.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.LobbyStatusFinished, got.Status())

	last := rec.lobbyEvents[len(rec.lobbyEvents)-1]
	assert.Equal(t, domain.LobbyFinished, last.Type)
	assert.Equal(t, domain.LobbyStatusFinished, last.Status)
	assert.Equal(t, got.Version, last.Version)

	open, err := svc.ListOpenLobbies(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLobbyRejects(t *testing.T) {
	store, rec := newMemStore(), &recorder{}
	svc := newTestLobbies(store, nil, rec)
	seedLobbyPlayers(t, store, "host")
	ctx := context.Background()

	_, err := svc.CreateLobby(ctx, domain.CreateLobbyRequest{Type: domain.MatchTypeRanked, HostID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = svc.CreateLobby(ctx, domain.CreateLobbyRequest{Type: domain.MatchTypeSparring, HostID: "host"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.RequestJoin(ctx, "missing", "host")
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound)

	_, err = svc.ListOpenLobbies(ctx, "FRIENDLY", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	assert.Empty(t, rec.lobbyEvents)
}

func TestConcurrentAcceptsKeepCapacity(t *testing.T) {
	store, rec := newMemStore(), &recorder{}
	svc := newTestLobbies(store, nil, rec)
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	seedLobbyPlayers(t, store, append([]string{"host"}, ids...)...)
	ctx := context.Background()

	l, err := svc.CreateLobby(ctx, domain.CreateLobbyRequest{Type: domain.MatchTypeRanked, HostID: "host"})
	require.NoError(t, err)
	for _, id := range ids {
		_, err := svc.RequestJoin(ctx, l.ID, id)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Accept(ctx, l.ID, domain.LobbyAction{ActorID: "host", PlayerID: id})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrLobbyCapacity)
		}(id)
	}
	wg.Wait()

	stored, err := store.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Len(t, stored.Confirmed, 4)
	assert.Equal(t, domain.LobbyStatusFull, stored.Status())
}
