package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padel-league/internal/domain"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func testClient(hub *Hub, id string) *Client {
	return &Client{id: id, hub: hub, send: make(chan []byte, 8), logger: hub.logger}
}

func subscribed(t *testing.T, hub *Hub, c *Client, topic string, want int) {
	t.Helper()
	hub.Subscribe(c, topic)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(topic) == want
	}, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.id)
		return Message{}
	}
}

func TestHubRoutesByTopic(t *testing.T) {
	hub := testHub(t)
	teams := testClient(hub, "teams-watcher")
	lobby := testClient(hub, "lobby-watcher")
	hub.Register(teams)
	hub.Register(lobby)

	subscribed(t, hub, teams, string(domain.BoardTeams), 1)
	subscribed(t, hub, lobby, LobbyTopic("l-1"), 1)
	assert.Equal(t, 2, hub.GetTotalConnections())

	hub.BroadcastBoard(domain.BoardTeams, []domain.LeaderboardEntry{{Rank: 1, ID: "t-a", Rating: 1025}}, 2)
	msg := receive(t, teams)
	assert.Equal(t, MessageTypeBoardUpdate, msg.Type)
	assert.Equal(t, "teams", msg.Topic)

	hub.BroadcastLobby(domain.Lobby{ID: "l-1", Capacity: 4})
	msg = receive(t, lobby)
	assert.Equal(t, MessageTypeLobbyUpdate, msg.Type)
	assert.Equal(t, "lobby:l-1", msg.Topic)

	// Neither client got the other's topic.
	assert.Empty(t, teams.send)
	assert.Empty(t, lobby.send)
}

func TestHubUnregisterDropsSubscriptions(t *testing.T) {
	hub := testHub(t)
	c := testClient(hub, "c")
	hub.Register(c)
	subscribed(t, hub, c, TopicTiers, 1)

	hub.Unregister(c)
	require.Eventually(t, func() bool {
		return hub.GetTotalConnections() == 0 && hub.GetSubscriberCount(TopicTiers) == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-c.send
	assert.False(t, open)
}

func TestValidTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  bool
	}{
		{"teams", true},
		{"players", true},
		{"matches", true},
		{"tiers", true},
		{"lobby:abc", true},
		{"lobby:", false},
		{"weekly", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, validTopic(tt.topic))
		})
	}
}
