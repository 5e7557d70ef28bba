package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/padel-league/internal/domain"
)

// Message types
const (
	MessageTypeBoardUpdate = "board_update"
	MessageTypeMatchResult = "match_result"
	MessageTypeTierChange  = "tier_change"
	MessageTypeLobbyUpdate = "lobby_update"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Topics clients can subscribe to besides the board names and lobby topics
const (
	TopicMatches = "matches"
	TopicTiers   = "tiers"
)

// LobbyTopic is the topic carrying updates for one lobby
func LobbyTopic(lobbyID string) string {
	return "lobby:" + lobbyID
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BoardUpdate contains leaderboard data for broadcast
type BoardUpdate struct {
	Board   domain.Board              `json:"board"`
	Entries []domain.LeaderboardEntry `json:"entries"`
	Total   int64                     `json:"total"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by topic
	topics map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		topics:      make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for topic, clients := range h.topics {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.topics[req.topic]; !ok {
				h.topics[req.topic] = make(map[*Client]bool)
			}
			h.topics[req.topic][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.topics[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.topics, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the topic's subscribers, or to every
// client when the message has no topic
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.Topic != "" {
		targets = h.topics[message.Topic]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id, "topic", message.Topic)
		}
	}
}

func (h *Hub) enqueue(msgType, topic string, data interface{}) {
	message := &Message{
		Type:      msgType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", msgType, "topic", topic)
	}
}

// BroadcastBoard sends the top of a leaderboard to its subscribers
func (h *Hub) BroadcastBoard(board domain.Board, entries []domain.LeaderboardEntry, total int64) {
	h.enqueue(MessageTypeBoardUpdate, string(board), BoardUpdate{
		Board:   board,
		Entries: entries,
		Total:   total,
	})
}

// BroadcastMatch sends a resolved match to the matches topic
func (h *Hub) BroadcastMatch(outcome domain.MatchOutcome) {
	h.enqueue(MessageTypeMatchResult, TopicMatches, outcome)
}

// BroadcastTierChange announces a promotion or demotion
func (h *Hub) BroadcastTierChange(change domain.TierChange) {
	h.enqueue(MessageTypeTierChange, TopicTiers, change)
}

// BroadcastLobby sends the latest lobby snapshot to the lobby's topic
func (h *Hub) BroadcastLobby(l domain.Lobby) {
	h.enqueue(MessageTypeLobbyUpdate, LobbyTopic(l.ID), l)
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	h.subscribe <- &subscriptionRequest{client: client, topic: topic}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// validTopic reports whether clients may subscribe to topic
func validTopic(topic string) bool {
	switch {
	case topic == TopicMatches, topic == TopicTiers:
		return true
	case domain.Board(topic).Valid():
		return true
	case strings.HasPrefix(topic, LobbyTopic("")) && len(topic) > len(LobbyTopic("")):
		return true
	}
	return false
}
