package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

// Subject suffixes under the configured prefix
const (
	SubjectMatch = "match"
	SubjectTier  = "tier"
	SubjectLobby = "lobby"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher fans match, tier and lobby events out over NATS core subjects
type NATSPublisher struct {
	nc     *nats.Conn
	pub    publisher
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to the configured NATS server
func NewNATSPublisher(cfg *config.NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", "url", nc.ConnectedUrl(), "subject_prefix", cfg.SubjectPrefix)
	return &NATSPublisher{nc: nc, pub: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Subject returns the full subject for a suffix
func (p *NATSPublisher) Subject(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

func (p *NATSPublisher) publish(suffix string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", suffix, err)
	}
	subject := p.Subject(suffix)
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "bytes", len(data))
	return nil
}

// PublishMatch publishes a resolved match
func (p *NATSPublisher) PublishMatch(_ context.Context, outcome domain.MatchOutcome) error {
	return p.publish(SubjectMatch, outcome)
}

// PublishTierChange publishes a promotion or demotion
func (p *NATSPublisher) PublishTierChange(_ context.Context, change domain.TierChange) error {
	return p.publish(SubjectTier, change)
}

// PublishLobby publishes a stored lobby transition
func (p *NATSPublisher) PublishLobby(_ context.Context, event domain.LobbyEvent) error {
	return p.publish(SubjectLobby, event)
}

// LogNotifier records events in the log when NATS is disabled
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PublishMatch(_ context.Context, outcome domain.MatchOutcome) error {
	n.logger.Info("match event", "match_id", outcome.MatchID, "winner", outcome.Winner)
	return nil
}

func (n *LogNotifier) PublishTierChange(_ context.Context, change domain.TierChange) error {
	n.logger.Info("tier event",
		"team_id", change.TeamID,
		"from", change.From,
		"to", change.To,
		"promoted", change.Promoted,
	)
	return nil
}

func (n *LogNotifier) PublishLobby(_ context.Context, event domain.LobbyEvent) error {
	n.logger.Info("lobby event", "lobby_id", event.LobbyID, "type", event.Type, "status", event.Status)
	return nil
}
