package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

func TestDecodeSubmission(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{
			name:  "league",
			value: `{"id":"m-1","type":"LEAGUE","sets":[{"a":6,"b":4},{"a":6,"b":2}],"team_a_id":"t-a","team_b_id":"t-b"}`,
		},
		{
			name:  "ranked",
			value: `{"type":"RANKED","sets":[{"a":6,"b":4},{"a":6,"b":2}],"side_a":["a1","a2"],"side_b":["b1","b2"]}`,
		},
		{
			name:    "not json",
			value:   `6-4 6-2`,
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "unknown type",
			value:   `{"type":"CASUAL","sets":[{"a":6,"b":4}],"team_a_id":"t-a"}`,
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "no sets",
			value:   `{"type":"LEAGUE","team_a_id":"t-a","team_b_id":"t-b"}`,
			wantErr: domain.ErrInvalidScore,
		},
		{
			name:    "no participants",
			value:   `{"type":"SPARRING","sets":[{"a":6,"b":4},{"a":6,"b":2}]}`,
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := DecodeSubmission([]byte(tt.value))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, sub.Sets, 2)
		})
	}
}

type stubHandler struct {
	// errs are returned in order, then nil
	errs  map[string][]error
	calls map[string]int
}

func (h *stubHandler) SubmitMatch(_ context.Context, sub domain.MatchSubmission) (*domain.MatchOutcome, error) {
	n := h.calls[sub.ID]
	h.calls[sub.ID] = n + 1
	if n < len(h.errs[sub.ID]) {
		return nil, h.errs[sub.ID][n]
	}
	return &domain.MatchOutcome{MatchID: sub.ID, Type: sub.Type, Winner: domain.SideA}, nil
}

func leagueMessage(id string, offset int64) *sarama.ConsumerMessage {
	value := fmt.Sprintf(`{"id":%q,"type":"LEAGUE","sets":[{"a":6,"b":4},{"a":6,"b":2}],"team_a_id":"t-a","team_b_id":"t-b"}`, id)
	return &sarama.ConsumerMessage{Key: []byte(id), Value: []byte(value), Offset: offset}
}

func newTestProcessor(handler MatchHandler, deadLetters sarama.SyncProducer) *processor {
	cfg := &config.KafkaConfig{RetryAttempts: 3, RetryDelay: time.Millisecond, DeadLetterTopic: "padel-matches-dlq"}
	return newProcessor(handler, deadLetters, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProcessBatch(t *testing.T) {
	storageDown := errors.New("connection reset by peer")
	handler := &stubHandler{
		calls: map[string]int{},
		errs: map[string][]error{
			"m-flaky": {storageDown, storageDown},
			"m-dup":   {fmt.Errorf("saving match: %w", domain.ErrMatchExists)},
			"m-bad":   {fmt.Errorf("%w: t-z", domain.ErrTeamNotFound)},
		},
	}

	deadLetters := mocks.NewSyncProducer(t, nil)
	deadLetters.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if !strings.Contains(string(val), `"m-bad"`) {
			return fmt.Errorf("unexpected dead letter %s", val)
		}
		return nil
	})
	deadLetters.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "not json" {
			return fmt.Errorf("unexpected dead letter %s", val)
		}
		return nil
	})

	stats := newTestProcessor(handler, deadLetters).process(context.Background(), []*sarama.ConsumerMessage{
		leagueMessage("m-ok", 1),
		leagueMessage("m-flaky", 2),
		leagueMessage("m-dup", 3),
		leagueMessage("m-bad", 4),
		{Value: []byte("not json"), Offset: 5},
	})
	require.NoError(t, deadLetters.Close())

	assert.Equal(t, BatchStats{Submitted: 2, Duplicates: 1, DeadLettered: 2}, stats)
	assert.Equal(t, 3, handler.calls["m-flaky"])
	assert.Equal(t, 1, handler.calls["m-bad"], "rejected input is not retried")
}

func TestProcessGivesUpAfterRetries(t *testing.T) {
	handler := &stubHandler{
		calls: map[string]int{},
		errs:  map[string][]error{"m-1": {domain.ErrRatingConflict, domain.ErrRatingConflict, domain.ErrRatingConflict}},
	}
	deadLetters := mocks.NewSyncProducer(t, nil)
	deadLetters.ExpectSendMessageAndSucceed()

	stats := newTestProcessor(handler, deadLetters).process(context.Background(), []*sarama.ConsumerMessage{leagueMessage("m-1", 7)})
	require.NoError(t, deadLetters.Close())

	assert.Equal(t, BatchStats{DeadLettered: 1}, stats)
	assert.Equal(t, 3, handler.calls["m-1"])
}

func TestProcessWithoutDeadLetterTopic(t *testing.T) {
	handler := &stubHandler{calls: map[string]int{}}
	stats := newTestProcessor(handler, nil).process(context.Background(), []*sarama.ConsumerMessage{
		{Key: []byte("m-key"), Value: []byte(`{"type":"RANKED","sets":[{"a":6,"b":1},{"a":6,"b":1}],"side_a":["a1","a2"],"side_b":["b1","b2"]}`)},
		{Value: []byte(`{"type":"CASUAL"}`)},
	})

	assert.Equal(t, BatchStats{Submitted: 1, Dropped: 1}, stats)
	assert.Equal(t, 1, handler.calls["m-key"], "message key stands in for a missing id")
}

// onceHandler rates each match id once, like the league service
type onceHandler struct{ rated map[string]int }

func (h *onceHandler) SubmitMatch(_ context.Context, sub domain.MatchSubmission) (*domain.MatchOutcome, error) {
	h.rated[sub.ID]++
	if h.rated[sub.ID] > 1 {
		return nil, fmt.Errorf("saving match: %w", domain.ErrMatchExists)
	}
	return &domain.MatchOutcome{MatchID: sub.ID, Type: sub.Type, Winner: domain.SideA}, nil
}

func TestRedeliveredMessageWithoutIDIsRatedOnce(t *testing.T) {
	handler := &onceHandler{rated: map[string]int{}}
	p := newTestProcessor(handler, nil)
	msg := &sarama.ConsumerMessage{
		Topic:     "padel-matches",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{"type":"LEAGUE","sets":[{"a":6,"b":4},{"a":6,"b":3}],"team_a_id":"t-a","team_b_id":"t-b"}`),
	}

	first := p.process(context.Background(), []*sarama.ConsumerMessage{msg})
	again := p.process(context.Background(), []*sarama.ConsumerMessage{msg})

	assert.Equal(t, BatchStats{Submitted: 1}, first)
	assert.Equal(t, BatchStats{Duplicates: 1}, again)
	assert.Equal(t, map[string]int{"padel-matches-2-41": 2}, handler.rated)
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "m-key", messageID(&sarama.ConsumerMessage{Key: []byte("m-key"), Topic: "padel-matches", Offset: 3}))
	assert.Equal(t, "padel-matches-0-3", messageID(&sarama.ConsumerMessage{Topic: "padel-matches", Offset: 3}))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("i/o timeout")))
	assert.True(t, retryable(domain.ErrRatingConflict))
	assert.False(t, retryable(domain.ErrUndecidedMatch))
	assert.False(t, retryable(domain.ErrMatchExists))
	assert.False(t, retryable(domain.ErrPlayerNotFound))
}
