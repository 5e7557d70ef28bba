package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/padel-league/internal/domain"
)

// SaveMatch stores a resolved match together with the new ratings in a single
// transaction. Rows are only updated if they still hold the ratings the
// outcome was computed from; otherwise domain.ErrRatingConflict is returned
// and nothing is written. A repeated match id yields domain.ErrMatchExists.
func (r *Repository) SaveMatch(ctx context.Context, sub domain.MatchSubmission, outcome domain.MatchOutcome, players []domain.Player, teams []domain.Team) error {
	setsJSON, err := json.Marshal(sub.Sets)
	if err != nil {
		return fmt.Errorf("marshaling sets: %w", err)
	}
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO matches (id, match_type, sets, winner, score_line, side_a, side_b, team_a, team_b, reported_by, outcome, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insert,
		outcome.MatchID,
		string(outcome.Type),
		setsJSON,
		string(outcome.Winner),
		outcome.ScoreLine,
		sub.SideA,
		sub.SideB,
		sub.TeamAID,
		sub.TeamBID,
		sub.ReportedBy,
		outcomeJSON,
		outcome.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrMatchExists, outcome.MatchID)
	}

	batch := &pgx.Batch{}
	queued := 0

	for i, p := range players {
		d := outcome.PlayerDeltas[i]
		batch.Queue(
			`UPDATE players SET mmr = $2, updated_at = $3 WHERE id = $1 AND mmr = $4`,
			p.ID, p.MMR, p.UpdatedAt, d.Before,
		)
		batch.Queue(
			`INSERT INTO rating_events (match_id, subject_type, subject_id, rating_before, rating_after, created_at)
			 VALUES ($1, 'player', $2, $3, $4, $5)`,
			outcome.MatchID, p.ID, d.Before, d.After, outcome.PlayedAt,
		)
		queued++
	}
	for i, t := range teams {
		d := outcome.TeamDeltas[i]
		batch.Queue(
			`UPDATE teams SET lp = $2, tier = $3, win_streak = $4, updated_at = $5
			 WHERE id = $1 AND lp = $6 AND win_streak = $7`,
			t.ID, t.LP, string(t.Tier), t.WinStreak, t.UpdatedAt, d.LPBefore, d.StreakBefore,
		)
		batch.Queue(
			`INSERT INTO rating_events (match_id, subject_type, subject_id, rating_before, rating_after, tier_before, tier_after, created_at)
			 VALUES ($1, 'team', $2, $3, $4, $5, $6, $7)`,
			outcome.MatchID, t.ID, d.LPBefore, d.LPAfter, string(d.TierBefore), string(d.TierAfter), outcome.PlayedAt,
		)
		queued++
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("updating ratings: %w", err)
		}
		if tag.RowsAffected() == 0 {
			br.Close()
			return fmt.Errorf("%w: match %s", domain.ErrRatingConflict, outcome.MatchID)
		}
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("recording rating event: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing match: %w", err)
	}

	r.logger.Debug("match saved",
		"match_id", outcome.MatchID,
		"type", outcome.Type,
		"players", len(players),
		"teams", len(teams),
	)
	return nil
}

// GetMatch returns the stored outcome of a match
func (r *Repository) GetMatch(ctx context.Context, matchID string) (*domain.MatchOutcome, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT outcome FROM matches WHERE id = $1`, matchID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}

	var outcome domain.MatchOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("decoding match outcome: %w", err)
	}
	return &outcome, nil
}

// ListRecentMatches returns the latest outcomes involving a player or team id
func (r *Repository) ListRecentMatches(ctx context.Context, subjectID string, limit int) ([]domain.MatchOutcome, error) {
	query := `
		SELECT outcome FROM matches
		WHERE $1 = ANY(side_a) OR $1 = ANY(side_b) OR team_a = $1 OR team_b = $1
		ORDER BY played_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.MatchOutcome
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		var o domain.MatchOutcome
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decoding match outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
