package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/padel-league/internal/domain"
)

type lobbyDocs struct {
	schedule  []byte
	band      []byte
	confirmed []byte
	requested []byte
}

func encodeLobby(l domain.Lobby) (lobbyDocs, error) {
	var (
		docs lobbyDocs
		err  error
	)
	if docs.schedule, err = json.Marshal(l.Schedule); err != nil {
		return docs, fmt.Errorf("marshaling schedule: %w", err)
	}
	if l.Band != nil {
		if docs.band, err = json.Marshal(l.Band); err != nil {
			return docs, fmt.Errorf("marshaling mmr band: %w", err)
		}
	}
	if docs.confirmed, err = json.Marshal(l.Confirmed); err != nil {
		return docs, fmt.Errorf("marshaling confirmed players: %w", err)
	}
	if docs.requested, err = json.Marshal(l.Requested); err != nil {
		return docs, fmt.Errorf("marshaling requested players: %w", err)
	}
	return docs, nil
}

const lobbyColumns = `id, lobby_type, host_id, schedule, location, mmr_band, capacity, confirmed, requested, finished, version, created_at, updated_at`

func scanLobby(row pgx.Row) (domain.Lobby, error) {
	var (
		l    domain.Lobby
		docs lobbyDocs
	)
	err := row.Scan(
		&l.ID,
		&l.Type,
		&l.HostID,
		&docs.schedule,
		&l.Location,
		&docs.band,
		&l.Capacity,
		&docs.confirmed,
		&docs.requested,
		&l.Finished,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}

	if err := json.Unmarshal(docs.schedule, &l.Schedule); err != nil {
		return l, fmt.Errorf("decoding schedule: %w", err)
	}
	if len(docs.band) > 0 {
		var band domain.MMRBand
		if err := json.Unmarshal(docs.band, &band); err != nil {
			return l, fmt.Errorf("decoding mmr band: %w", err)
		}
		l.Band = &band
	}
	if err := json.Unmarshal(docs.confirmed, &l.Confirmed); err != nil {
		return l, fmt.Errorf("decoding confirmed players: %w", err)
	}
	if err := json.Unmarshal(docs.requested, &l.Requested); err != nil {
		return l, fmt.Errorf("decoding requested players: %w", err)
	}
	return l, nil
}

// InsertLobby stores a new lobby at version 1
func (r *Repository) InsertLobby(ctx context.Context, l domain.Lobby) (domain.Lobby, error) {
	docs, err := encodeLobby(l)
	if err != nil {
		return l, err
	}

	query := `
		INSERT INTO lobbies (id, lobby_type, host_id, schedule, location, mmr_band, capacity, confirmed, requested, confirmed_count, finished, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		l.ID,
		string(l.Type),
		l.HostID,
		docs.schedule,
		l.Location,
		docs.band,
		l.Capacity,
		docs.confirmed,
		docs.requested,
		len(l.Confirmed),
		l.Finished,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		return l, fmt.Errorf("inserting lobby: %w", err)
	}

	l.Version = 1
	return l, nil
}

// UpdateLobby writes l if the stored version still equals l.Version and
// returns the lobby at its new version.
func (r *Repository) UpdateLobby(ctx context.Context, l domain.Lobby) (domain.Lobby, error) {
	docs, err := encodeLobby(l)
	if err != nil {
		return l, err
	}

	query := `
		UPDATE lobbies
		SET confirmed = $3, requested = $4, confirmed_count = $5, finished = $6,
			version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $2
		RETURNING version
	`
	var version int64
	err = r.pool.QueryRow(ctx, query,
		l.ID,
		l.Version,
		docs.confirmed,
		docs.requested,
		len(l.Confirmed),
		l.Finished,
		l.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return l, fmt.Errorf("updating lobby: %w", err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM lobbies WHERE id = $1)`, l.ID).Scan(&exists); err != nil {
			return l, fmt.Errorf("checking lobby existence: %w", err)
		}
		if !exists {
			return l, fmt.Errorf("%w: %s", domain.ErrLobbyNotFound, l.ID)
		}
		return l, fmt.Errorf("%w: %s at version %d", domain.ErrLobbyConflict, l.ID, l.Version)
	}

	l.Version = version
	return l, nil
}

// GetLobby retrieves a lobby by ID
func (r *Repository) GetLobby(ctx context.Context, lobbyID string) (*domain.Lobby, error) {
	query := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`

	l, err := scanLobby(r.pool.QueryRow(ctx, query, lobbyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLobbyNotFound, lobbyID)
		}
		return nil, fmt.Errorf("getting lobby: %w", err)
	}
	return &l, nil
}

// ListOpenLobbies returns lobbies that still accept requests, newest first.
// An empty lobbyType matches every type.
func (r *Repository) ListOpenLobbies(ctx context.Context, lobbyType domain.MatchType, limit int) ([]domain.Lobby, error) {
	query := `
		SELECT ` + lobbyColumns + `
		FROM lobbies
		WHERE NOT finished AND confirmed_count < capacity AND ($1 = '' OR lobby_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, string(lobbyType), limit)
	if err != nil {
		return nil, fmt.Errorf("listing lobbies: %w", err)
	}
	defer rows.Close()

	var lobbies []domain.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lobby: %w", err)
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}
