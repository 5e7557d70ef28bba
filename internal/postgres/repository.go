package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			mmr DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			captain_id VARCHAR(64) NOT NULL REFERENCES players(id),
			partner_id VARCHAR(64) NOT NULL REFERENCES players(id),
			lp INT NOT NULL CHECK (lp >= 0),
			tier VARCHAR(16) NOT NULL,
			win_streak INT NOT NULL DEFAULT 0 CHECK (win_streak >= 0),
			open_to_sparring BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CHECK (captain_id <> partner_id)
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id VARCHAR(64) PRIMARY KEY,
			match_type VARCHAR(16) NOT NULL,
			sets JSONB NOT NULL,
			winner VARCHAR(1) NOT NULL,
			score_line VARCHAR(64) NOT NULL,
			side_a TEXT[],
			side_b TEXT[],
			team_a VARCHAR(64) REFERENCES teams(id),
			team_b VARCHAR(64) REFERENCES teams(id),
			reported_by VARCHAR(64),
			outcome JSONB NOT NULL,
			played_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rating_events (
			id BIGSERIAL PRIMARY KEY,
			match_id VARCHAR(64) NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			subject_type VARCHAR(16) NOT NULL,
			subject_id VARCHAR(64) NOT NULL,
			rating_before DOUBLE PRECISION NOT NULL,
			rating_after DOUBLE PRECISION NOT NULL,
			tier_before VARCHAR(16),
			tier_after VARCHAR(16),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lobbies (
			id VARCHAR(64) PRIMARY KEY,
			lobby_type VARCHAR(16) NOT NULL,
			host_id VARCHAR(64) NOT NULL REFERENCES players(id),
			schedule JSONB NOT NULL,
			location VARCHAR(255) NOT NULL DEFAULT '',
			mmr_band JSONB,
			capacity INT NOT NULL,
			confirmed JSONB NOT NULL,
			requested JSONB NOT NULL,
			confirmed_count INT NOT NULL,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CHECK (confirmed_count <= capacity)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_teams_lp ON teams(lp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_players_mmr ON players(mmr DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rating_events_subject ON rating_events(subject_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_lobbies_open ON lobbies(lobby_type, created_at DESC) WHERE NOT finished`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreatePlayer inserts a new player
func (r *Repository) CreatePlayer(ctx context.Context, p domain.Player) error {
	query := `
		INSERT INTO players (id, name, mmr, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.MMR, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrPlayerExists, p.ID)
		}
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by ID
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT id, name, mmr, created_at, updated_at FROM players WHERE id = $1`

	var p domain.Player
	err := r.pool.QueryRow(ctx, query, playerID).Scan(&p.ID, &p.Name, &p.MMR, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, playerID)
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}

// GetPlayers retrieves several players keyed by id. Every id must exist.
func (r *Repository) GetPlayers(ctx context.Context, playerIDs []string) (map[string]domain.Player, error) {
	query := `SELECT id, name, mmr, created_at, updated_at FROM players WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, playerIDs)
	if err != nil {
		return nil, fmt.Errorf("getting players: %w", err)
	}
	defer rows.Close()

	players := make(map[string]domain.Player, len(playerIDs))
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.MMR, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating players: %w", err)
	}

	for _, id := range playerIDs {
		if _, ok := players[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
		}
	}
	return players, nil
}

// ListPlayers pages through players ordered by id, starting after afterID
func (r *Repository) ListPlayers(ctx context.Context, afterID string, limit int) ([]domain.Player, error) {
	query := `
		SELECT id, name, mmr, created_at, updated_at
		FROM players
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.MMR, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

const teamColumns = `id, name, captain_id, partner_id, lp, tier, win_streak, open_to_sparring, created_at, updated_at`

func scanTeam(row pgx.Row) (domain.Team, error) {
	var t domain.Team
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.CaptainID,
		&t.PartnerID,
		&t.LP,
		&t.Tier,
		&t.WinStreak,
		&t.OpenToSparring,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// CreateTeam inserts a new team
func (r *Repository) CreateTeam(ctx context.Context, t domain.Team) error {
	query := `
		INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.Name,
		t.CaptainID,
		t.PartnerID,
		t.LP,
		string(t.Tier),
		t.WinStreak,
		t.OpenToSparring,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrTeamExists, t.ID)
		}
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID
func (r *Repository) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	t, err := scanTeam(r.pool.QueryRow(ctx, query, teamID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTeamNotFound, teamID)
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return &t, nil
}

// ListTeams pages through teams ordered by id, starting after afterID
func (r *Repository) ListTeams(ctx context.Context, afterID string, limit int) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id > $1 ORDER BY id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}
