package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/padel-league/internal/config"
	"github.com/padel-league/internal/domain"
)

// Source pages durable ratings in id order
type Source interface {
	ListTeams(ctx context.Context, afterID string, limit int) ([]domain.Team, error)
	ListPlayers(ctx context.Context, afterID string, limit int) ([]domain.Player, error)
}

// Sink is the leaderboard read model being rebuilt
type Sink interface {
	SetTeams(ctx context.Context, teams []domain.Team) error
	SetPlayers(ctx context.Context, players []domain.Player) error
	Reset(ctx context.Context, board domain.Board) error
}

// SyncWorker periodically rebuilds the Redis leaderboards from PostgreSQL.
// PostgreSQL is the source of truth; writes to Redis after a match commit
// are best effort and this worker repairs any that were lost.
type SyncWorker struct {
	source  Source
	sink    Sink
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(source Source, sink Sink, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		source: source,
		sink:   sink,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.SyncAll(ctx); err != nil {
				w.logger.Error("sync cycle failed", "error", err)
			}
		}
	}
}

// SyncAll rebuilds both boards. It runs once at startup for recovery and on
// every tick afterwards.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	startTime := time.Now()

	teams, err := w.SyncTeams(ctx)
	if err != nil {
		return err
	}
	players, err := w.SyncPlayers(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"teams", teams,
		"players", players,
	)
	return nil
}

// SyncTeams copies every team's LP into the teams board
func (w *SyncWorker) SyncTeams(ctx context.Context) (int, error) {
	return syncPages(ctx, w.batchSize(), w.source.ListTeams, w.sink.SetTeams, func(t domain.Team) string { return t.ID })
}

// SyncPlayers copies every player's MMR into the players board
func (w *SyncWorker) SyncPlayers(ctx context.Context) (int, error) {
	return syncPages(ctx, w.batchSize(), w.source.ListPlayers, w.sink.SetPlayers, func(p domain.Player) string { return p.ID })
}

// Rebuild clears one board and refills it from PostgreSQL. Members that no
// longer exist in the database disappear from the board.
func (w *SyncWorker) Rebuild(ctx context.Context, board domain.Board) (int, error) {
	if !board.Valid() {
		return 0, fmt.Errorf("%w: board %q", domain.ErrInvalidRequest, board)
	}
	if err := w.sink.Reset(ctx, board); err != nil {
		return 0, err
	}

	var (
		n   int
		err error
	)
	if board == domain.BoardTeams {
		n, err = w.SyncTeams(ctx)
	} else {
		n, err = w.SyncPlayers(ctx)
	}
	if err != nil {
		return n, err
	}
	w.logger.Info("board rebuilt", "board", board, "members", n)
	return n, nil
}

func (w *SyncWorker) batchSize() int {
	if w.config.BatchSize <= 0 {
		return 1000
	}
	return w.config.BatchSize
}

// syncPages walks the source with keyset pagination, writing each page
func syncPages[T any](
	ctx context.Context,
	size int,
	list func(context.Context, string, int) ([]T, error),
	write func(context.Context, []T) error,
	id func(T) string,
) (int, error) {
	var (
		after string
		total int
	)
	for {
		page, err := list(ctx, after, size)
		if err != nil {
			return total, fmt.Errorf("reading page after %q: %w", after, err)
		}
		if len(page) == 0 {
			return total, nil
		}
		if err := write(ctx, page); err != nil {
			return total, fmt.Errorf("writing page after %q: %w", after, err)
		}
		total += len(page)
		if len(page) < size {
			return total, nil
		}
		after = id(page[len(page)-1])
	}
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
