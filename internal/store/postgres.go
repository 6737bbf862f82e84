package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS game_snapshots (
	game_id  TEXT PRIMARY KEY,
	version  BIGINT NOT NULL DEFAULT 1,
	saved_at TIMESTAMPTZ NOT NULL,
	checksum TEXT NOT NULL,
	state    TEXT NOT NULL
)`

// PostgresStore persists snapshots in a single row per game,
// last-writer-wins. State is stored as the exact JSON text that was
// checksummed; JSONB would re-normalize the bytes and defeat the
// integrity check.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the snapshot table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, snapshotSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	log.Info().Msg("postgres game store ready")
	return &PostgresStore{pool: pool}, nil
}

// Save upserts the game's snapshot, bumping its version.
func (p *PostgresStore) Save(ctx context.Context, snap game.Snapshot) error {
	sum, data, err := checksum(snap)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO game_snapshots (game_id, version, saved_at, checksum, state)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (game_id) DO UPDATE SET
			version  = game_snapshots.version + 1,
			saved_at = EXCLUDED.saved_at,
			checksum = EXCLUDED.checksum,
			state    = EXCLUDED.state`,
		snap.ID, time.Now().UTC(), sum, string(data))
	if err != nil {
		return fmt.Errorf("store: save game %s: %w", snap.ID, err)
	}
	return nil
}

// Load fetches and validates the game's snapshot.
func (p *PostgresStore) Load(ctx context.Context, gameID string) (game.Snapshot, error) {
	var sum string
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT checksum, state FROM game_snapshots WHERE game_id = $1`, gameID).
		Scan(&sum, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("store: load game %s: %w", gameID, err)
	}
	return verify(gameID, sum, data)
}

// Delete removes the game's snapshot row.
func (p *PostgresStore) Delete(ctx context.Context, gameID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM game_snapshots WHERE game_id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("store: delete game %s: %w", gameID, err)
	}
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() { p.pool.Close() }
