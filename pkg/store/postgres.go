package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database, runs pending migrations, and returns
// the store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migrate(dsn); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// migrate runs goose against a short-lived database/sql handle; the runtime
// path stays on the pgx pool.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open for migrate: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Postgres) OpenCall(ctx context.Context, streamSid, callSid string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, stream_sid, call_sid) VALUES ($1, $2, $3)`,
		id, streamSid, callSid)
	if err != nil {
		return "", fmt.Errorf("open call: %w", err)
	}
	return id, nil
}

func (s *Postgres) CloseCall(ctx context.Context, callID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE calls SET ended_at = now() WHERE id = $1 AND ended_at IS NULL`,
		callID)
	if err != nil {
		return fmt.Errorf("close call: %w", err)
	}
	return nil
}

func (s *Postgres) RecordTurn(ctx context.Context, callID string, role Role, text string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (call_id, role, text) VALUES ($1, $2, $3)`,
		callID, string(role), text)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

func (s *Postgres) RecordIntent(ctx context.Context, callID string, name string, escalate bool, slots map[string]any) error {
	if slots == nil {
		slots = map[string]any{}
	}
	blob, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO intents (call_id, name, escalate, slots) VALUES ($1, $2, $3, $4)`,
		callID, name, escalate, blob)
	if err != nil {
		return fmt.Errorf("record intent: %w", err)
	}
	return nil
}

// Close drains the connection pool.
func (s *Postgres) Close() { s.pool.Close() }
