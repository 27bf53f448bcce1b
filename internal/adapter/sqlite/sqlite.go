// Package sqlite implements the store on an embedded SQLite database for
// single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Register the pure-Go sqlite driver

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/port/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	_ database.Store        = (*Store)(nil)
	_ database.ChannelAdmin = (*Store)(nil)
)

// Store implements database.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Migrations are not
// applied; call Migrate.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent fanouts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) provider() (*goose.Provider, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	return p, nil
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	p, err := s.provider()
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Rollback rolls back the last steps migrations.
func (s *Store) Rollback(ctx context.Context, steps int) error {
	p, err := s.provider()
	if err != nil {
		return err
	}
	for range steps {
		if _, err := p.Down(ctx); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	return nil
}

// Version returns the current migration version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Channels ---

const channelColumns = `id, project_key_id, type, enabled, verified, config, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanChannel(row scannable) (channel.Channel, error) {
	var (
		ch                 channel.Channel
		typ, cfg           string
		createdAt, updated int64
	)
	if err := row.Scan(&ch.ID, &ch.ProjectKeyID, &typ, &ch.Enabled, &ch.Verified, &cfg, &createdAt, &updated); err != nil {
		return ch, err
	}
	ch.Type = channel.Type(typ)
	ch.Config = []byte(cfg)
	ch.CreatedAt = time.UnixMilli(createdAt).UTC()
	ch.UpdatedAt = time.UnixMilli(updated).UTC()
	return ch, nil
}

func (s *Store) ListEnabledChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error) {
	out, err := s.queryChannels(ctx,
		`SELECT `+channelColumns+` FROM channels
		 WHERE project_key_id = ? AND enabled = 1 ORDER BY id`, projectKeyID)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	return out, nil
}

// ListChannels returns every channel of a project key, enabled or not.
func (s *Store) ListChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error) {
	out, err := s.queryChannels(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE project_key_id = ? ORDER BY id`, projectKeyID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

func (s *Store) queryChannels(ctx context.Context, query string, args ...any) ([]channel.Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []channel.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) GetChannel(ctx context.Context, id int64) (*channel.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get channel %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %d: %w", id, err)
	}
	return &ch, nil
}

func (s *Store) MarkChannelVerified(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET verified = 1, updated_at = ? WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark channel %d verified: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark channel %d verified: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CreateChannel inserts ch and fills in its id and timestamps. Channel
// management has no HTTP surface; the CLI and tests use it.
func (s *Store) CreateChannel(ctx context.Context, ch *channel.Channel) error {
	now := s.now()
	cfg := string(ch.Config)
	if cfg == "" {
		cfg = "{}"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (project_key_id, type, enabled, verified, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.ProjectKeyID, string(ch.Type), ch.Enabled, ch.Verified, cfg, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	if ch.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	ch.CreatedAt, ch.UpdatedAt = now.UTC(), now.UTC()
	return nil
}

// --- Replies ---

func (s *Store) CreateReply(ctx context.Context, req reply.CreateRequest) (*reply.Reply, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO replies (project_key_id, session_id, text, created_at) VALUES (?, ?, ?, ?)`,
		req.ProjectKeyID, req.SessionID, req.Text, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return &reply.Reply{
		ID:           id,
		ProjectKeyID: req.ProjectKeyID,
		SessionID:    req.SessionID,
		Text:         req.Text,
		CreatedAt:    time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (s *Store) ListReplies(ctx context.Context, sessionID string) ([]reply.Reply, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_key_id, session_id, text, created_at
		 FROM replies WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	out := []reply.Reply{}
	for rows.Next() {
		var (
			r       reply.Reply
			created int64
		)
		if err := rows.Scan(&r.ID, &r.ProjectKeyID, &r.SessionID, &r.Text, &created); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
