package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/port/database"
)

var (
	_ database.Store        = (*Store)(nil)
	_ database.ChannelAdmin = (*Store)(nil)
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Channels ---

const channelColumns = `id, project_key_id, type, enabled, verified, config, created_at, updated_at`

func scanChannel(row scannable) (channel.Channel, error) {
	var (
		ch  channel.Channel
		typ string
		cfg []byte
	)
	err := row.Scan(&ch.ID, &ch.ProjectKeyID, &typ, &ch.Enabled, &ch.Verified, &cfg, &ch.CreatedAt, &ch.UpdatedAt)
	ch.Type = channel.Type(typ)
	ch.Config = cfg
	return ch, err
}

func (s *Store) ListEnabledChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error) {
	return queryAll(ctx, s, "list enabled channels", scanChannel,
		`SELECT `+channelColumns+` FROM channels
		 WHERE project_key_id = $1 AND enabled ORDER BY id`, projectKeyID)
}

func (s *Store) GetChannel(ctx context.Context, id int64) (*channel.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get channel %d", id)
	}
	return &ch, nil
}

func (s *Store) MarkChannelVerified(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET verified = TRUE, updated_at = now() WHERE id = $1`, id)
	return execExpectOne(tag, err, "mark channel %d verified", id)
}

// CreateChannel inserts ch and fills in its id and timestamps.
func (s *Store) CreateChannel(ctx context.Context, ch *channel.Channel) error {
	cfg := []byte(ch.Config)
	if len(cfg) == 0 {
		cfg = []byte("{}")
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO channels (project_key_id, type, enabled, verified, config)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		ch.ProjectKeyID, string(ch.Type), ch.Enabled, ch.Verified, cfg,
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

// ListChannels returns every channel of a project key, enabled or not.
func (s *Store) ListChannels(ctx context.Context, projectKeyID string) ([]channel.Channel, error) {
	return queryAll(ctx, s, "list channels", scanChannel,
		`SELECT `+channelColumns+` FROM channels WHERE project_key_id = $1 ORDER BY id`, projectKeyID)
}

// --- Replies ---

func (s *Store) CreateReply(ctx context.Context, req reply.CreateRequest) (*reply.Reply, error) {
	r := reply.Reply{ProjectKeyID: req.ProjectKeyID, SessionID: req.SessionID, Text: req.Text}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO replies (project_key_id, session_id, text)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		req.ProjectKeyID, req.SessionID, req.Text,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return &r, nil
}

func (s *Store) ListReplies(ctx context.Context, sessionID string) ([]reply.Reply, error) {
	return queryAll(ctx, s, "list replies", scanReply,
		`SELECT id, project_key_id, session_id, text, created_at
		 FROM replies WHERE session_id = $1 ORDER BY id`, sessionID)
}

func scanReply(row scannable) (reply.Reply, error) {
	var r reply.Reply
	err := row.Scan(&r.ID, &r.ProjectKeyID, &r.SessionID, &r.Text, &r.CreatedAt)
	return r, err
}
