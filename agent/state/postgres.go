package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// sessionRow is one snapshot; the payload is the JSON-encoded ConversationSession.
type sessionRow struct {
	bun.BaseModel `bun:"table:conversation_sessions"`

	UserID    string    `bun:"user_id,pk"`
	SessionID string    `bun:"session_id,pk"`
	Payload   string    `bun:"payload,type:jsonb,notnull"`
	Turns     int       `bun:"turns,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// PostgresStore persists session snapshots in Postgres through bun.
type PostgresStore struct {
	db *bun.DB
}

var _ Snapshotter = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create conversation_sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key Key) (*ConversationSession, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", key.UserID).
		Where("session_id = ?", key.SessionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session snapshot: %w", err)
	}
	return decodeRow(row)
}

func (s *PostgresStore) Save(ctx context.Context, st *ConversationSession) error {
	row, err := encodeRow(st)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, session_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("turns = EXCLUDED.turns").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("user_id = ?", key.UserID).
		Where("session_id = ?", key.SessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func encodeRow(st *ConversationSession) (*sessionRow, error) {
	if st == nil {
		return nil, ErrNilSessionState
	}
	if strings.TrimSpace(st.UserID) == "" || strings.TrimSpace(st.SessionID) == "" {
		return nil, ErrInvalidSession
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	return &sessionRow{
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Payload:   string(payload),
		Turns:     len(st.Turns),
		UpdatedAt: st.UpdatedAt.UTC(),
	}, nil
}

func decodeRow(row *sessionRow) (*ConversationSession, error) {
	var st ConversationSession
	if err := json.Unmarshal([]byte(row.Payload), &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	st.Key = Key{UserID: row.UserID, SessionID: row.SessionID}
	return &st, nil
}
