// Package audit keeps a Postgres trail of masking signals.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/masking"
)

const schema = `
	CREATE TABLE IF NOT EXISTS masking_signals (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT NOT NULL,
		expression  TEXT NOT NULL DEFAULT '',
		strategy    TEXT NOT NULL DEFAULT '',
		match_count INTEGER NOT NULL DEFAULT 0,
		detail      TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_masking_signals_created_at ON masking_signals (created_at DESC);`

// Store persists masking signals. Signals never contain matched text, so
// nothing sensitive is written.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to Postgres and creates the signal table if needed
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := NewStoreWithDB(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create masking_signals table: %w", err)
	}
	return nil
}

// Name identifies the store as a signal forwarder
func (s *Store) Name() string {
	return "audit"
}

// Forward persists a signal
func (s *Store) Forward(ctx context.Context, sig masking.Signal) error {
	_, err := s.Insert(ctx, sig)
	return err
}

// Insert adds a signal and returns its row ID
func (s *Store) Insert(ctx context.Context, sig masking.Signal) (int64, error) {
	createdAt := sig.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO masking_signals (kind, expression, strategy, match_count, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		string(sig.Kind),
		sig.Expression,
		sig.Strategy,
		sig.Count,
		sig.Detail,
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal: %w", err)
	}

	s.logger.Debug("Signal recorded",
		zap.Int64("id", id),
		zap.String("kind", string(sig.Kind)))

	return id, nil
}

// Recent returns the newest signals, optionally limited to one kind
func (s *Store) Recent(ctx context.Context, kind masking.SignalKind, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []interface{}{}
	if kind != "" {
		where = "WHERE kind = $1"
		args = append(args, string(kind))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, kind, expression, strategy, match_count, detail, created_at
		FROM masking_signals
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, where, len(args))

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return records, nil
}

// CountByKind summarizes stored signals since the given time
func (s *Store) CountByKind(ctx context.Context, since time.Time) ([]KindCount, error) {
	query := `
		SELECT kind, COUNT(*) AS total
		FROM masking_signals
		WHERE created_at >= $1
		GROUP BY kind
		ORDER BY kind`

	var counts []KindCount
	if err := s.db.SelectContext(ctx, &counts, query, since); err != nil {
		return nil, fmt.Errorf("failed to count signals: %w", err)
	}
	return counts, nil
}

// Prune deletes signals older than the cutoff and reports how many were removed
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM masking_signals WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune signals: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		return 0, nil
	}

	s.logger.Info("Pruned masking signals", zap.Int64("deleted", deleted))
	return deleted, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}

	userPart := url[:at]
	scheme := ""
	if i := strings.Index(userPart, "://"); i >= 0 {
		scheme, userPart = userPart[:i+3], userPart[i+3:]
	}

	if colon := strings.Index(userPart, ":"); colon >= 0 {
		userPart = userPart[:colon+1] + "***"
	}
	return scheme + userPart + url[at:]
}
