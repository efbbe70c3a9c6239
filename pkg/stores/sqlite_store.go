package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Record persists a telemetry event. Events with a zero timestamp are
// stamped at insert time.
func (s *SQLiteStore) Record(ctx context.Context, event telemetry.Event) error {
	query := `
		INSERT INTO events (id, timestamp, kind, source, type, variant, message, level, duration_ns, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := event.ID
	if id == "" {
		id = uuid.New().String()
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var typeName, variant *string
	if event.Type != "" {
		typeName = &event.Type
	}
	if event.Variant != "" {
		variant = &event.Variant
	}

	var data *string
	if len(event.Data) > 0 {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		str := string(encoded)
		data = &str
	}

	_, err := s.db.ExecContext(ctx, query,
		id,
		ts.UTC().Format("2006-01-02 15:04:05.999999999"),
		event.Kind,
		event.Source,
		typeName,
		variant,
		event.Message,
		event.Level,
		int64(event.Duration),
		data,
	)

	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// GetEvent retrieves a persisted event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*EventRecord, error) {
	query := `
		SELECT id, timestamp, kind, source, type, variant, message, level, duration_ns, data
		FROM events
		WHERE id = ?
	`

	record, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return record, nil
}

// ListEvents retrieves events matching the query, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, q EventQuery) ([]*EventRecord, error) {
	query := `
		SELECT id, timestamp, kind, source, type, variant, message, level, duration_ns, data
		FROM events
		WHERE (? IS NULL OR kind = ?)
		  AND (? IS NULL OR type = ?)
		  AND (? IS NULL OR level = ?)
		  AND (? IS NULL OR datetime(timestamp) >= datetime(?))
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var since *string
	if q.Since != nil {
		formatted := q.Since.UTC().Format("2006-01-02 15:04:05.999999999")
		since = &formatted
	}

	rows, err := s.db.QueryContext(ctx, query,
		q.Kind, q.Kind,
		q.Type, q.Type,
		q.Level, q.Level,
		since, since,
		limit, q.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	records := []*EventRecord{}
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return records, nil
}

// CountByKind returns the number of persisted events per event kind.
func (s *SQLiteStore) CountByKind(ctx context.Context) (map[string]int64, error) {
	query := `SELECT kind, COUNT(*) FROM events GROUP BY kind`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// PruneBefore deletes all events older than the cutoff and reports how many
// rows were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM events WHERE datetime(timestamp) < datetime(?)`

	result, err := s.db.ExecContext(ctx, query, cutoff.UTC().Format("2006-01-02 15:04:05.999999999"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Subscriber returns an event subscriber that records every delivered event.
// Persistence failures are logged and do not propagate to the publisher.
func (s *SQLiteStore) Subscriber(logger zerolog.Logger) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		if err := s.Record(context.Background(), event); err != nil {
			logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("kind", event.Kind).
				Msg("Failed to persist event")
		}
	}
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// scanner abstracts sql.Row and sql.Rows for scanEvent.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*EventRecord, error) {
	record := &EventRecord{}
	var ts string
	var durationNs int64

	err := row.Scan(
		&record.ID,
		&ts,
		&record.Kind,
		&record.Source,
		&record.Type,
		&record.Variant,
		&record.Message,
		&record.Level,
		&durationNs,
		&record.Data,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := time.Parse("2006-01-02 15:04:05.999999999", ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
	}
	record.Timestamp = parsed.UTC()
	record.Duration = time.Duration(durationNs)

	return record, nil
}
