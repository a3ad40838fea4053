// Package metadata persists the collection registry and usage logs in a
// single SQLite file. The gateway's request path only reads the registry;
// writes happen through the admin surface and the async usage logger.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a collection ID is not registered.
var ErrNotFound = errors.New("metadata: collection not found")

// Collection is one registry row: a named, independently queryable partition
// of the vector store corresponding to one ingested source.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageLog records one completed gateway request.
type UsageLog struct {
	RequestID        string    `json:"request_id"`
	Backend          string    `json:"backend"`
	Model            string    `json:"model"`
	Stream           bool      `json:"stream"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage logs over a time window.
type UsageSummary struct {
	TotalRequests    int   `json:"total_requests"`
	StreamRequests   int   `json:"stream_requests"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite metadata database at path and
// applies any pending embedded migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent usage-log writes.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate applies all pending embedded migrations to db.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ListCollections returns every registry entry in insertion (rowid) order.
// The order is stable within a process lifetime.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, file_name, created_at FROM collections ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.FileName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (s *Store) GetCollection(ctx context.Context, id string) (*Collection, error) {
	var c Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, file_name, created_at FROM collections WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.FileName, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) AddCollection(ctx context.Context, id, name, fileName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO collections (id, name, file_name) VALUES (?, ?, ?)`,
		id, name, fileName)
	if err != nil {
		return fmt.Errorf("add collection %s: %w", id, err)
	}
	return nil
}

func (s *Store) RenameCollection(ctx context.Context, id, newName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collections SET name = ? WHERE id = ?`, newName, id)
	if err != nil {
		return fmt.Errorf("rename collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) LogUsage(ctx context.Context, log *UsageLog) error {
	stream := 0
	if log.Stream {
		stream = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_logs (request_id, backend, model, stream, prompt_tokens, completion_tokens, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.RequestID, log.Backend, log.Model, stream,
		log.PromptTokens, log.CompletionTokens, log.DurationMs)
	if err != nil {
		return fmt.Errorf("log usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsageSummary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	var sum UsageSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(stream), 0),
		        COALESCE(SUM(CASE WHEN prompt_tokens > 0 THEN prompt_tokens ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN completion_tokens > 0 THEN completion_tokens ELSE 0 END), 0)
		 FROM usage_logs WHERE created_at BETWEEN ? AND ?`,
		from.UTC(), to.UTC()).
		Scan(&sum.TotalRequests, &sum.StreamRequests, &sum.PromptTokens, &sum.CompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	return &sum, nil
}
