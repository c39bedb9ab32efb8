package document_store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ameliahart/conversational_memory/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store on a single JSONB documents table.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// NewPostgresStore connects to the database, runs pending migrations and
// returns a ready store.
func NewPostgresStore(ctx context.Context, databaseURL string, log logger.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &PostgresStore{pool: pool, log: log}
	if err := s.runMigrations(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) runMigrations() error {
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("create embedded migration source: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = migrator.Close() }()

	s.log.Info("Starting document store migrations")
	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.log.Info("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	s.log.Info("Successfully applied migrations")
	return nil
}

// Get returns the document with the given ID, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var fields map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT fields FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Document{ID: id, Fields: fields}, nil
}

// Query compiles the spec into JSONB expressions.
func (s *PostgresStore) Query(ctx context.Context, collection string, spec QuerySpec) ([]Document, error) {
	sql, args := buildQuerySQL(collection, spec)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Ordering over fields->> is textual in SQL, which mis-sorts timestamps
	// with varying fractional precision. Ordered queries are therefore
	// fetched without a SQL LIMIT, re-sorted here, and truncated after, so
	// the limit never picks a page off the wrong textual order.
	sortDocuments(docs, spec.OrderBy)
	if spec.OrderBy != nil && spec.Limit > 0 && len(docs) > spec.Limit {
		docs = docs[:spec.Limit]
	}
	return docs, nil
}

func buildQuerySQL(collection string, spec QuerySpec) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, fields FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range spec.Filters {
		args = append(args, f.Field)
		fieldArg := len(args)

		switch v := f.Value.(type) {
		case float64, float32, int, int64:
			args = append(args, v)
			fmt.Fprintf(&sb, " AND (fields->>$%d)::numeric %s $%d", fieldArg, sqlOp(f.Op), len(args))
		case bool:
			args = append(args, v)
			fmt.Fprintf(&sb, " AND (fields->>$%d)::boolean %s $%d", fieldArg, sqlOp(f.Op), len(args))
		default:
			args = append(args, fmt.Sprintf("%v", v))
			fmt.Fprintf(&sb, " AND fields->>$%d %s $%d", fieldArg, sqlOp(f.Op), len(args))
		}
	}

	if spec.OrderBy != nil {
		args = append(args, spec.OrderBy.Field)
		direction := "ASC"
		if spec.OrderBy.Descending {
			direction = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY fields->>$%d %s", len(args), direction)
	}

	// LIMIT is pushed down only for unordered queries. With an ORDER BY the
	// textual SQL sort may disagree with the real one, so the page must be
	// chosen after the re-sort in Query.
	if spec.Limit > 0 && spec.OrderBy == nil {
		args = append(args, spec.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

func sqlOp(op Op) string {
	switch op {
	case OpGte:
		return ">="
	case OpLte:
		return "<="
	default:
		return "="
	}
}

// Set upserts a document in a single statement.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, value any, merge bool) error {
	fields, err := Encode(value)
	if err != nil {
		return err
	}

	assignment := `EXCLUDED.fields`
	if merge {
		assignment = `documents.fields || EXCLUDED.fields`
	}
	sql := fmt.Sprintf(`
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
		    fields = %s,
		    updated_at = now()`, assignment)

	if _, err := s.pool.Exec(ctx, sql, collection, id, fields); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a document; missing documents are not an error.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
