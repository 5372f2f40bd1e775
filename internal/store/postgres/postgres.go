// Package postgres stores archive documents in PostgreSQL through pgxpool.
// Schema changes ship as embedded golang-migrate migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// columns maps archive fields to table columns.
var columns = map[schema.Field]string{
	schema.FieldSerialNumber:      "serial_number",
	schema.FieldApplicationNumber: "application_number",
	schema.FieldLocker:            "locker",
	schema.FieldShelf:             "shelf",
	schema.FieldCollection:        "collection",
}

const selectColumns = `id, database_id, collection_id, serial_number, application_number,
	locker, shelf, collection, permissions, created_at, updated_at`

// Store is a DocumentStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies embedded migrations to the database at databaseURL.
func Migrate(databaseURL string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// MigrateURL rewrites a postgres:// DSN into the pgx5:// scheme the
// migrate driver registers under.
func MigrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func scanRecord(row pgx.Row) (schema.Record, error) {
	var r schema.Record
	err := row.Scan(
		&r.ID, &r.DatabaseID, &r.CollectionID,
		&r.SerialNumber, &r.ApplicationNumber, &r.Locker, &r.Shelf, &r.Collection,
		&r.Permissions, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return schema.Record{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildWhere renders the plan's conditions into a WHERE clause and its args.
func buildWhere(databaseID, collectionID string, plan store.Plan) (string, []any) {
	args := []any{databaseID, collectionID}
	clauses := []string{"database_id = $1", "collection_id = $2"}

	for _, c := range plan.Search {
		args = append(args, "%"+escapeLike(c.Values[0])+"%")
		clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", columns[c.Field], len(args)))
	}
	for _, c := range plan.Equal {
		args = append(args, c.Values)
		clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", columns[c.Field], len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries []string) (store.Page, error) {
	plan, err := store.BuildPlan(queries)
	if err != nil {
		return store.Page{}, err
	}

	where, args := buildWhere(databaseID, collectionID, plan)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM documents WHERE "+where, args...).Scan(&total); err != nil {
		return store.Page{}, fmt.Errorf("count documents: %w", err)
	}

	sql := "SELECT " + selectColumns + " FROM documents WHERE " + where + " ORDER BY created_at, id"
	if plan.Limit > 0 {
		args = append(args, plan.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if plan.Offset > 0 {
		args = append(args, plan.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return store.Page{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]schema.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return store.Page{}, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, r)
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, fmt.Errorf("list documents: %w", err)
	}

	return store.Page{Documents: docs, Total: total}, nil
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, id string) (schema.Record, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM documents WHERE database_id = $1 AND collection_id = $2 AND id = $3",
		databaseID, collectionID, id)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Record{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, database_id, collection_id, serial_number, application_number,
			locker, shelf, collection, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+selectColumns,
		id, databaseID, collectionID,
		fields.SerialNumber, fields.ApplicationNumber, fields.Locker, fields.Shelf, fields.Collection,
		store.DefaultPermissions,
	)
	r, err := scanRecord(row)
	if err != nil {
		return schema.Record{}, fmt.Errorf("create %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE documents
		SET serial_number = $4, application_number = $5, locker = $6, shelf = $7, collection = $8,
			updated_at = now()
		WHERE database_id = $1 AND collection_id = $2 AND id = $3
		RETURNING `+selectColumns,
		databaseID, collectionID, id,
		fields.SerialNumber, fields.ApplicationNumber, fields.Locker, fields.Shelf, fields.Collection,
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Record{}, fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("update %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, id string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM documents WHERE database_id = $1 AND collection_id = $2 AND id = $3",
		databaseID, collectionID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	return nil
}
