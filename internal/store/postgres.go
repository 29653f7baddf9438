package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresStore keeps every document kind in one JSONB table keyed by
// (kind, id).
type PostgresStore struct {
	db             *sql.DB
	projects       *pgCollection[Project]
	codes          *pgCollection[Code]
	notes          *pgCollection[Note]
	textFiles      *pgCollection[TextFile]
	codingVersions *pgCollection[CodingVersion]
	privileges     *pgCollection[ProjectPrivilege]
	users          *pgCollection[User]
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:             db,
		projects:       &pgCollection[Project]{db: db, kind: kindProjects},
		codes:          &pgCollection[Code]{db: db, kind: kindCodes},
		notes:          &pgCollection[Note]{db: db, kind: kindNotes},
		textFiles:      &pgCollection[TextFile]{db: db, kind: kindTextFiles},
		codingVersions: &pgCollection[CodingVersion]{db: db, kind: kindCodingVersions},
		privileges:     &pgCollection[ProjectPrivilege]{db: db, kind: kindPrivileges},
		users:          &pgCollection[User]{db: db, kind: kindUsers},
	}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Projects() Collection[Project]             { return s.projects }
func (s *PostgresStore) Codes() Collection[Code]                   { return s.codes }
func (s *PostgresStore) Notes() Collection[Note]                   { return s.notes }
func (s *PostgresStore) TextFiles() Collection[TextFile]           { return s.textFiles }
func (s *PostgresStore) CodingVersions() Collection[CodingVersion] { return s.codingVersions }
func (s *PostgresStore) Privileges() Collection[ProjectPrivilege]  { return s.privileges }
func (s *PostgresStore) Users() Collection[User]                   { return s.users }

func (s *PostgresStore) CreateProject(ctx context.Context, tree ProjectTree, owner ProjectPrivilege) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.projects.insert(ctx, tx, tree.Project); err != nil {
		return err
	}
	for _, code := range tree.Codes {
		if err := s.codes.insert(ctx, tx, code); err != nil {
			return err
		}
	}
	for _, note := range tree.Notes {
		if err := s.notes.insert(ctx, tx, note); err != nil {
			return err
		}
	}
	for _, file := range tree.TextFiles {
		if err := s.textFiles.insert(ctx, tx, file); err != nil {
			return err
		}
	}
	for _, version := range tree.CodingVersions {
		if err := s.codingVersions.insert(ctx, tx, version); err != nil {
			return err
		}
	}
	if err := s.privileges.insert(ctx, tx, owner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTextFile(ctx context.Context, file TextFile, versions []CodingVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create text file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.textFiles.insert(ctx, tx, file); err != nil {
		return err
	}
	for _, version := range versions {
		if err := s.codingVersions.insert(ctx, tx, version); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create text file: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type pgCollection[T Document] struct {
	db   *sql.DB
	kind string
}

func (c *pgCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE kind=$1 AND id=$2`, c.kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s %s: %w", c.kind, id, err)
	}
	return decode[T](body)
}

func (c *pgCollection[T]) Insert(ctx context.Context, doc T) error {
	return c.insert(ctx, c.db, doc)
}

func (c *pgCollection[T]) insert(ctx context.Context, exec execer, doc T) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	result, err := exec.ExecContext(ctx, `
		INSERT INTO documents (kind, id, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, id) DO NOTHING
	`, c.kind, doc.DocID(), body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s %s: %w", c.kind, doc.DocID(), ErrDuplicate)
		}
		return fmt.Errorf("insert %s %s: %w", c.kind, doc.DocID(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", c.kind, doc.DocID(), err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", c.kind, doc.DocID(), ErrDuplicate)
	}
	return nil
}

func (c *pgCollection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var zero T
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin update %s %s: %w", c.kind, id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var body []byte
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE kind=$1 AND id=$2 FOR UPDATE`, c.kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("lock %s %s: %w", c.kind, id, err)
	}

	doc, err := decode[T](body)
	if err != nil {
		return zero, err
	}
	if err := mutate(&doc); err != nil {
		return zero, err
	}
	updated, err := encode(doc)
	if err != nil {
		return zero, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET body=$3, updated_at=NOW()
		WHERE kind=$1 AND id=$2
	`, c.kind, id, updated); err != nil {
		return zero, fmt.Errorf("update %s %s: %w", c.kind, id, err)
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit update %s %s: %w", c.kind, id, err)
	}
	return doc, nil
}

func (c *pgCollection[T]) Delete(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE kind=$1 AND id=$2`, c.kind, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", c.kind, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", c.kind, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	return nil
}

func (c *pgCollection[T]) List(ctx context.Context) ([]T, error) {
	return c.query(ctx, `SELECT body FROM documents WHERE kind=$1 ORDER BY id`, c.kind)
}

func (c *pgCollection[T]) Find(ctx context.Context, field, value string) ([]T, error) {
	return c.query(ctx, `SELECT body FROM documents WHERE kind=$1 AND body->>$2 = $3 ORDER BY id`, c.kind, field, value)
}

func (c *pgCollection[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.kind, err)
		}
		doc, err := decode[T](body)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.kind, err)
	}
	return items, nil
}
