package thoughtstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

// Fixed-width timestamps so created_at sorts chronologically as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists thoughts in a SQLite database. Record ids are the
// decimal row ids.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the database at dsn, e.g.
// "file:thoughts.db" or "file::memory:".
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("failed to open sqlite database", err).WithContext("dsn", dsn)
	}

	// One connection: writes are serialized and in-memory databases stay a
	// single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.NewStoreUnavailableError("failed to set busy timeout", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.NewStoreUnavailableError("failed to enable foreign keys", err)
	}

	if err := migrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return errors.NewStoreUnavailableError("migrate: create schema_migrations", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return errors.NewStoreUnavailableError("migrate: read current version", err)
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreUnavailableError("migrate: begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	statements := []struct {
		name string
		sql  string
	}{
		{"create thoughts table", `
			CREATE TABLE IF NOT EXISTS thoughts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				intent TEXT NOT NULL,
				content TEXT NOT NULL,
				priority INTEGER NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				parent_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				idempotency_key TEXT NULL UNIQUE,
				created_at TEXT NOT NULL
			);`},
		{"create links table", `
			CREATE TABLE IF NOT EXISTS links (
				from_id INTEGER NOT NULL,
				to_id TEXT NOT NULL,
				relationship TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (from_id, to_id, relationship),
				FOREIGN KEY(from_id) REFERENCES thoughts(id)
			);`},
		{"create idx_thoughts_source_created", `CREATE INDEX IF NOT EXISTS idx_thoughts_source_created ON thoughts(source, created_at);`},
	}
	for _, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement.sql); err != nil {
			return errors.NewStoreUnavailableError("migrate: "+statement.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?);`, sqliteSchemaVersion); err != nil {
		return errors.NewStoreUnavailableError("migrate: record schema version", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreUnavailableError("migrate: commit transaction", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	request, err := Normalize(request)
	if err != nil {
		return "", err
	}

	var key sql.NullString
	if request.IdempotencyKey != "" {
		key = sql.NullString{String: request.IdempotencyKey, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO thoughts (intent, content, priority, source, parent_id, status, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		request.Intent, request.Content, request.Priority, request.Source, request.ParentID,
		StatusNew, key, s.now().UTC().Format(sqliteTimeLayout))
	if err != nil {
		return "", unavailable("sqlite create", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", unavailable("sqlite create", err)
	}
	if affected == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM thoughts WHERE idempotency_key = ?`, request.IdempotencyKey).Scan(&id)
		if err != nil {
			return "", unavailable("sqlite create: read existing id", err)
		}
		return strconv.FormatInt(id, 10), nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", unavailable("sqlite create: last insert id", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	like := "%" + filter.Query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intent, content, priority, source, parent_id, status, created_at
		FROM thoughts
		WHERE (? = '' OR source = ?)
		  AND (? = '' OR intent LIKE ? OR content LIKE ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		filter.Source, filter.Source, filter.Query, like, like, limit)
	if err != nil {
		return nil, unavailable("sqlite list", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var id int64
		var createdAt string
		if err := rows.Scan(&id, &record.Intent, &record.Content, &record.Priority,
			&record.Source, &record.ParentID, &record.Status, &createdAt); err != nil {
			return nil, unavailable("sqlite list: scan", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		record.Timestamp, err = time.Parse(sqliteTimeLayout, createdAt)
		if err != nil {
			return nil, errors.NewInternalError("sqlite list: invalid created_at", err).WithContext("id", record.ID)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("sqlite list: rows", err)
	}
	return records, nil
}

func (s *SQLiteStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := validateLink(fromID, toID, relationship); err != nil {
		return err
	}

	from, err := strconv.ParseInt(fromID, 10, 64)
	if err != nil {
		return errors.NewNotFoundError("thought not found", err).WithContext("id", fromID)
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM thoughts WHERE id = ?`, from).Scan(&exists)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("thought not found", nil).WithContext("id", fromID)
	}
	if err != nil {
		return unavailable("sqlite link: lookup", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO links (from_id, to_id, relationship, created_at) VALUES (?, ?, ?, ?)`,
		from, toID, relationship, s.now().UTC().Format(sqliteTimeLayout))
	return unavailable("sqlite link", err)
}

// Links returns the links whose source is id.
func (s *SQLiteStore) Links(ctx context.Context, id string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, relationship, created_at FROM links WHERE from_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, unavailable("sqlite links", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var from int64
		var link Link
		var createdAt string
		if err := rows.Scan(&from, &link.ToID, &link.Relationship, &createdAt); err != nil {
			return nil, unavailable("sqlite links: scan", err)
		}
		link.FromID = strconv.FormatInt(from, 10)
		if link.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, errors.NewInternalError(fmt.Sprintf("sqlite links: invalid created_at for %s", link.FromID), err)
		}
		links = append(links, link)
	}
	return links, unavailable("sqlite links: rows", rows.Err())
}
