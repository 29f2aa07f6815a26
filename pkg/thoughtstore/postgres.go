package thoughtstore

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists thoughts in PostgreSQL, for a store shared by
// several orchestrators.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewStoreUnavailableError("failed to reach postgres", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS thoughts (
			id BIGSERIAL PRIMARY KEY,
			intent TEXT NOT NULL,
			content TEXT NOT NULL,
			priority INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			idempotency_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS thought_links (
			from_id BIGINT NOT NULL REFERENCES thoughts(id),
			to_id TEXT NOT NULL,
			relationship TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (from_id, to_id, relationship)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thoughts_source_created ON thoughts(source, created_at)`,
	}
	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return errors.NewStoreUnavailableError("postgres migrate failed", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	request, err := Normalize(request)
	if err != nil {
		return "", err
	}

	var key *string
	if request.IdempotencyKey != "" {
		key = &request.IdempotencyKey
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO thoughts (intent, content, priority, source, parent_id, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		request.Intent, request.Content, request.Priority, request.Source, request.ParentID, StatusNew, key).Scan(&id)
	if stderrors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx, `SELECT id FROM thoughts WHERE idempotency_key = $1`, request.IdempotencyKey).Scan(&id)
	}
	if err != nil {
		return "", unavailable("postgres create", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, intent, content, priority, source, parent_id, status, created_at
		FROM thoughts
		WHERE ($1 = '' OR source = $1)
		  AND ($2 = '' OR intent ILIKE '%' || $2 || '%' OR content ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		filter.Source, filter.Query, limit)
	if err != nil {
		return nil, unavailable("postgres list", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var id int64
		var createdAt time.Time
		if err := rows.Scan(&id, &record.Intent, &record.Content, &record.Priority,
			&record.Source, &record.ParentID, &record.Status, &createdAt); err != nil {
			return nil, unavailable("postgres list: scan", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		record.Timestamp = createdAt
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("postgres list: rows", err)
	}
	return records, nil
}

func (s *PostgresStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := validateLink(fromID, toID, relationship); err != nil {
		return err
	}
	from, err := strconv.ParseInt(fromID, 10, 64)
	if err != nil {
		return errors.NewNotFoundError("thought not found", err).WithContext("id", fromID)
	}
	var found int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM thoughts WHERE id = $1`, from).Scan(&found); err != nil {
		return unavailable("postgres link: lookup", err)
	}
	if found == 0 {
		return errors.NewNotFoundError("thought not found", nil).WithContext("id", fromID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO thought_links (from_id, to_id, relationship) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, from, toID, relationship)
	return unavailable("postgres link", err)
}
