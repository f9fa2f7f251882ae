package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/leadfactor/enrich-cli/internal/model"
)

// Pool abstracts the pgx pool operations the store needs, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id            BIGSERIAL PRIMARY KEY,
	cpf           TEXT NOT NULL UNIQUE,
	name          TEXT,
	birth_date    TEXT,
	income        NUMERIC(14,2),
	score         INTEGER,
	phone         TEXT,
	checked       BOOLEAN NOT NULL DEFAULT FALSE,
	owner_id      BIGINT NOT NULL,
	assignment_id BIGINT,
	status        TEXT,
	card_bin      TEXT,
	card_expiry   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	owner_id   BIGINT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	outcome    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id);
CREATE INDEX IF NOT EXISTS idx_clients_owner_checked ON clients(owner_id, checked);
CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgClientColumns = `id, cpf, name, birth_date, income::text, score, phone, checked,
	owner_id, assignment_id, status, card_bin, card_expiry, created_at, updated_at`

func (s *PostgresStore) Worklist(ctx context.Context, f Filter) ([]model.ClientRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE owner_id = $1`, pgClientColumns)
	args := []any{f.OwnerID}

	switch f.Phone {
	case PhoneMissing:
		query += ` AND (phone IS NULL OR phone = '')`
	case PhonePresent:
		query += ` AND phone IS NOT NULL AND phone != ''`
	}
	if f.Checked != nil {
		args = append(args, *f.Checked)
		query += fmt.Sprintf(` AND checked = $%d`, len(args))
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query worklist")
	}
	defer rows.Close()

	var out []model.ClientRecord
	for rows.Next() {
		rec, err := scanPgClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate worklist")
}

func scanPgClient(rows pgx.Rows) (model.ClientRecord, error) {
	var rec model.ClientRecord
	var name, birthDate, income, phone, status, cardBIN, cardExpiry *string
	var score *int
	var assignmentID *int64

	err := rows.Scan(&rec.ID, &rec.CPF, &name, &birthDate, &income, &score, &phone,
		&rec.Checked, &rec.OwnerID, &assignmentID, &status, &cardBIN, &cardExpiry,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, eris.Wrap(err, "postgres: scan client")
	}

	rec.Name = name
	rec.BirthDate = birthDate
	rec.Phone = phone
	rec.CardBIN = cardBIN
	rec.CardExpiry = cardExpiry
	rec.Score = score
	rec.AssignmentID = assignmentID
	if status != nil {
		rec.Status = model.LifecycleStatus(*status)
	}
	if income != nil && *income != "" {
		if d, err := decimal.NewFromString(*income); err == nil {
			rec.Income = &d
		}
	}
	return rec, nil
}

func (s *PostgresStore) InsertClients(ctx context.Context, ownerID int64, seeds []ClientSeed) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO clients (cpf, name, phone, owner_id) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (cpf) DO NOTHING`,
			seed.CPF, seed.Name, seed.Phone, ownerID,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: insert client %s", seed.CPF)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, id int64, upd model.RecordUpdate) error {
	sets := []string{"checked = $1", "updated_at = now()"}
	args := []any{upd.Checked}

	appendSet := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		appendSet("name", *upd.Name)
	}
	if upd.BirthDate != nil {
		appendSet("birth_date", *upd.BirthDate)
	}
	if upd.Income != nil {
		appendSet("income", upd.Income.String())
	}
	if upd.Score != nil {
		appendSet("score", *upd.Score)
	}
	if upd.Phone != nil {
		appendSet("phone", *upd.Phone)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update client %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "client %d", id)
	}
	return nil
}

func (s *PostgresStore) DeleteClient(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete client %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "client %d", id)
	}
	return nil
}

func (s *PostgresStore) ResetChecked(ctx context.Context, ownerID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET checked = FALSE, updated_at = now() WHERE owner_id = $1 AND checked = TRUE`,
		ownerID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reset checked for owner %d", ownerID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, ownerID int64) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, owner_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, ownerID, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		OwnerID:   ownerID,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, outcome *model.BatchOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, outcome = $2, updated_at = now() WHERE id = $3`,
		string(status), payload, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, status, outcome, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var run model.Run
		var outcome []byte
		if err := rows.Scan(&run.ID, &run.OwnerID, &run.Status, &outcome, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(outcome) > 0 {
			var o model.BatchOutcome
			if err := json.Unmarshal(outcome, &o); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal outcome for run %s", run.ID)
			}
			run.Outcome = &o
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
