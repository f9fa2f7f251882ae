package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/leadfactor/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clients (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cpf           TEXT NOT NULL UNIQUE,
	name          TEXT,
	birth_date    TEXT,
	income        TEXT,
	score         INTEGER,
	phone         TEXT,
	checked       INTEGER NOT NULL DEFAULT 0,
	owner_id      INTEGER NOT NULL,
	assignment_id INTEGER,
	status        TEXT,
	card_bin      TEXT,
	card_expiry   TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	owner_id   INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	outcome    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id);
CREATE INDEX IF NOT EXISTS idx_clients_owner_checked ON clients(owner_id, checked);
CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const clientColumns = `id, cpf, name, birth_date, income, score, phone, checked,
	owner_id, assignment_id, status, card_bin, card_expiry, created_at, updated_at`

func (s *SQLiteStore) Worklist(ctx context.Context, f Filter) ([]model.ClientRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE owner_id = ?`, clientColumns)
	args := []any{f.OwnerID}

	switch f.Phone {
	case PhoneMissing:
		query += ` AND (phone IS NULL OR phone = '')`
	case PhonePresent:
		query += ` AND phone IS NOT NULL AND phone != ''`
	}
	if f.Checked != nil {
		query += ` AND checked = ?`
		args = append(args, boolToInt(*f.Checked))
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query worklist")
	}
	defer rows.Close()

	var out []model.ClientRecord
	for rows.Next() {
		rec, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate worklist")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (model.ClientRecord, error) {
	var rec model.ClientRecord
	var name, birthDate, income, phone, status, cardBIN, cardExpiry sql.NullString
	var score, assignmentID sql.NullInt64
	var checked int

	err := row.Scan(&rec.ID, &rec.CPF, &name, &birthDate, &income, &score, &phone,
		&checked, &rec.OwnerID, &assignmentID, &status, &cardBIN, &cardExpiry,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, eris.Wrap(err, "sqlite: scan client")
	}

	rec.Name = nullString(name)
	rec.BirthDate = nullString(birthDate)
	rec.Phone = nullString(phone)
	rec.CardBIN = nullString(cardBIN)
	rec.CardExpiry = nullString(cardExpiry)
	rec.Checked = checked != 0
	rec.Status = model.LifecycleStatus(status.String)
	if score.Valid {
		n := int(score.Int64)
		rec.Score = &n
	}
	if assignmentID.Valid {
		rec.AssignmentID = &assignmentID.Int64
	}
	if income.Valid && income.String != "" {
		if d, err := decimal.NewFromString(income.String); err == nil {
			rec.Income = &d
		}
	}
	return rec, nil
}

func (s *SQLiteStore) InsertClients(ctx context.Context, ownerID int64, seeds []ClientSeed) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, seed := range seeds {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO clients (cpf, name, phone, owner_id) VALUES (?, ?, ?, ?)
			 ON CONFLICT(cpf) DO NOTHING`,
			seed.CPF, seed.Name, seed.Phone, ownerID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert client %s", seed.CPF)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return inserted, nil
}

func (s *SQLiteStore) UpdateClient(ctx context.Context, id int64, upd model.RecordUpdate) error {
	sets := []string{"checked = ?", "updated_at = datetime('now')"}
	args := []any{boolToInt(upd.Checked)}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.BirthDate != nil {
		sets = append(sets, "birth_date = ?")
		args = append(args, *upd.BirthDate)
	}
	if upd.Income != nil {
		sets = append(sets, "income = ?")
		args = append(args, upd.Income.String())
	}
	if upd.Score != nil {
		sets = append(sets, "score = ?")
		args = append(args, *upd.Score)
	}
	if upd.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *upd.Phone)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update client %d", id)
	}
	return rowsAffected(res, "client", id)
}

func (s *SQLiteStore) DeleteClient(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete client %d", id)
	}
	return rowsAffected(res, "client", id)
}

func (s *SQLiteStore) ResetChecked(ctx context.Context, ownerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET checked = 0, updated_at = datetime('now') WHERE owner_id = ? AND checked = 1`,
		ownerID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reset checked for owner %d", ownerID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, ownerID int64) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, owner_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		OwnerID:   ownerID,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return rowsAffectedStr(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, outcome *model.BatchOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcome")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outcome = ?, updated_at = ? WHERE id = ?`,
		string(status), string(payload), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return rowsAffectedStr(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, status, outcome, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var run model.Run
		var outcome sql.NullString
		if err := rows.Scan(&run.ID, &run.OwnerID, &run.Status, &outcome, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if outcome.Valid && outcome.String != "" {
			var o model.BatchOutcome
			if err := json.Unmarshal([]byte(outcome.String), &o); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal outcome for run %s", run.ID)
			}
			run.Outcome = &o
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func nullString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func rowsAffectedStr(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
