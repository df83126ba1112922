package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/assayworks/hallmark-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS pending_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	request_no      TEXT NOT NULL,
	item_category   TEXT NOT NULL,
	pieces          INTEGER NOT NULL DEFAULT 0,
	declared_purity TEXT NOT NULL DEFAULT '',
	declared_weight REAL NOT NULL DEFAULT 0,
	job_no          TEXT NOT NULL DEFAULT '',
	firm_id         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(request_no, item_category, firm_id)
);

CREATE TABLE IF NOT EXISTS tags (
	job_no        TEXT NOT NULL,
	tag_no        TEXT NOT NULL,
	serial_no     INTEGER NOT NULL DEFAULT 0,
	item_category TEXT NOT NULL DEFAULT '',
	purity        TEXT NOT NULL DEFAULT '',
	weight        REAL NOT NULL DEFAULT 0,
	huid_code     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_no, tag_no)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	firm_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pending_items_request ON pending_items(request_no);
CREATE INDEX IF NOT EXISTS idx_pending_items_status ON pending_items(status);
CREATE INDEX IF NOT EXISTS idx_pending_items_job ON pending_items(job_no);
CREATE INDEX IF NOT EXISTS idx_tags_job ON tags(job_no);
CREATE INDEX IF NOT EXISTS idx_batch_runs_kind ON batch_runs(kind);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertPendingItems inserts or refreshes declared items. The declared
// fields follow the import; job_no and status are owned by reconciliation
// and never overwritten here.
func (s *SQLiteStore) UpsertPendingItems(ctx context.Context, items []model.PendingItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert items")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var n int64
	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pending_items
			 (request_no, item_category, pieces, declared_purity, declared_weight, firm_id, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(request_no, item_category, firm_id) DO UPDATE SET
			   pieces = excluded.pieces,
			   declared_purity = excluded.declared_purity,
			   declared_weight = excluded.declared_weight,
			   updated_at = excluded.updated_at`,
			it.RequestNo, it.ItemCategory, it.Pieces, it.DeclaredPurity, it.DeclaredWeight,
			it.FirmID, string(model.ItemStatusPending), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert item %s/%s", it.RequestNo, it.ItemCategory)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert items")
	}
	return n, nil
}

func (s *SQLiteStore) ListPendingItems(ctx context.Context, filter ItemFilter) ([]model.PendingItem, error) {
	query := `SELECT id, request_no, item_category, pieces, declared_purity, declared_weight, job_no, firm_id, status, created_at, updated_at
	          FROM pending_items WHERE 1=1`
	var args []any

	if filter.RequestNo != "" {
		query += ` AND request_no = ?`
		args = append(args, filter.RequestNo)
	}
	if filter.FirmID != "" {
		query += ` AND firm_id = ?`
		args = append(args, filter.FirmID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Unmatched {
		query += ` AND (job_no = '' OR job_no = '0')`
	}
	query += ` ORDER BY request_no, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending items")
	}
	defer rows.Close()

	var items []model.PendingItem
	for rows.Next() {
		it, err := scanPendingItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list pending items iterate")
}

// PendingByRequest returns the unmatched items grouped by request number,
// the shape the reconciliation pass consumes.
func (s *SQLiteStore) PendingByRequest(ctx context.Context, firmID string) (map[string][]*model.PendingItem, error) {
	items, err := s.ListPendingItems(ctx, ItemFilter{FirmID: firmID, Unmatched: true})
	if err != nil {
		return nil, err
	}
	return groupByRequest(items), nil
}

func (s *SQLiteStore) AssignJobNo(ctx context.Context, itemID int64, jobNo string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_items SET job_no = ?, status = ?, updated_at = ? WHERE id = ?`,
		jobNo, string(model.ItemStatusMatched), time.Now().UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: assign job no to item %d", itemID)
	}
	return checkRowsAffected(res, "pending_item", itemID)
}

func (s *SQLiteStore) UpdateItemStatus(ctx context.Context, itemID int64, status model.ItemStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item status %d", itemID)
	}
	return checkRowsAffected(res, "pending_item", itemID)
}

// SaveTags inserts or refreshes tag rows. A zero incoming weight or empty
// HUID never clobbers a captured value.
func (s *SQLiteStore) SaveTags(ctx context.Context, tags []model.Tag) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save tags")
	}
	defer tx.Rollback()

	var n int64
	for _, tag := range tags {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tags (job_no, tag_no, serial_no, item_category, purity, weight, huid_code)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(job_no, tag_no) DO UPDATE SET
			   serial_no = excluded.serial_no,
			   item_category = excluded.item_category,
			   purity = excluded.purity,
			   weight = CASE WHEN excluded.weight > 0 THEN excluded.weight ELSE weight END,
			   huid_code = CASE WHEN excluded.huid_code != '' THEN excluded.huid_code ELSE huid_code END`,
			tag.JobNo, tag.TagNo, tag.SerialNo, tag.ItemCategory, tag.Purity, tag.Weight, tag.HUIDCode,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save tag %s/%s", tag.JobNo, tag.TagNo)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save tags")
	}
	return n, nil
}

// WeightEntries returns the captured weights for the given jobs in one
// query. Rows with non-positive weight mean "not yet weighed" and are
// excluded.
func (s *SQLiteStore) WeightEntries(ctx context.Context, jobNos []string) (map[string]map[string]model.WeightEntry, error) {
	if len(jobNos) == 0 {
		return map[string]map[string]model.WeightEntry{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobNos)), ",")
	args := make([]any, len(jobNos))
	for i, j := range jobNos {
		args[i] = j
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_no, tag_no, weight, huid_code FROM tags
		 WHERE weight > 0 AND job_no IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: weight entries")
	}
	defer rows.Close()

	entries := make(map[string]map[string]model.WeightEntry)
	for rows.Next() {
		var jobNo, tagNo, huid string
		var weight float64
		if err := rows.Scan(&jobNo, &tagNo, &weight, &huid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weight entry")
		}
		if entries[jobNo] == nil {
			entries[jobNo] = make(map[string]model.WeightEntry)
		}
		entries[jobNo][tagNo] = model.WeightEntry{Weight: weight, HUID: huid}
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: weight entries iterate")
}

// UpdateHUIDCodes writes harvested HUID codes back to the tag rows and
// returns how many rows took a code. Unknown tags are ignored.
func (s *SQLiteStore) UpdateHUIDCodes(ctx context.Context, jobNo string, codes map[string]string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin huid update")
	}
	defer tx.Rollback()

	updated := 0
	for tagNo, huid := range codes {
		if huid == "" {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE tags SET huid_code = ? WHERE job_no = ? AND tag_no = ?`,
			huid, jobNo, tagNo,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: update huid for tag %s", tagNo)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit huid update")
	}
	return updated, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind, firmID string) (*model.BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, kind, firm_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(kind), firmID, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch run")
	}

	return &model.BatchRun{
		ID:        id,
		Kind:      kind,
		FirmID:    firmID,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary model.BatchSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(summary.Status()), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "batch_run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, firm_id, status, summary, started_at, finished_at FROM batch_runs WHERE id = ?`,
		runID,
	)
	r, err := scanBatchRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "batch_run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	query := `SELECT id, kind, firm_id, status, summary, started_at, finished_at FROM batch_runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		r, err := scanBatchRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
	}
	return nil
}

func groupByRequest(items []model.PendingItem) map[string][]*model.PendingItem {
	grouped := make(map[string][]*model.PendingItem)
	for i := range items {
		it := &items[i]
		grouped[it.RequestNo] = append(grouped[it.RequestNo], it)
	}
	return grouped
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPendingItem(row scannable) (*model.PendingItem, error) {
	var it model.PendingItem
	err := row.Scan(&it.ID, &it.RequestNo, &it.ItemCategory, &it.Pieces,
		&it.DeclaredPurity, &it.DeclaredWeight, &it.JobNo, &it.FirmID,
		&it.Status, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pending item")
	}
	return &it, nil
}

func scanBatchRun(row scannable) (*model.BatchRun, error) {
	var r model.BatchRun
	var summaryJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Kind, &r.FirmID, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan batch run")
	}

	if summaryJSON.Valid {
		if err := json.Unmarshal([]byte(summaryJSON.String), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
