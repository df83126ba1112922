package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/assayworks/hallmark-cli/internal/db"
	"github.com/assayworks/hallmark-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. Reconciliation and
// HUID write-back issue these once per item or tag.
var preparedStatements = map[string]string{
	"assign_job_no":      `UPDATE pending_items SET job_no = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"update_item_status": `UPDATE pending_items SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_huid":        `UPDATE tags SET huid_code = $1 WHERE job_no = $2 AND tag_no = $3`,
	"insert_run":         `INSERT INTO batch_runs (id, kind, firm_id, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"finish_run":         `UPDATE batch_runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
	"get_run":            `SELECT id, kind, firm_id, status, summary, started_at, finished_at FROM batch_runs WHERE id = $1`,
	"weight_entries":     `SELECT job_no, tag_no, weight, huid_code FROM tags WHERE weight > 0 AND job_no = ANY($1)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pending_items (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	request_no      TEXT NOT NULL,
	item_category   TEXT NOT NULL,
	pieces          INTEGER NOT NULL DEFAULT 0,
	declared_purity TEXT NOT NULL DEFAULT '',
	declared_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	job_no          TEXT NOT NULL DEFAULT '',
	firm_id         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(request_no, item_category, firm_id)
);

CREATE TABLE IF NOT EXISTS tags (
	job_no        TEXT NOT NULL,
	tag_no        TEXT NOT NULL,
	serial_no     INTEGER NOT NULL DEFAULT 0,
	item_category TEXT NOT NULL DEFAULT '',
	purity        TEXT NOT NULL DEFAULT '',
	weight        DOUBLE PRECISION NOT NULL DEFAULT 0,
	huid_code     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_no, tag_no)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	firm_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pending_items_request ON pending_items(request_no);
CREATE INDEX IF NOT EXISTS idx_pending_items_status ON pending_items(status);
CREATE INDEX IF NOT EXISTS idx_pending_items_job ON pending_items(job_no);
CREATE INDEX IF NOT EXISTS idx_tags_job ON tags(job_no);
CREATE INDEX IF NOT EXISTS idx_batch_runs_kind ON batch_runs(kind);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertPendingItems bulk-loads declared items via a temp table. Only the
// declared fields refresh on conflict; job_no and status stay untouched.
func (s *PostgresStore) UpsertPendingItems(ctx context.Context, items []model.PendingItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.RequestNo, it.ItemCategory, it.Pieces, it.DeclaredPurity,
			it.DeclaredWeight, it.FirmID, string(model.ItemStatusPending), now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "pending_items",
		Columns: []string{
			"request_no", "item_category", "pieces", "declared_purity",
			"declared_weight", "firm_id", "status", "created_at", "updated_at",
		},
		ConflictKeys: []string{"request_no", "item_category", "firm_id"},
		UpdateCols:   []string{"pieces", "declared_purity", "declared_weight", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert pending items")
}

func (s *PostgresStore) ListPendingItems(ctx context.Context, filter ItemFilter) ([]model.PendingItem, error) {
	query := `SELECT id, request_no, item_category, pieces, declared_purity, declared_weight, job_no, firm_id, status, created_at, updated_at
	          FROM pending_items WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RequestNo != "" {
		query += fmt.Sprintf(` AND request_no = $%d`, argIdx)
		args = append(args, filter.RequestNo)
		argIdx++
	}
	if filter.FirmID != "" {
		query += fmt.Sprintf(` AND firm_id = $%d`, argIdx)
		args = append(args, filter.FirmID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Unmatched {
		query += ` AND (job_no = '' OR job_no = '0')`
	}
	query += ` ORDER BY request_no, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending items")
	}
	defer rows.Close()

	var items []model.PendingItem
	for rows.Next() {
		var it model.PendingItem
		if err := rows.Scan(&it.ID, &it.RequestNo, &it.ItemCategory, &it.Pieces,
			&it.DeclaredPurity, &it.DeclaredWeight, &it.JobNo, &it.FirmID,
			&it.Status, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list pending items iterate")
}

func (s *PostgresStore) PendingByRequest(ctx context.Context, firmID string) (map[string][]*model.PendingItem, error) {
	items, err := s.ListPendingItems(ctx, ItemFilter{FirmID: firmID, Unmatched: true})
	if err != nil {
		return nil, err
	}
	return groupByRequest(items), nil
}

func (s *PostgresStore) AssignJobNo(ctx context.Context, itemID int64, jobNo string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_items SET job_no = $1, status = $2, updated_at = $3 WHERE id = $4`,
		jobNo, string(model.ItemStatusMatched), time.Now().UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: assign job no to item %d", itemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending_item %d", itemID)
	}
	return nil
}

func (s *PostgresStore) UpdateItemStatus(ctx context.Context, itemID int64, status model.ItemStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_items SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item status %d", itemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending_item %d", itemID)
	}
	return nil
}

// SaveTags upserts tag rows one statement at a time inside a transaction.
// The CASE guards keep a captured weight or HUID from being wiped by a
// zero-valued re-import, which BulkUpsert's unconditional EXCLUDED set
// cannot express.
func (s *PostgresStore) SaveTags(ctx context.Context, tags []model.Tag) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save tags")
	}
	defer tx.Rollback(ctx)

	var n int64
	for _, tag := range tags {
		ct, err := tx.Exec(ctx,
			`INSERT INTO tags (job_no, tag_no, serial_no, item_category, purity, weight, huid_code)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (job_no, tag_no) DO UPDATE SET
			   serial_no = EXCLUDED.serial_no,
			   item_category = EXCLUDED.item_category,
			   purity = EXCLUDED.purity,
			   weight = CASE WHEN EXCLUDED.weight > 0 THEN EXCLUDED.weight ELSE tags.weight END,
			   huid_code = CASE WHEN EXCLUDED.huid_code <> '' THEN EXCLUDED.huid_code ELSE tags.huid_code END`,
			tag.JobNo, tag.TagNo, tag.SerialNo, tag.ItemCategory, tag.Purity, tag.Weight, tag.HUIDCode,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: save tag %s/%s", tag.JobNo, tag.TagNo)
		}
		n += ct.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save tags")
	}
	return n, nil
}

func (s *PostgresStore) WeightEntries(ctx context.Context, jobNos []string) (map[string]map[string]model.WeightEntry, error) {
	if len(jobNos) == 0 {
		return map[string]map[string]model.WeightEntry{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_no, tag_no, weight, huid_code FROM tags WHERE weight > 0 AND job_no = ANY($1)`,
		jobNos,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: weight entries")
	}
	defer rows.Close()

	entries := make(map[string]map[string]model.WeightEntry)
	for rows.Next() {
		var jobNo, tagNo, huid string
		var weight float64
		if err := rows.Scan(&jobNo, &tagNo, &weight, &huid); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weight entry")
		}
		if entries[jobNo] == nil {
			entries[jobNo] = make(map[string]model.WeightEntry)
		}
		entries[jobNo][tagNo] = model.WeightEntry{Weight: weight, HUID: huid}
	}
	return entries, eris.Wrap(rows.Err(), "postgres: weight entries iterate")
}

func (s *PostgresStore) UpdateHUIDCodes(ctx context.Context, jobNo string, codes map[string]string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin huid update")
	}
	defer tx.Rollback(ctx)

	updated := 0
	for tagNo, huid := range codes {
		if huid == "" {
			continue
		}
		ct, err := tx.Exec(ctx,
			`UPDATE tags SET huid_code = $1 WHERE job_no = $2 AND tag_no = $3`,
			huid, jobNo, tagNo,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: update huid for tag %s", tagNo)
		}
		updated += int(ct.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit huid update")
	}
	return updated, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind, firmID string) (*model.BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_runs (id, kind, firm_id, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(kind), firmID, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert batch run")
	}

	return &model.BatchRun{
		ID:        id,
		Kind:      kind,
		FirmID:    firmID,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, summary model.BatchSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(summary.Status()), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "batch_run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	var r model.BatchRun
	var summaryJSON []byte
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, firm_id, status, summary, started_at, finished_at FROM batch_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Kind, &r.FirmID, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch_run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	r.FinishedAt = finishedAt
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	query := `SELECT id, kind, firm_id, status, summary, started_at, finished_at FROM batch_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		var r model.BatchRun
		var summaryJSON []byte
		var finishedAt *time.Time

		if err := rows.Scan(&r.ID, &r.Kind, &r.FirmID, &r.Status, &summaryJSON, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch run")
		}
		if len(summaryJSON) > 0 {
			if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		r.FinishedAt = finishedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
