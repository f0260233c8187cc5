package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/price-patrol/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default local mode so the tool works without a database server.
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
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	specs       TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	fitment     TEXT NOT NULL DEFAULT '',
	price       REAL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS product_sources (
	id             TEXT PRIMARY KEY,
	product_id     TEXT REFERENCES products(id),
	url            TEXT NOT NULL UNIQUE,
	retailer       TEXT NOT NULL DEFAULT '',
	sku            TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	expected_price REAL,
	last_price     REAL,
	last_checked   DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS price_history (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	run_id      TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'USD',
	observed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS patrol_runs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'running',
	mode            TEXT NOT NULL DEFAULT '',
	total           INTEGER NOT NULL DEFAULT 0,
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	prices_found    INTEGER NOT NULL DEFAULT 0,
	repaired        INTEGER NOT NULL DEFAULT 0,
	ai_calls        INTEGER NOT NULL DEFAULT 0,
	ai_cost_usd     REAL NOT NULL DEFAULT 0,
	breaker_tripped INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at     DATETIME
);

CREATE TABLE IF NOT EXISTS patrol_failures (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	url        TEXT NOT NULL,
	stage      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	class      TEXT NOT NULL DEFAULT 'permanent',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feed_syncs (
	id            TEXT PRIMARY KEY,
	feed          TEXT NOT NULL,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	rows_seen     INTEGER NOT NULL DEFAULT 0,
	rows_upserted INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sources_product_id ON product_sources(product_id);
CREATE INDEX IF NOT EXISTS idx_sources_active_checked ON product_sources(active, last_checked);
CREATE INDEX IF NOT EXISTS idx_history_product_observed ON price_history(product_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_source_observed ON price_history(source_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON patrol_runs(status);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON patrol_failures(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WorkList(ctx context.Context, filter WorkFilter) ([]model.WorkItem, error) {
	query := `SELECT s.id, s.product_id, s.url, s.retailer,
	          (p.id IS NOT NULL AND p.description <> '') AS known_attributes
	          FROM product_sources s
	          LEFT JOIN products p ON p.id = s.product_id
	          WHERE s.active = 1`
	args := []any{}

	if filter.Retailer != "" {
		query += ` AND s.retailer = ?`
		args = append(args, filter.Retailer)
	}
	if !filter.StaleBefore.IsZero() {
		query += ` AND (s.last_checked IS NULL OR s.last_checked < ?)`
		args = append(args, filter.StaleBefore.UTC())
	}
	query += ` ORDER BY s.last_checked ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: work list")
	}
	defer rows.Close()

	var items []model.WorkItem
	for rows.Next() {
		var w model.WorkItem
		var productID sql.NullString
		if err := rows.Scan(&w.SourceID, &productID, &w.URL, &w.Retailer, &w.KnownAttributes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan work item")
		}
		w.ProductID = productID.String
		items = append(items, w)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: work list iterate")
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, specs, image_url, fitment, price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Specs, p.ImageURL, p.Fitment, p.Price, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert product")
	}
	return &p, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, specs, image_url, fitment, price, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Specs, &p.ImageURL, &p.Fitment, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT id, name, description, specs, image_url, fitment, price, created_at, updated_at
	          FROM products WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+filter.Query+"%")
	}
	query += ` ORDER BY updated_at DESC`

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
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Specs, &p.ImageURL, &p.Fitment, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateProductAttributes(ctx context.Context, productID string, v *model.Verdict) error {
	sets := []string{}
	args := []any{}

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if v.Name != "" {
		add("name", v.Name)
	}
	if v.Description != "" {
		add("description", v.Description)
	}
	if v.Specs != "" {
		add("specs", v.Specs)
	}
	if v.ImageURL != "" {
		add("image_url", v.ImageURL)
	}
	if v.Fitment != "" {
		add("fitment", v.Fitment)
	}
	if v.Price != nil {
		add("price", *v.Price)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, productID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product attributes %s", productID)
	}
	return checkRowsAffected(res, "product", productID)
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src model.ProductSource) (*model.ProductSource, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	var productID any
	if src.ProductID != "" {
		productID = src.ProductID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_sources (id, product_id, url, retailer, sku, active, expected_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, productID, src.URL, src.Retailer, src.SKU, src.Active, src.ExpectedPrice, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert source")
	}
	return &src, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.ProductSource, error) {
	var src model.ProductSource
	var productID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, url, retailer, sku, active, expected_price, last_price, last_checked, created_at, updated_at
		 FROM product_sources WHERE id = ?`,
		id,
	).Scan(&src.ID, &productID, &src.URL, &src.Retailer, &src.SKU, &src.Active,
		&src.ExpectedPrice, &src.LastPrice, &src.LastChecked, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get source %s", id)
	}
	src.ProductID = productID.String
	return &src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, filter SourceFilter) ([]model.ProductSource, error) {
	query := `SELECT id, product_id, url, retailer, sku, active, expected_price, last_price, last_checked, created_at, updated_at
	          FROM product_sources WHERE active = 1`
	args := []any{}

	if filter.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY url ASC`

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
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.ProductSource
	for rows.Next() {
		var src model.ProductSource
		var productID sql.NullString
		if err := rows.Scan(&src.ID, &productID, &src.URL, &src.Retailer, &src.SKU, &src.Active,
			&src.ExpectedPrice, &src.LastPrice, &src.LastChecked, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		src.ProductID = productID.String
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) LinkSource(ctx context.Context, sourceID, productID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_sources SET product_id = ?, updated_at = ? WHERE id = ?`,
		productID, time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link source %s", sourceID)
	}
	return checkRowsAffected(res, "source", sourceID)
}

func (s *SQLiteStore) UpdateSourceTracking(ctx context.Context, sourceID string, price *float64, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_sources SET last_price = COALESCE(?, last_price), last_checked = ?, updated_at = ? WHERE id = ?`,
		price, checkedAt.UTC(), checkedAt.UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update source tracking %s", sourceID)
	}
	return checkRowsAffected(res, "source", sourceID)
}

func (s *SQLiteStore) UpsertFeedSources(ctx context.Context, feedRows []model.FeedRow) (int64, error) {
	if len(feedRows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert feed sources: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO product_sources (id, url, retailer, sku, active, expected_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET retailer = excluded.retailer, sku = excluded.sku,
		   expected_price = excluded.expected_price, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert feed sources: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, r := range feedRows {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), r.URL, r.Retailer, r.SKU, r.ExpectedPrice, now, now); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert feed source %s", r.URL)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert feed sources: commit")
	}
	return n, nil
}

func (s *SQLiteStore) AppendPricePoint(ctx context.Context, pp model.PricePoint) error {
	if pp.ID == "" {
		pp.ID = uuid.New().String()
	}
	if pp.Currency == "" {
		pp.Currency = "USD"
	}
	if pp.ObservedAt.IsZero() {
		pp.ObservedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (id, product_id, source_id, run_id, price, currency, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pp.ID, pp.ProductID, pp.SourceID, pp.RunID, pp.Price, pp.Currency, pp.ObservedAt,
	)
	return eris.Wrap(err, "sqlite: append price point")
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, productID string, limit int) ([]model.PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, source_id, run_id, price, currency, observed_at
		 FROM price_history WHERE product_id = ?
		 ORDER BY observed_at DESC LIMIT ?`,
		productID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: price history")
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var pp model.PricePoint
		if err := rows.Scan(&pp.ID, &pp.ProductID, &pp.SourceID, &pp.RunID, &pp.Price, &pp.Currency, &pp.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price point")
		}
		points = append(points, pp)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: price history iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.PatrolRun) (*model.PatrolRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patrol_runs (id, status, mode, total, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Mode, run.Total, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.PatrolRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	} else {
		run.FinishedAt = &finished
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE patrol_runs SET status = ?, succeeded = ?, failed = ?, prices_found = ?,
		 repaired = ?, ai_calls = ?, ai_cost_usd = ?, breaker_tripped = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Succeeded, run.Failed, run.PricesFound,
		run.Repaired, run.AICalls, run.AICostUSD, run.BreakerTripped, run.Error, finished,
		run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PatrolRun, error) {
	var r model.PatrolRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, mode, total, succeeded, failed, prices_found, repaired, ai_calls,
		 ai_cost_usd, breaker_tripped, error, started_at, finished_at
		 FROM patrol_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Status, &r.Mode, &r.Total, &r.Succeeded, &r.Failed, &r.PricesFound,
		&r.Repaired, &r.AICalls, &r.AICostUSD, &r.BreakerTripped, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PatrolRun, error) {
	query := `SELECT id, status, mode, total, succeeded, failed, prices_found, repaired, ai_calls,
	          ai_cost_usd, breaker_tripped, error, started_at, finished_at
	          FROM patrol_runs WHERE 1=1`
	args := []any{}

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

	var runs []model.PatrolRun
	for rows.Next() {
		var r model.PatrolRun
		if err := rows.Scan(&r.ID, &r.Status, &r.Mode, &r.Total, &r.Succeeded, &r.Failed, &r.PricesFound,
			&r.Repaired, &r.AICalls, &r.AICostUSD, &r.BreakerTripped, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, f model.FailureRecord) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	if f.Class == "" {
		f.Class = "permanent"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patrol_failures (id, run_id, source_id, url, stage, reason, class, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RunID, f.SourceID, f.URL, string(f.Stage), f.Reason, f.Class, f.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record failure")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, runID string) ([]model.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source_id, url, stage, reason, class, created_at
		 FROM patrol_failures WHERE run_id = ? ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var failures []model.FailureRecord
	for rows.Next() {
		var f model.FailureRecord
		if err := rows.Scan(&f.ID, &f.RunID, &f.SourceID, &f.URL, &f.Stage, &f.Reason, &f.Class, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

func (s *SQLiteStore) RecordFeedSync(ctx context.Context, fs model.FeedSync) error {
	if fs.ID == "" {
		fs.ID = uuid.New().String()
	}
	if fs.StartedAt.IsZero() {
		fs.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_syncs (id, feed, url, status, rows_seen, rows_upserted, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fs.ID, fs.Feed, fs.URL, string(fs.Status), fs.RowsSeen, fs.RowsUpserted, fs.Error, fs.StartedAt, fs.CompletedAt,
	)
	return eris.Wrap(err, "sqlite: record feed sync")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	staleCutoff := time.Now().UTC().Add(-staleWindow)
	err := s.db.QueryRowContext(ctx,
		`SELECT
		 (SELECT COUNT(*) FROM products),
		 (SELECT COUNT(*) FROM product_sources),
		 (SELECT COUNT(*) FROM product_sources WHERE active = 1),
		 (SELECT COUNT(*) FROM product_sources WHERE active = 1 AND (last_checked IS NULL OR last_checked < ?)),
		 (SELECT COUNT(*) FROM price_history)`,
		staleCutoff,
	).Scan(&st.Products, &st.Sources, &st.ActiveSources, &st.StaleSources, &st.PricePoints)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
