package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/price-patrol/internal/db"
	"github.com/sells-group/price-patrol/internal/model"
)

var _ Store = (*PostgresStore)(nil)

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
// faster execution of the per-item persistence path.
var preparedStatements = map[string]string{
	"get_source":             `SELECT id, product_id, url, retailer, sku, active, expected_price, last_price, last_checked, created_at, updated_at FROM product_sources WHERE id = $1`,
	"link_source":            `UPDATE product_sources SET product_id = $1, updated_at = $2 WHERE id = $3`,
	"update_source_tracking": `UPDATE product_sources SET last_price = COALESCE($1, last_price), last_checked = $2, updated_at = $2 WHERE id = $3`,
	"append_price_point":     `INSERT INTO price_history (id, product_id, source_id, run_id, price, currency, observed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"record_failure":         `INSERT INTO patrol_failures (id, run_id, source_id, url, stage, reason, class, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
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
// direct query access (feed ingestion bulk upserts).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	specs       TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	fitment     TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS product_sources (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id     TEXT REFERENCES products(id),
	url            TEXT NOT NULL UNIQUE,
	retailer       TEXT NOT NULL DEFAULT '',
	sku            TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT true,
	expected_price DOUBLE PRECISION,
	last_price     DOUBLE PRECISION,
	last_checked   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_history (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id  TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	run_id      TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'USD',
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	ai_cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	breaker_tripped BOOLEAN NOT NULL DEFAULT false,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS patrol_failures (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	url        TEXT NOT NULL,
	stage      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	class      TEXT NOT NULL DEFAULT 'permanent',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feed_syncs (
	id            TEXT PRIMARY KEY,
	feed          TEXT NOT NULL,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	rows_seen     INTEGER NOT NULL DEFAULT 0,
	rows_upserted INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sources_product_id ON product_sources(product_id);
CREATE INDEX IF NOT EXISTS idx_sources_active_checked ON product_sources(active, last_checked);
CREATE INDEX IF NOT EXISTS idx_history_product_observed ON price_history(product_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_source_observed ON price_history(source_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON patrol_runs(status);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON patrol_failures(run_id);
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

func (s *PostgresStore) WorkList(ctx context.Context, filter WorkFilter) ([]model.WorkItem, error) {
	query := `SELECT s.id, s.product_id, s.url, s.retailer,
	          (p.id IS NOT NULL AND p.description <> '') AS known_attributes
	          FROM product_sources s
	          LEFT JOIN products p ON p.id = s.product_id
	          WHERE s.active`
	args := []any{}
	argIdx := 1

	if filter.Retailer != "" {
		query += fmt.Sprintf(` AND s.retailer = $%d`, argIdx)
		args = append(args, filter.Retailer)
		argIdx++
	}
	if !filter.StaleBefore.IsZero() {
		query += fmt.Sprintf(` AND (s.last_checked IS NULL OR s.last_checked < $%d)`, argIdx)
		args = append(args, filter.StaleBefore)
		argIdx++
	}
	query += ` ORDER BY s.last_checked ASC NULLS FIRST`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: work list")
	}
	defer rows.Close()

	var items []model.WorkItem
	for rows.Next() {
		var w model.WorkItem
		var productID *string
		if err := rows.Scan(&w.SourceID, &productID, &w.URL, &w.Retailer, &w.KnownAttributes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan work item")
		}
		if productID != nil {
			w.ProductID = *productID
		}
		items = append(items, w)
	}
	return items, eris.Wrap(rows.Err(), "postgres: work list iterate")
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, description, specs, image_url, fitment, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Description, p.Specs, p.ImageURL, p.Fitment, p.Price, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert product")
	}
	return &p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, specs, image_url, fitment, price, created_at, updated_at
		 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Specs, &p.ImageURL, &p.Fitment, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT id, name, description, specs, image_url, fitment, price, created_at, updated_at
	          FROM products WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Query+"%")
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

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
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Specs, &p.ImageURL, &p.Fitment, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateProductAttributes(ctx context.Context, productID string, v *model.Verdict) error {
	sets := []string{}
	args := []any{}
	argIdx := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
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

	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d`,
		joinSets(sets), argIdx)
	args = append(args, productID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product attributes %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %s", productID)
	}
	return nil
}

func (s *PostgresStore) CreateSource(ctx context.Context, src model.ProductSource) (*model.ProductSource, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	var productID *string
	if src.ProductID != "" {
		productID = &src.ProductID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_sources (id, product_id, url, retailer, sku, active, expected_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		src.ID, productID, src.URL, src.Retailer, src.SKU, src.Active, src.ExpectedPrice, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert source")
	}
	return &src, nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.ProductSource, error) {
	var src model.ProductSource
	var productID *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, url, retailer, sku, active, expected_price, last_price, last_checked, created_at, updated_at
		 FROM product_sources WHERE id = $1`,
		id,
	).Scan(&src.ID, &productID, &src.URL, &src.Retailer, &src.SKU, &src.Active,
		&src.ExpectedPrice, &src.LastPrice, &src.LastChecked, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source %s", id)
	}
	if productID != nil {
		src.ProductID = *productID
	}
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, filter SourceFilter) ([]model.ProductSource, error) {
	query := `SELECT id, product_id, url, retailer, sku, active, expected_price, last_price, last_checked, created_at, updated_at
	          FROM product_sources WHERE active`
	args := []any{}
	argIdx := 1

	if filter.Retailer != "" {
		query += fmt.Sprintf(` AND retailer = $%d`, argIdx)
		args = append(args, filter.Retailer)
		argIdx++
	}
	query += ` ORDER BY url ASC`

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
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.ProductSource
	for rows.Next() {
		var src model.ProductSource
		var productID *string
		if err := rows.Scan(&src.ID, &productID, &src.URL, &src.Retailer, &src.SKU, &src.Active,
			&src.ExpectedPrice, &src.LastPrice, &src.LastChecked, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if productID != nil {
			src.ProductID = *productID
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) LinkSource(ctx context.Context, sourceID, productID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE product_sources SET product_id = $1, updated_at = $2 WHERE id = $3`,
		productID, time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link source %s", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", sourceID)
	}
	return nil
}

func (s *PostgresStore) UpdateSourceTracking(ctx context.Context, sourceID string, price *float64, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE product_sources SET last_price = COALESCE($1, last_price), last_checked = $2, updated_at = $2 WHERE id = $3`,
		price, checkedAt.UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update source tracking %s", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", sourceID)
	}
	return nil
}

func (s *PostgresStore) UpsertFeedSources(ctx context.Context, feedRows []model.FeedRow) (int64, error) {
	if len(feedRows) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(feedRows))
	for _, r := range feedRows {
		rows = append(rows, []any{
			uuid.New().String(), r.URL, r.Retailer, r.SKU, true, r.ExpectedPrice, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "product_sources",
		Columns:      []string{"id", "url", "retailer", "sku", "active", "expected_price", "created_at", "updated_at"},
		ConflictKeys: []string{"url"},
		UpdateCols:   []string{"retailer", "sku", "expected_price", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert feed sources")
	}
	return n, nil
}

func (s *PostgresStore) AppendPricePoint(ctx context.Context, pp model.PricePoint) error {
	if pp.ID == "" {
		pp.ID = uuid.New().String()
	}
	if pp.Currency == "" {
		pp.Currency = "USD"
	}
	if pp.ObservedAt.IsZero() {
		pp.ObservedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_history (id, product_id, source_id, run_id, price, currency, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pp.ID, pp.ProductID, pp.SourceID, pp.RunID, pp.Price, pp.Currency, pp.ObservedAt,
	)
	return eris.Wrap(err, "postgres: append price point")
}

func (s *PostgresStore) PriceHistory(ctx context.Context, productID string, limit int) ([]model.PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, source_id, run_id, price, currency, observed_at
		 FROM price_history WHERE product_id = $1
		 ORDER BY observed_at DESC LIMIT $2`,
		productID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: price history")
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var pp model.PricePoint
		if err := rows.Scan(&pp.ID, &pp.ProductID, &pp.SourceID, &pp.RunID, &pp.Price, &pp.Currency, &pp.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price point")
		}
		points = append(points, pp)
	}
	return points, eris.Wrap(rows.Err(), "postgres: price history iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.PatrolRun) (*model.PatrolRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO patrol_runs (id, status, mode, total, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), run.Mode, run.Total, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.PatrolRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	} else {
		run.FinishedAt = &finished
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE patrol_runs SET status = $1, succeeded = $2, failed = $3, prices_found = $4,
		 repaired = $5, ai_calls = $6, ai_cost_usd = $7, breaker_tripped = $8, error = $9, finished_at = $10
		 WHERE id = $11`,
		string(run.Status), run.Succeeded, run.Failed, run.PricesFound,
		run.Repaired, run.AICalls, run.AICostUSD, run.BreakerTripped, run.Error, finished,
		run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PatrolRun, error) {
	var r model.PatrolRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, mode, total, succeeded, failed, prices_found, repaired, ai_calls,
		 ai_cost_usd, breaker_tripped, error, started_at, finished_at
		 FROM patrol_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &r.Mode, &r.Total, &r.Succeeded, &r.Failed, &r.PricesFound,
		&r.Repaired, &r.AICalls, &r.AICostUSD, &r.BreakerTripped, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PatrolRun, error) {
	query := `SELECT id, status, mode, total, succeeded, failed, prices_found, repaired, ai_calls,
	          ai_cost_usd, breaker_tripped, error, started_at, finished_at
	          FROM patrol_runs WHERE true`
	args := []any{}
	argIdx := 1

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
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PatrolRun
	for rows.Next() {
		var r model.PatrolRun
		if err := rows.Scan(&r.ID, &r.Status, &r.Mode, &r.Total, &r.Succeeded, &r.Failed, &r.PricesFound,
			&r.Repaired, &r.AICalls, &r.AICostUSD, &r.BreakerTripped, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, f model.FailureRecord) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	if f.Class == "" {
		f.Class = "permanent"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO patrol_failures (id, run_id, source_id, url, stage, reason, class, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.RunID, f.SourceID, f.URL, string(f.Stage), f.Reason, f.Class, f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record failure")
}

func (s *PostgresStore) ListFailures(ctx context.Context, runID string) ([]model.FailureRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, source_id, url, stage, reason, class, created_at
		 FROM patrol_failures WHERE run_id = $1 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var failures []model.FailureRecord
	for rows.Next() {
		var f model.FailureRecord
		if err := rows.Scan(&f.ID, &f.RunID, &f.SourceID, &f.URL, &f.Stage, &f.Reason, &f.Class, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func (s *PostgresStore) RecordFeedSync(ctx context.Context, fs model.FeedSync) error {
	if fs.ID == "" {
		fs.ID = uuid.New().String()
	}
	if fs.StartedAt.IsZero() {
		fs.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feed_syncs (id, feed, url, status, rows_seen, rows_upserted, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fs.ID, fs.Feed, fs.URL, string(fs.Status), fs.RowsSeen, fs.RowsUpserted, fs.Error, fs.StartedAt, fs.CompletedAt,
	)
	return eris.Wrap(err, "postgres: record feed sync")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	staleCutoff := time.Now().UTC().Add(-staleWindow)
	err := s.pool.QueryRow(ctx,
		`SELECT
		 (SELECT COUNT(*) FROM products),
		 (SELECT COUNT(*) FROM product_sources),
		 (SELECT COUNT(*) FROM product_sources WHERE active),
		 (SELECT COUNT(*) FROM product_sources WHERE active AND (last_checked IS NULL OR last_checked < $1)),
		 (SELECT COUNT(*) FROM price_history)`,
		staleCutoff,
	).Scan(&st.Products, &st.Sources, &st.ActiveSources, &st.StaleSources, &st.PricePoints)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}

// joinSets joins SET clauses for dynamic updates.
func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
