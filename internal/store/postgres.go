package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Postgres is the primary Store.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// --- Snapshots ---

const snapshotColumns = `source, network, category, asset_symbol,
	supply_rate, borrow_rate, reward_rate, total_rate, tvl_usd, utilization_ratio,
	extra, observed_at, captured_at, day_bucket, updated_at`

func (p *Postgres) UpsertSnapshot(ctx context.Context, s *snapshot.Snapshot) error {
	extra := s.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (network, category, asset_symbol, day_bucket) DO UPDATE SET
			source = EXCLUDED.source,
			supply_rate = EXCLUDED.supply_rate,
			borrow_rate = EXCLUDED.borrow_rate,
			reward_rate = EXCLUDED.reward_rate,
			total_rate = EXCLUDED.total_rate,
			tvl_usd = EXCLUDED.tvl_usd,
			utilization_ratio = EXCLUDED.utilization_ratio,
			extra = EXCLUDED.extra,
			observed_at = EXCLUDED.observed_at,
			captured_at = EXCLUDED.captured_at,
			updated_at = EXCLUDED.updated_at`,
		s.Source, s.Network, s.Category, s.AssetSymbol,
		s.SupplyRate, s.BorrowRate, s.RewardRate, s.TotalRate, s.TVLUSD, s.UtilizationRatio,
		extra, s.ObservedAt, s.CapturedAt, s.DayBucket, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%s/%s: %w", s.Network, s.Category, s.AssetSymbol, err)
	}
	return nil
}

// where accumulates SQL predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) eqFold(column, value string) {
	if value != "" {
		w.add("lower("+column+") = lower($%d)", value)
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (p *Postgres) LatestSnapshots(ctx context.Context, f LatestFilter) ([]snapshot.Snapshot, error) {
	var w where
	w.eqFold("asset_symbol", f.Asset)
	w.eqFold("category", f.Category)
	w.eqFold("network", f.Network)
	if f.MinRate != nil {
		w.add("total_rate >= $%d", *f.MinRate)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT * FROM (
			SELECT DISTINCT ON (source, category, asset_symbol) `+snapshotColumns+`
			FROM snapshots`+w.String()+`
			ORDER BY source, category, asset_symbol, observed_at DESC, updated_at DESC
		) latest
		ORDER BY observed_at DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func (p *Postgres) SnapshotHistory(ctx context.Context, f HistoryFilter) ([]snapshot.Snapshot, error) {
	var w where
	w.eqFold("asset_symbol", f.Asset)
	w.eqFold("category", f.Category)
	w.eqFold("network", f.Network)
	w.eqFold("source", f.Source)
	if !f.From.IsZero() {
		w.add("observed_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("observed_at <= $%d", f.To)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots`+w.String()+` ORDER BY observed_at ASC, asset_symbol ASC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshot history: %w", err)
	}
	return collectSnapshots(rows)
}

func collectSnapshots(rows pgx.Rows) ([]snapshot.Snapshot, error) {
	defer rows.Close()

	out := make([]snapshot.Snapshot, 0)
	for rows.Next() {
		var s snapshot.Snapshot
		if err := rows.Scan(&s.Source, &s.Network, &s.Category, &s.AssetSymbol,
			&s.SupplyRate, &s.BorrowRate, &s.RewardRate, &s.TotalRate, &s.TVLUSD, &s.UtilizationRatio,
			&s.Extra, &s.ObservedAt, &s.CapturedAt, &s.DayBucket, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if len(s.Extra) == 0 {
			s.Extra = nil
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Distinct-value groupings ---

func (p *Postgres) NetworkGroups(ctx context.Context) ([]NetworkGroup, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT network, array_agg(DISTINCT source ORDER BY source)
		FROM snapshots GROUP BY network ORDER BY network`)
	if err != nil {
		return nil, fmt.Errorf("group networks: %w", err)
	}
	defer rows.Close()

	out := make([]NetworkGroup, 0)
	for rows.Next() {
		var g NetworkGroup
		if err := rows.Scan(&g.Network, &g.Sources); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (p *Postgres) CategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT category, array_agg(DISTINCT source ORDER BY source), count(DISTINCT asset_symbol)
		FROM snapshots GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("group categories: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryGroup, 0)
	for rows.Next() {
		var g CategoryGroup
		if err := rows.Scan(&g.Category, &g.Sources, &g.Assets); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (p *Postgres) AssetGroups(ctx context.Context) ([]AssetGroup, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT asset_symbol,
			array_agg(DISTINCT source ORDER BY source),
			array_agg(DISTINCT network ORDER BY network),
			array_agg(DISTINCT category ORDER BY category)
		FROM snapshots GROUP BY asset_symbol ORDER BY asset_symbol`)
	if err != nil {
		return nil, fmt.Errorf("group assets: %w", err)
	}
	defer rows.Close()

	out := make([]AssetGroup, 0)
	for rows.Next() {
		var g AssetGroup
		if err := rows.Scan(&g.Symbol, &g.Sources, &g.Networks, &g.Categories); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- Ingestion activity ---

func (p *Postgres) Record(ctx context.Context, rec snapshot.ActivityRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ingestion_activity
			(run_id, source, network, category, items_found, items_written, duration_ms, success, error_message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.RunID, rec.Source, rec.Network, rec.Category, rec.ItemsFound, rec.ItemsWritten,
		rec.DurationMs, rec.Success, rec.ErrorMessage, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("record activity for %s: %w", rec.Source, err)
	}
	return nil
}

// activityLimit binds limit <= 0 as NULL; LIMIT NULL returns every row.
func activityLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func (p *Postgres) RecentActivity(ctx context.Context, limit int) ([]snapshot.ActivityRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT run_id, source, network, category, items_found, items_written, duration_ms, success, error_message, occurred_at
		FROM ingestion_activity ORDER BY occurred_at DESC, id DESC LIMIT $1`, activityLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	out := make([]snapshot.ActivityRecord, 0)
	for rows.Next() {
		var r snapshot.ActivityRecord
		if err := rows.Scan(&r.RunID, &r.Source, &r.Network, &r.Category, &r.ItemsFound, &r.ItemsWritten,
			&r.DurationMs, &r.Success, &r.ErrorMessage, &r.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*Postgres)(nil)
