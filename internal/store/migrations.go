package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id BIGSERIAL PRIMARY KEY,
    source TEXT NOT NULL,
    network TEXT NOT NULL,
    category TEXT NOT NULL,
    asset_symbol TEXT NOT NULL,
    supply_rate DOUBLE PRECISION,
    borrow_rate DOUBLE PRECISION,
    reward_rate DOUBLE PRECISION,
    total_rate DOUBLE PRECISION,
    tvl_usd DOUBLE PRECISION,
    utilization_ratio DOUBLE PRECISION,
    extra JSONB NOT NULL DEFAULT '{}'::jsonb,
    observed_at TIMESTAMPTZ NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL,
    day_bucket TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(network, category, asset_symbol, day_bucket)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_latest
    ON snapshots (source, category, asset_symbol, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_observed_at
    ON snapshots (observed_at);

CREATE TABLE IF NOT EXISTS ingestion_activity (
    id BIGSERIAL PRIMARY KEY,
    run_id TEXT NOT NULL,
    source TEXT NOT NULL,
    network TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    items_found INT NOT NULL DEFAULT 0,
    items_written INT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    success BOOLEAN NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingestion_activity_occurred
    ON ingestion_activity (occurred_at DESC);
`

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, migrationSQL)
	return err
}
