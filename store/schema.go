package store

// JSON columns hold nested maps. Times are unix milliseconds (UTC).
const Schema = `
CREATE TABLE IF NOT EXISTS rule_sets (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	tag                 TEXT NOT NULL UNIQUE,
	period_start        INTEGER NOT NULL,
	period_end          INTEGER NOT NULL,
	base_rules          TEXT NOT NULL,
	market_overrides    TEXT NOT NULL DEFAULT '{}',
	emergency_overrides TEXT NOT NULL DEFAULT '{}',
	metadata            TEXT NOT NULL DEFAULT '{}',
	metrics             TEXT NOT NULL DEFAULT '{}',
	risk_bands          TEXT NOT NULL DEFAULT '{}',
	regime_snapshot     TEXT NOT NULL DEFAULT '{}',
	provenance          TEXT NOT NULL DEFAULT '{}',
	model_artifacts     TEXT NOT NULL DEFAULT '{}',
	feature_hash        TEXT NOT NULL DEFAULT '',
	mc_seed             INTEGER NOT NULL DEFAULT 0,
	is_active           INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_sets_single_active
	ON rule_sets(is_active) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS feature_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_set_id  INTEGER NOT NULL REFERENCES rule_sets(id) ON DELETE CASCADE,
	market       TEXT NOT NULL,
	feature_hash TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	UNIQUE(rule_set_id, market)
);
`
