package journal

// Times are unix milliseconds (UTC). Decimals are stored as TEXT so they
// round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	instrument   TEXT NOT NULL,
	side         TEXT NOT NULL,
	size         TEXT NOT NULL,
	entry_price  TEXT NOT NULL,
	stop_loss    TEXT NOT NULL,
	take_profit  TEXT NOT NULL,
	risk_pct     REAL NOT NULL,
	rule_set     TEXT NOT NULL DEFAULT '',
	open_time    INTEGER NOT NULL,
	exit_price   TEXT,
	close_time   INTEGER,
	realized_pct REAL,
	outcome      TEXT,
	reason       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(instrument) WHERE close_time IS NULL;

CREATE TABLE IF NOT EXISTS decisions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	time        INTEGER NOT NULL,
	instrument  TEXT NOT NULL,
	action      TEXT NOT NULL,
	blocked     INTEGER NOT NULL,
	confidence  TEXT NOT NULL,
	reasons     TEXT NOT NULL,
	rule_set    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);
`
