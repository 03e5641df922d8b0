// ledger/schema.go
package ledger

const Schema = `
CREATE TABLE IF NOT EXISTS balances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount REAL NOT NULL DEFAULT 0 CHECK (amount >= 0),
	UNIQUE (owner_id, currency)
);

CREATE TABLE IF NOT EXISTS transactions (
	tx_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount REAL NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	comment TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tx_owner_created ON transactions(owner_id, created_at);

CREATE TABLE IF NOT EXISTS adjustments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount REAL NOT NULL,
	reason TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adj_owner ON adjustments(owner_id, currency);
`
