package store

const schema = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS accounts (
 id TEXT PRIMARY KEY,
 name TEXT NOT NULL UNIQUE,
 description TEXT,
 environment TEXT NOT NULL,
 taxes_percentage REAL NOT NULL DEFAULT 0,
 earnings_percentage REAL NOT NULL DEFAULT 0,
 account_type TEXT NOT NULL,
 parent_account_id TEXT REFERENCES accounts(id),
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS account_balances (
 account_id TEXT NOT NULL REFERENCES accounts(id),
 currency TEXT NOT NULL,
 total_balance TEXT NOT NULL,
 total_in_trade TEXT NOT NULL,
 total_available TEXT NOT NULL,
 taxed TEXT NOT NULL,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 PRIMARY KEY (account_id, currency)
);

CREATE TABLE IF NOT EXISTS transactions (
 id TEXT PRIMARY KEY,
 account_id TEXT NOT NULL REFERENCES accounts(id),
 currency TEXT NOT NULL,
 amount TEXT NOT NULL,
 category TEXT NOT NULL,
 trade_id TEXT REFERENCES trades(id),
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transactions_account_currency ON transactions(account_id, currency, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_trade ON transactions(trade_id);

CREATE TABLE IF NOT EXISTS trading_vehicles (
 id TEXT PRIMARY KEY,
 symbol TEXT NOT NULL UNIQUE,
 category TEXT NOT NULL,
 broker TEXT NOT NULL,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS orders (
 id TEXT PRIMARY KEY,
 broker_order_id TEXT,
 trading_vehicle_id TEXT NOT NULL REFERENCES trading_vehicles(id),
 currency TEXT NOT NULL,
 quantity INTEGER NOT NULL,
 unit_price TEXT NOT NULL,
 category TEXT NOT NULL,
 action TEXT NOT NULL,
 status TEXT NOT NULL,
 time_in_force TEXT NOT NULL,
 filled_quantity INTEGER NOT NULL DEFAULT 0,
 average_filled_price TEXT,
 submitted_at DATETIME,
 filled_at DATETIME,
 cancelled_at DATETIME,
 expired_at DATETIME,
 closed_at DATETIME,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_broker_order_id ON orders(broker_order_id);

CREATE TABLE IF NOT EXISTS trades (
 id TEXT PRIMARY KEY,
 account_id TEXT NOT NULL REFERENCES accounts(id),
 trading_vehicle_id TEXT NOT NULL REFERENCES trading_vehicles(id),
 category TEXT NOT NULL,
 currency TEXT NOT NULL,
 status TEXT NOT NULL,
 entry_order_id TEXT NOT NULL REFERENCES orders(id),
 target_order_id TEXT NOT NULL REFERENCES orders(id),
 safety_stop_order_id TEXT NOT NULL REFERENCES orders(id),
 thesis TEXT,
 sector TEXT,
 asset_class TEXT,
 context TEXT,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 deleted_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_trades_account_status ON trades(account_id, status);

CREATE TABLE IF NOT EXISTS trade_balances (
 trade_id TEXT PRIMARY KEY REFERENCES trades(id),
 currency TEXT NOT NULL,
 funding TEXT NOT NULL,
 capital_in_market TEXT NOT NULL,
 capital_out_market TEXT NOT NULL,
 taxed TEXT NOT NULL,
 total_performance TEXT NOT NULL,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rules (
 id TEXT PRIMARY KEY,
 account_id TEXT NOT NULL REFERENCES accounts(id),
 name TEXT NOT NULL,
 percentage REAL NOT NULL,
 level TEXT NOT NULL,
 active INTEGER NOT NULL DEFAULT 1,
 description TEXT,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS level_state (
 account_id TEXT PRIMARY KEY REFERENCES accounts(id),
 current_level INTEGER NOT NULL DEFAULT 3,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS level_changes (
 id TEXT PRIMARY KEY,
 account_id TEXT NOT NULL REFERENCES accounts(id),
 old_level INTEGER NOT NULL,
 new_level INTEGER NOT NULL,
 reason TEXT NOT NULL,
 trigger_type TEXT NOT NULL,
 at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS distribution_rules (
 account_id TEXT PRIMARY KEY REFERENCES accounts(id),
 earnings_percent REAL NOT NULL,
 tax_percent REAL NOT NULL,
 reinvestment_percent REAL NOT NULL,
 minimum_threshold TEXT NOT NULL,
 configuration_password_hash TEXT NOT NULL,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS distribution_history (
 id TEXT PRIMARY KEY,
 source_account_id TEXT NOT NULL REFERENCES accounts(id),
 currency TEXT NOT NULL,
 profit TEXT NOT NULL,
 earnings_amount TEXT NOT NULL,
 tax_amount TEXT NOT NULL,
 reinvestment_amount TEXT NOT NULL,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS broker_logs (
 id TEXT PRIMARY KEY,
 trade_id TEXT REFERENCES trades(id),
 operation TEXT NOT NULL,
 payload TEXT NOT NULL,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS risk_month_budgets (
 account_id TEXT NOT NULL REFERENCES accounts(id),
 currency TEXT NOT NULL,
 month_start DATETIME NOT NULL,
 budget TEXT NOT NULL,
 updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
 PRIMARY KEY (account_id, currency, month_start)
);

CREATE TABLE IF NOT EXISTS trade_grades (
 id TEXT PRIMARY KEY,
 trade_id TEXT NOT NULL REFERENCES trades(id),
 overall_score REAL NOT NULL,
 overall_grade TEXT NOT NULL,
 process_score REAL NOT NULL,
 risk_score REAL NOT NULL,
 execution_score REAL NOT NULL,
 documentation_score REAL NOT NULL,
 recommendations TEXT,
 created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (d *DB) migrate() error {
	_, err := d.SQL.Exec(schema)
	return err
}
