package persist

// schema is applied on every open via CREATE TABLE IF NOT EXISTS, so
// opening an existing database is idempotent. Column-adding changes
// land in migrations.go instead of being edited in here, the same
// split the teacher's storage package uses between initSchema and
// runMigrations.
const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,                    -- 'full' or 'view_only'
	view_private_key BLOB,                 -- set for view_only accounts too; the scanner needs it
	view_public_key BLOB NOT NULL,
	spend_private_key BLOB,                -- NULL for view_only accounts
	spend_public_key BLOB NOT NULL,
	key_derivation_version INTEGER NOT NULL DEFAULT 2,
	encrypted_entropy BLOB,                -- Argon2id+AES-256-GCM sealed root entropy
	entropy_salt BLOB,
	entropy_nonce BLOB,
	next_subaddress_index INTEGER NOT NULL DEFAULT 2,
	first_block_index INTEGER NOT NULL DEFAULT 0,
	next_block_index INTEGER NOT NULL DEFAULT 0,
	fog_enabled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subaddresses (
	account_id TEXT NOT NULL,
	subaddress_index INTEGER NOT NULL,
	public_address_b58 TEXT NOT NULL,
	spend_public_key BLOB NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (account_id, subaddress_index),
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_subaddresses_b58 ON subaddresses(public_address_b58);

CREATE TABLE IF NOT EXISTS txos (
	txo_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	subaddress_index INTEGER,              -- the scanner's matched index; may be >= the account's next_subaddress_index until assigned (orphaned)
	public_key BLOB NOT NULL,
	target_key BLOB NOT NULL,
	key_image BLOB,                        -- NULL for view-only-derived or unspendable txos
	value INTEGER NOT NULL,
	token_id INTEGER NOT NULL,
	block_index INTEGER,                   -- NULL until observed in the ledger
	spent_block_index INTEGER,             -- NULL until its key image is observed spent
	received_confirmation_height INTEGER,
	shared_secret BLOB,
	memo BLOB,
	is_secreted INTEGER NOT NULL DEFAULT 0, -- minted for an external recipient; account_id is the sender, not an owner
	created_at INTEGER NOT NULL,
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_txos_account ON txos(account_id);
CREATE INDEX IF NOT EXISTS idx_txos_key_image ON txos(key_image);
CREATE INDEX IF NOT EXISTS idx_txos_public_key ON txos(public_key);
CREATE INDEX IF NOT EXISTS idx_txos_account_token ON txos(account_id, token_id);

CREATE TABLE IF NOT EXISTS transaction_logs (
	transaction_log_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	token_id INTEGER NOT NULL,
	fee INTEGER NOT NULL,
	tombstone_block_index INTEGER NOT NULL,
	submitted_block_index INTEGER,         -- NULL until submitted
	finalized_block_index INTEGER,         -- NULL until observed finalized
	failed INTEGER NOT NULL DEFAULT 0,
	comment TEXT NOT NULL DEFAULT '',
	raw_transaction BLOB,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_txlogs_account ON transaction_logs(account_id);

CREATE TABLE IF NOT EXISTS transaction_input_txos (
	transaction_log_id TEXT NOT NULL,
	txo_id TEXT NOT NULL,
	PRIMARY KEY (transaction_log_id, txo_id),
	FOREIGN KEY (transaction_log_id) REFERENCES transaction_logs(transaction_log_id),
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id)
);

CREATE TABLE IF NOT EXISTS transaction_output_txos (
	transaction_log_id TEXT NOT NULL,
	txo_id TEXT NOT NULL,
	recipient_public_address_b58 TEXT NOT NULL,
	is_change INTEGER NOT NULL DEFAULT 0,
	confirmation_number BLOB,
	PRIMARY KEY (transaction_log_id, txo_id),
	FOREIGN KEY (transaction_log_id) REFERENCES transaction_logs(transaction_log_id),
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id)
);

CREATE TABLE IF NOT EXISTS memos (
	txo_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	address_hash BLOB,
	payment_intent_id INTEGER,
	payment_request_id INTEGER,
	num_recipients INTEGER,
	fee INTEGER,
	total_outlay INTEGER,
	hmac BLOB,
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id)
);

CREATE TABLE IF NOT EXISTS gift_codes (
	gift_code_b58 TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	txo_id TEXT NOT NULL,
	value INTEGER NOT NULL,
	token_id INTEGER NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	claimed_block_index INTEGER,           -- NULL until claimed
	created_at INTEGER NOT NULL,
	FOREIGN KEY (account_id) REFERENCES accounts(account_id),
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	idempotency_key TEXT PRIMARY KEY,
	transaction_log_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`
