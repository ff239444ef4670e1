package storage

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
    name TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    key_id TEXT NOT NULL,
    digest TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS server_polynomials (
    bin INTEGER PRIMARY KEY,
    coeffs BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS client_blinded (
    idx INTEGER PRIMARY KEY,
    element INTEGER NOT NULL,
    x BLOB NOT NULL,
    y BLOB NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
    name TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    key_id TEXT NOT NULL,
    digest TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS server_polynomials (
    bin INTEGER PRIMARY KEY,
    coeffs BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS client_blinded (
    idx INTEGER PRIMARY KEY,
    element BIGINT NOT NULL,
    x BYTEA NOT NULL,
    y BYTEA NOT NULL
);
`
