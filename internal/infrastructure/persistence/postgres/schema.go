package postgres

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
    id                 TEXT PRIMARY KEY,
    encrypted_card_ref TEXT NOT NULL,
    last_four          TEXT NOT NULL,
    brand              TEXT NOT NULL,
    exp_month          INT  NOT NULL,
    exp_year           INT  NOT NULL,
    fingerprint        TEXT NOT NULL,
    kind               TEXT NOT NULL,
    used               BOOLEAN NOT NULL DEFAULT FALSE,
    revoked            BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL,
    expires_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tokens_fingerprint ON tokens (fingerprint);
CREATE INDEX IF NOT EXISTS idx_tokens_expires_at ON tokens (expires_at) WHERE kind = 'one_time';

CREATE TABLE IF NOT EXISTS authorizations (
    id              TEXT PRIMARY KEY,
    token_id        TEXT NOT NULL,
    amount_cents    BIGINT NOT NULL,
    currency        TEXT NOT NULL,
    status          TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    auth_code       TEXT,
    decline_code    TEXT,
    captured_cents  BIGINT NOT NULL DEFAULT 0,
    refunded_cents  BIGINT NOT NULL DEFAULT 0,
    card_ref_cipher TEXT,
    created_at      TIMESTAMPTZ NOT NULL,
    authorized_at   TIMESTAMPTZ,
    captured_at     TIMESTAMPTZ,
    voided_at       TIMESTAMPTZ,
    expires_at      TIMESTAMPTZ,
    version         BIGINT NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_authorizations_idempotency_key ON authorizations (idempotency_key);
CREATE INDEX IF NOT EXISTS idx_authorizations_expiry ON authorizations (expires_at)
    WHERE status = 'AUTHORIZED' AND captured_cents = 0;

CREATE TABLE IF NOT EXISTS refunds (
    id               TEXT PRIMARY KEY,
    authorization_id TEXT NOT NULL REFERENCES authorizations (id),
    amount_cents     BIGINT NOT NULL,
    currency         TEXT NOT NULL,
    idempotency_key  TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refunds_authorization_id ON refunds (authorization_id);

CREATE TABLE IF NOT EXISTS idempotency_records (
    key           TEXT PRIMARY KEY,
    request_hash  TEXT NOT NULL,
    status        TEXT NOT NULL,
    resource_id   TEXT,
    response_body BYTEA,
    error_code    TEXT,
    error_message TEXT,
    locked_at     TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires_at ON idempotency_records (expires_at);

CREATE TABLE IF NOT EXISTS webhook_endpoints (
    id          TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    url         TEXT NOT NULL,
    secret      TEXT NOT NULL,
    events      TEXT[] NOT NULL,
    enabled     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_events (
    id              TEXT PRIMARY KEY,
    endpoint_id     TEXT NOT NULL REFERENCES webhook_endpoints (id),
    event_type      TEXT NOT NULL,
    payload         BYTEA NOT NULL,
    status          TEXT NOT NULL,
    attempt_count   INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL,
    delivered_at    TIMESTAMPTZ,
    version         BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_due ON webhook_events (next_attempt_at)
    WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS webhook_delivery_attempts (
    id             TEXT PRIMARY KEY,
    event_id       TEXT NOT NULL REFERENCES webhook_events (id),
    attempt_number INT NOT NULL,
    http_status    INT,
    error_message  TEXT,
    attempted_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_webhook_delivery_attempts_event_id ON webhook_delivery_attempts (event_id);
`
