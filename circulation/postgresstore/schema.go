package postgresstore

import (
	"context"
	"errors"

	"github.com/openlibra/circulation-engine/circulation"
)

// schemaDDL creates the circulation tables. The partial unique indexes
// enforce two ledger invariants in the database itself: at most one open
// loan per copy, and at most one pending reservation per patron and title.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS titles (
	id               uuid PRIMARY KEY,
	total_copies     integer NOT NULL DEFAULT 0,
	available_copies integer NOT NULL DEFAULT 0,
	version          bigint  NOT NULL DEFAULT 0,
	CONSTRAINT titles_available_in_range CHECK (available_copies >= 0 AND available_copies <= total_copies)
);

CREATE TABLE IF NOT EXISTS copies (
	id       uuid PRIMARY KEY,
	title_id uuid NOT NULL REFERENCES titles (id),
	state    text NOT NULL,
	version  bigint NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS copies_title_idx ON copies (title_id);

CREATE TABLE IF NOT EXISTS loans (
	id            uuid PRIMARY KEY,
	patron_id     uuid NOT NULL,
	copy_id       uuid NOT NULL REFERENCES copies (id),
	title_id      uuid NOT NULL REFERENCES titles (id),
	started_at    timestamptz NOT NULL,
	due_at        timestamptz NOT NULL,
	returned_at   timestamptz,
	state         text NOT NULL,
	renewal_count integer NOT NULL DEFAULT 0,
	version       bigint NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS loans_one_open_per_copy ON loans (copy_id) WHERE state <> 'Finalized';
CREATE INDEX IF NOT EXISTS loans_patron_idx ON loans (patron_id) WHERE state <> 'Finalized';

CREATE TABLE IF NOT EXISTS reservations (
	id           uuid PRIMARY KEY,
	patron_id    uuid NOT NULL,
	title_id     uuid NOT NULL REFERENCES titles (id),
	priority     integer NOT NULL DEFAULT 0,
	requested_at timestamptz NOT NULL,
	expires_at   timestamptz NOT NULL,
	held_copy_id uuid REFERENCES copies (id),
	state        text NOT NULL,
	version      bigint NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS reservations_one_pending_per_patron
	ON reservations (title_id, patron_id) WHERE state = 'Pending';
CREATE INDEX IF NOT EXISTS reservations_queue_idx
	ON reservations (title_id, priority DESC, requested_at ASC) WHERE state = 'Pending';

CREATE TABLE IF NOT EXISTS fines (
	id           uuid PRIMARY KEY,
	loan_id      uuid NOT NULL UNIQUE REFERENCES loans (id),
	patron_id    uuid NOT NULL,
	amount       numeric(12, 2) NOT NULL CHECK (amount > 0),
	reason       text NOT NULL,
	state        text NOT NULL,
	generated_at timestamptz NOT NULL,
	version      bigint NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS fines_patron_pending_idx ON fines (patron_id) WHERE state = 'Pending';

CREATE TABLE IF NOT EXISTS payments (
	id      uuid PRIMARY KEY,
	fine_id uuid NOT NULL REFERENCES fines (id),
	amount  numeric(12, 2) NOT NULL CHECK (amount > 0),
	method  text NOT NULL,
	paid_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS payments_fine_idx ON payments (fine_id);

CREATE TABLE IF NOT EXISTS sanctions (
	id        uuid PRIMARY KEY,
	patron_id uuid NOT NULL,
	type      text NOT NULL,
	reason    text NOT NULL,
	starts_at timestamptz NOT NULL,
	ends_at   timestamptz NOT NULL,
	state     text NOT NULL,
	version   bigint NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sanctions_patron_idx ON sanctions (patron_id) WHERE state = 'Active';

CREATE TABLE IF NOT EXISTS audit_outbox (
	seq          bigserial PRIMARY KEY,
	id           uuid NOT NULL UNIQUE,
	entity_type  text NOT NULL,
	entity_id    uuid NOT NULL,
	action       text NOT NULL,
	before_state jsonb,
	after_state  jsonb NOT NULL,
	actor_id     uuid NOT NULL,
	occurred_at  timestamptz NOT NULL,
	delivered_at timestamptz
);

CREATE INDEX IF NOT EXISTS audit_outbox_pending_idx ON audit_outbox (seq) WHERE delivered_at IS NULL;
`

// EnsureSchema creates the circulation tables and indexes if they do not
// exist yet. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return errors.Join(circulation.ErrStorageUnavailable, err)
	}

	return nil
}
