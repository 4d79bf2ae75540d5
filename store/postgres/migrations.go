package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"

	// Registers the "pg" executor with grove/migrate.
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
)

// Migrations is the grove migration group for the billing store.
var Migrations = migrate.NewGroup("billing")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_billing_customers",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_customers (
    id                     TEXT PRIMARY KEY,
    name                   TEXT NOT NULL,
    email                  TEXT NOT NULL,
    phone                  TEXT NOT NULL,
    region                 TEXT NOT NULL DEFAULT '',
    currency               TEXT NOT NULL DEFAULT '',
    payment_type           TEXT NOT NULL,
    tax_rate               BIGINT NOT NULL DEFAULT 0,
    current_balance        BIGINT NOT NULL DEFAULT 0,
    outstanding_balance    BIGINT NOT NULL DEFAULT 0,
    can_overuse_interviews BOOLEAN NOT NULL DEFAULT FALSE,
    interview_rate         BIGINT NOT NULL DEFAULT 0,
    assignments            JSONB NOT NULL DEFAULT '[]',
    change_request         JSONB,
    renewal_date           TIMESTAMPTZ,
    version                BIGINT NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_customers_email ON billing_customers (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_customers_phone ON billing_customers (phone);
CREATE INDEX IF NOT EXISTS idx_billing_customers_renewal ON billing_customers (renewal_date)
    WHERE renewal_date IS NOT NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_customers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_plans",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_plans (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    package       JSONB,
    pay_as_you_go JSONB,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_plans_active ON billing_plans (is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_transactions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_transactions (
    seq            BIGSERIAL,
    id             TEXT PRIMARY KEY,
    customer_id    TEXT NOT NULL REFERENCES billing_customers (id),
    type           TEXT NOT NULL,
    status         TEXT NOT NULL,
    direction      TEXT NOT NULL,
    price          BIGINT NOT NULL DEFAULT 0,
    tax            BIGINT NOT NULL DEFAULT 0,
    calculated_tax BIGINT NOT NULL DEFAULT 0,
    amount         BIGINT NOT NULL DEFAULT 0,
    note           TEXT NOT NULL DEFAULT '',
    balance_before BIGINT NOT NULL,
    balance_after  BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_transactions_customer ON billing_transactions (customer_id, seq);
CREATE INDEX IF NOT EXISTS idx_billing_transactions_unbilled ON billing_transactions (customer_id)
    WHERE status = 'unbilled';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_invoices",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_invoices (
    seq             BIGSERIAL,
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES billing_customers (id),
    kind            TEXT NOT NULL,
    status          TEXT NOT NULL,
    currency        TEXT NOT NULL DEFAULT '',
    issued_date     TIMESTAMPTZ NOT NULL,
    due_date        TIMESTAMPTZ NOT NULL,
    total_amount    BIGINT NOT NULL DEFAULT 0,
    total_price     BIGINT NOT NULL DEFAULT 0,
    total_tax       BIGINT NOT NULL DEFAULT 0,
    line_items      JSONB NOT NULL DEFAULT '[]',
    transaction_ids TEXT[] NOT NULL DEFAULT '{}',
    paid_at         TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_invoices_customer ON billing_invoices (customer_id, seq);
CREATE INDEX IF NOT EXISTS idx_billing_invoices_unpaid ON billing_invoices (customer_id)
    WHERE status = 'unpaid';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billing_payments",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billing_payments (
    seq         BIGSERIAL,
    id          TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL REFERENCES billing_customers (id),
    invoice_id  TEXT NOT NULL,
    amount      BIGINT NOT NULL,
    status      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billing_payments_customer ON billing_payments (customer_id, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billing_payments`)
				return err
			},
		},
	)
}
