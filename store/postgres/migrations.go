package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the xchpay store.
var Migrations = migrate.NewGroup("xchpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_xchpay_subscriptions",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS xchpay_subscriptions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    product_key TEXT NOT NULL,
    start_date  TIMESTAMPTZ NOT NULL,
    end_date    TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    activation  JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_xchpay_subs_user ON xchpay_subscriptions (user_id);
CREATE INDEX IF NOT EXISTS idx_xchpay_subs_status_end ON xchpay_subscriptions (status, end_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS xchpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_xchpay_invoices",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS xchpay_invoices (
    id               TEXT PRIMARY KEY,
    subscription_id  TEXT NOT NULL REFERENCES xchpay_subscriptions (id),
    issue_date       TIMESTAMPTZ NOT NULL,
    due_date         TIMESTAMPTZ NOT NULL,
    total_amount_due BIGINT NOT NULL,
    amount_paid      BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'xch',
    payment_address  TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'unpaid',
    paid_at          TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_xchpay_invoices_sub ON xchpay_invoices (subscription_id, issue_date);
CREATE INDEX IF NOT EXISTS idx_xchpay_invoices_status ON xchpay_invoices (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS xchpay_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_xchpay_payments",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS xchpay_payments (
    invoice_id          TEXT NOT NULL REFERENCES xchpay_invoices (id),
    coin_name           TEXT NOT NULL,
    amount              BIGINT NOT NULL,
    fee                 BIGINT NOT NULL DEFAULT 0,
    currency            TEXT NOT NULL DEFAULT 'xch',
    confirmed_at_height BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (invoice_id, coin_name)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS xchpay_payments`)
				return err
			},
		},
	)
}
