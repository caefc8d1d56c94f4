package payout

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

const schema = `
CREATE TABLE IF NOT EXISTS payout_notices (
    message_id  UUID PRIMARY KEY,
    sender      TEXT NOT NULL,
    market_id   BIGINT NOT NULL,
    beneficiary TEXT NOT NULL,
    amount      NUMERIC(20,0) NOT NULL,
    received_at TIMESTAMPTZ NOT NULL
);`

// Postgres implementa Inbox com idempotência por message_id
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate payout_notices: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, n Notice) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO payout_notices (message_id, sender, market_id, beneficiary, amount, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (message_id) DO NOTHING`,
		n.MessageID, n.Sender, int64(n.MarketID), n.Beneficiary,
		strconv.FormatUint(n.Amount, 10), n.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (p *Postgres) List(ctx context.Context) ([]Notice, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT message_id, sender, market_id, beneficiary, amount::text, received_at
		FROM payout_notices
		ORDER BY received_at, message_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notice
	for rows.Next() {
		var (
			n        Notice
			marketID int64
			amount   string
		)
		if err := rows.Scan(&n.MessageID, &n.Sender, &marketID, &n.Beneficiary, &amount, &n.ReceivedAt); err != nil {
			return nil, err
		}
		if n.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("payout %s amount: %w", n.MessageID, err)
		}
		n.MarketID = uint64(marketID)
		out = append(out, n)
	}
	return out, rows.Err()
}
