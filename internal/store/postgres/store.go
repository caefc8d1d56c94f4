// Package postgres implementa market.Store sobre Postgres (lib/pq).
// Cada tabela corresponde a um mapeamento da partição do nó.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

//go:embed schema.sql
var schema string

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

// Migrate cria as tabelas se ainda não existirem
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// View abre uma transação somente leitura com snapshot consistente
func (s *Store) View(ctx context.Context, fn func(market.ReadTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()
	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Update trava a linha de contract_meta para serializar operações entre
// processos do mesmo nó e só faz commit se fn retornar nil.
func (s *Store) Update(ctx context.Context, fn func(market.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `SELECT 1 FROM contract_meta WHERE singleton FOR UPDATE`); err != nil {
		return fmt.Errorf("lock contract_meta: %w", err)
	}
	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// PendingMessages lê o outbox em ordem de inserção
func (s *Store) PendingMessages(ctx context.Context, limit int) ([]events.Envelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, sender, target, created_at, payload
		FROM outbox
		ORDER BY seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []events.Envelope
	for rows.Next() {
		var (
			e       events.Envelope
			kind    string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.Sender, &e.Target, &e.CreatedAt, &payload); err != nil {
			return nil, err
		}
		e.Kind = events.Kind(kind)
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ack remove as mensagens já entregues ao transporte
func (s *Store) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id::text = ANY($1)`, pq.Array(ids))
	return err
}

type tx struct{ tx *sql.Tx }

var _ market.Tx = (*tx)(nil)

func (t *tx) NextMarketID(ctx context.Context) (uint64, error) {
	var next int64
	if err := t.tx.QueryRowContext(ctx, `SELECT next_market_id FROM contract_meta WHERE singleton`).Scan(&next); err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (t *tx) Market(ctx context.Context, id uint64) (market.Market, bool, error) {
	var (
		m        market.Market
		outcomes pq.StringArray
		odds     pq.Float64Array
		totals   pq.StringArray
		resTime  sql.NullTime
		status   string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT creator, question, outcomes, odds, resolution_time, status, total_staked
		FROM markets WHERE id=$1`, int64(id)).
		Scan(&m.Creator, &m.Question, &outcomes, &odds, &resTime, &status, &totals)
	if err == sql.ErrNoRows {
		return market.Market{}, false, nil
	}
	if err != nil {
		return market.Market{}, false, err
	}
	staked, err := parseAmounts(totals)
	if err != nil {
		return market.Market{}, false, fmt.Errorf("market %d total_staked: %w", id, err)
	}
	m.ID = id
	m.Outcomes = []string(outcomes)
	m.Odds = []float64(odds)
	m.TotalStaked = staked
	m.Status = market.Status(status)
	if resTime.Valid {
		m.ResolutionTime = resTime.Time
	}
	return m, true, nil
}

func (t *tx) Stake(ctx context.Context, key market.StakeKey) (uint64, error) {
	var amount string
	err := t.tx.QueryRowContext(ctx, `
		SELECT amount::text FROM stakes
		WHERE market_id=$1 AND outcome_index=$2 AND node_id=$3`,
		int64(key.MarketID), int64(key.Outcome), string(key.Node)).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(amount, 10, 64)
}

func (t *tx) ScanStakes(ctx context.Context, marketID uint64, outcome uint32) ([]market.StakeRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT node_id, amount::text FROM stakes
		WHERE market_id=$1 AND outcome_index=$2
		ORDER BY node_id`, int64(marketID), int64(outcome))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.StakeRecord
	for rows.Next() {
		var (
			node   string
			amount string
		)
		if err := rows.Scan(&node, &amount); err != nil {
			return nil, err
		}
		v, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stake %s amount: %w", node, err)
		}
		out = append(out, market.StakeRecord{Node: market.NodeID(node), Amount: v})
	}
	return out, rows.Err()
}

func (t *tx) IsSubscriber(ctx context.Context, node market.NodeID) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM subscribers WHERE node_id=$1)`, string(node))
}

func (t *tx) Subscribers(ctx context.Context) ([]market.NodeID, error) {
	return t.nodes(ctx, `SELECT node_id FROM subscribers ORDER BY node_id`)
}

func (t *tx) IsOracle(ctx context.Context, node market.NodeID) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM authorized_oracles WHERE node_id=$1)`, string(node))
}

func (t *tx) Oracles(ctx context.Context) ([]market.NodeID, error) {
	return t.nodes(ctx, `SELECT node_id FROM authorized_oracles ORDER BY node_id`)
}

func (t *tx) WinningOutcome(ctx context.Context, marketID uint64) (uint32, bool, error) {
	var outcome int64
	err := t.tx.QueryRowContext(ctx, `SELECT outcome FROM winning_outcomes WHERE market_id=$1`, int64(marketID)).Scan(&outcome)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint32(outcome), true, nil
}

func (t *tx) Instantiator(ctx context.Context) (market.NodeID, bool, error) {
	var inst sql.NullString
	if err := t.tx.QueryRowContext(ctx, `SELECT instantiator FROM contract_meta WHERE singleton`).Scan(&inst); err != nil {
		return "", false, err
	}
	return market.NodeID(inst.String), inst.Valid, nil
}

func (t *tx) SetNextMarketID(ctx context.Context, next uint64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE contract_meta SET next_market_id=$1 WHERE singleton`, int64(next))
	return err
}

func (t *tx) PutMarket(ctx context.Context, m market.Market) error {
	var resTime sql.NullTime
	if !m.ResolutionTime.IsZero() {
		resTime = sql.NullTime{Time: m.ResolutionTime, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO markets
		  (id, creator, question, outcomes, odds, resolution_time, status, total_staked, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (id) DO UPDATE SET
		  odds         = EXCLUDED.odds,
		  status       = EXCLUDED.status,
		  total_staked = EXCLUDED.total_staked,
		  updated_at   = EXCLUDED.updated_at`,
		int64(m.ID), m.Creator, m.Question,
		pq.Array(m.Outcomes), pq.Array(m.Odds), resTime,
		string(m.Status), pq.Array(formatAmounts(m.TotalStaked)),
	)
	return err
}

func (t *tx) PutStake(ctx context.Context, key market.StakeKey, amount uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stakes (market_id, outcome_index, node_id, amount, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (market_id, outcome_index, node_id) DO UPDATE SET
		  amount     = EXCLUDED.amount,
		  updated_at = EXCLUDED.updated_at`,
		int64(key.MarketID), int64(key.Outcome), string(key.Node), strconv.FormatUint(amount, 10),
	)
	return err
}

func (t *tx) AddSubscriber(ctx context.Context, node market.NodeID) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO subscribers (node_id) VALUES ($1) ON CONFLICT DO NOTHING`, string(node))
	return err
}

func (t *tx) AddOracle(ctx context.Context, node market.NodeID) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO authorized_oracles (node_id) VALUES ($1) ON CONFLICT DO NOTHING`, string(node))
	return err
}

func (t *tx) PutWinningOutcome(ctx context.Context, marketID uint64, outcome uint32) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO winning_outcomes (market_id, outcome) VALUES ($1,$2)`,
		int64(marketID), int64(outcome))
	return err
}

func (t *tx) SetInstantiator(ctx context.Context, node market.NodeID) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE contract_meta SET instantiator=$1 WHERE singleton`, string(node))
	return err
}

func (t *tx) Enqueue(ctx context.Context, env events.Envelope) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox (id, kind, sender, target, created_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		env.ID, string(env.Kind), env.Sender, env.Target, env.CreatedAt, string(env.Payload),
	)
	return err
}

func (t *tx) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, q, args...).Scan(&ok)
	return ok, err
}

func (t *tx) nodes(ctx context.Context, q string) ([]market.NodeID, error) {
	rows, err := t.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.NodeID
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, market.NodeID(n))
	}
	return out, rows.Err()
}

// formatAmounts/parseAmounts convertem uint64 <-> NUMERIC em texto;
// database/sql não aceita uint64 com o bit alto ligado.
func formatAmounts(v []uint64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = strconv.FormatUint(x, 10)
	}
	return out
}

func parseAmounts(v []string) ([]uint64, error) {
	out := make([]uint64, len(v))
	for i, s := range v {
		x, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
