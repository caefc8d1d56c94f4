package market

import (
	"context"

	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// ReadTx expõe leituras sobre os mapeamentos da partição local:
// markets, stakes, subscribers, authorized_oracles, winning_outcomes.
type ReadTx interface {
	NextMarketID(ctx context.Context) (uint64, error)
	Market(ctx context.Context, id uint64) (Market, bool, error)
	Stake(ctx context.Context, key StakeKey) (uint64, error)
	// ScanStakes retorna os registros de (marketID, outcome, *) ordenados por nó
	ScanStakes(ctx context.Context, marketID uint64, outcome uint32) ([]StakeRecord, error)
	IsSubscriber(ctx context.Context, node NodeID) (bool, error)
	Subscribers(ctx context.Context) ([]NodeID, error)
	IsOracle(ctx context.Context, node NodeID) (bool, error)
	Oracles(ctx context.Context) ([]NodeID, error)
	WinningOutcome(ctx context.Context, marketID uint64) (uint32, bool, error)
	Instantiator(ctx context.Context) (NodeID, bool, error)
}

// Tx acumula as escritas de uma operação. Nada fica visível antes do commit.
type Tx interface {
	ReadTx
	SetNextMarketID(ctx context.Context, next uint64) error
	PutMarket(ctx context.Context, m Market) error
	PutStake(ctx context.Context, key StakeKey, amount uint64) error
	AddSubscriber(ctx context.Context, node NodeID) error
	AddOracle(ctx context.Context, node NodeID) error
	PutWinningOutcome(ctx context.Context, marketID uint64, outcome uint32) error
	SetInstantiator(ctx context.Context, node NodeID) error
	// Enqueue grava a mensagem no outbox na mesma transação
	Enqueue(ctx context.Context, env events.Envelope) error
}

// Store é o provedor de estado da partição. Update aplica fn atomicamente:
// se fn retornar erro, nenhuma escrita é persistida.
type Store interface {
	View(ctx context.Context, fn func(ReadTx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}
