// Package oddscache guarda as odds recebidas de outros nós, chaveadas por
// (nó remetente, mercado). Escritas seguem last-write-wins pelo timestamp
// do envelope.
package oddscache

import (
	"context"
	"strconv"
	"time"
)

// Entry é o que fica no cache e o que vai para o broadcast do stream
type Entry struct {
	Node      string    `json:"node"`
	MarketID  uint64    `json:"marketId"`
	Odds      []float64 `json:"odds"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key identifica o par (nó, mercado) no cache e nas assinaturas do stream
func (e Entry) Key() string { return Key(e.Node, e.MarketID) }

func Key(node string, marketID uint64) string {
	return node + ":" + strconv.FormatUint(marketID, 10)
}

type Cache interface {
	// Set aplica a entrada se não for mais antiga que a atual; retorna se aplicou
	Set(ctx context.Context, e Entry) (bool, error)
	Get(ctx context.Context, node string, marketID uint64) (Entry, bool, error)
}
