package market

import "time"

// NodeID identifica um nó (partição de estado) na rede. Opaco, comparável.
type NodeID string

type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled" // reservado, nenhuma operação leva a ele
)

// Market é o registro autoritativo de um mercado no nó que o criou.
// len(Odds) == len(Outcomes) == len(TotalStaked) durante toda a vida do mercado.
type Market struct {
	ID             uint64    `json:"id"`
	Creator        string    `json:"creator"`
	Question       string    `json:"question"`
	Outcomes       []string  `json:"outcomes"`
	Odds           []float64 `json:"odds"`
	ResolutionTime time.Time `json:"resolution_time"`
	Status         Status    `json:"status"`
	TotalStaked    []uint64  `json:"total_staked"`
}

// Clone devolve uma cópia sem slices compartilhados
func (m Market) Clone() Market {
	c := m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.Odds = append([]float64(nil), m.Odds...)
	c.TotalStaked = append([]uint64(nil), m.TotalStaked...)
	return c
}

// StakeKey indexa o livro de apostas: (mercado, resultado, nó de origem)
type StakeKey struct {
	MarketID uint64 `json:"market_id"`
	Outcome  uint32 `json:"outcome"`
	Node     NodeID `json:"node"`
}

type StakeRecord struct {
	Node   NodeID `json:"node"`
	Amount uint64 `json:"amount"`
}

// Caller é a identidade autenticada fornecida pela plataforma a cada operação.
// Node é o nó de origem da chamada; Signer é a conta que assinou (pode faltar).
type Caller struct {
	Node   NodeID
	Signer string
}
