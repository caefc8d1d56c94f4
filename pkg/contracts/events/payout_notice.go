package events

// PayoutNotice informa ao nó apostador o valor a receber de um mercado resolvido.
// Não é idempotente: o receptor deduplica pelo Envelope.ID.
type PayoutNotice struct {
	MarketID    uint64 `json:"market_id"`
	Amount      uint64 `json:"amount"`
	Beneficiary string `json:"beneficiary"`
}
