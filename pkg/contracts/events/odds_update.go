package events

// OddsUpdate é enviado pelo nó dono do mercado para cada assinante
// quando um oráculo revisa as odds. Idempotente: last-write-wins.
type OddsUpdate struct {
	MarketID       uint64    `json:"market_id"`
	Odds           []float64 `json:"odds"`
	SentimentScore int32     `json:"sentiment_score"`
}
