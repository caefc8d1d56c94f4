// Package payout registra os PayoutNotice recebidos por este nó.
// O aviso não é idempotente no fio; a deduplicação é pelo ID da mensagem.
package payout

import (
	"context"
	"time"
)

type Notice struct {
	MessageID   string    `json:"messageId"`
	Sender      string    `json:"sender"`
	MarketID    uint64    `json:"marketId"`
	Beneficiary string    `json:"beneficiary"`
	Amount      uint64    `json:"amount"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

type Inbox interface {
	// Record grava o aviso; retorna false se a mensagem já tinha sido registrada
	Record(ctx context.Context, n Notice) (bool, error)
	List(ctx context.Context) ([]Notice, error)
}
