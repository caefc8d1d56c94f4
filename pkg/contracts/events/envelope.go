package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOddsUpdate   Kind = "odds_update"
	KindPayoutNotice Kind = "payout_notice"
)

// Envelope é o formato de fio de toda mensagem entre nós.
// Sender é autenticado pela camada de transporte antes do handler rodar.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Sender    string          `json:"sender"`
	Target    string          `json:"target"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope serializa o payload e atribui um ID único à mensagem
func NewEnvelope(kind Kind, sender, target string, payload any, now time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    sender,
		Target:    target,
		CreatedAt: now.UTC(),
		Payload:   b,
	}, nil
}

// Decode interpreta o payload conforme o Kind e retorna *OddsUpdate ou *PayoutNotice
func (e Envelope) Decode() (any, error) {
	switch e.Kind {
	case KindOddsUpdate:
		var v OddsUpdate
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode odds_update: %w", err)
		}
		return &v, nil
	case KindPayoutNotice:
		var v PayoutNotice
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode payout_notice: %w", err)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", e.Kind)
	}
}
