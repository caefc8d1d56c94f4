// Package messenger leva as mensagens do outbox de um nó até o inbox de
// outro e aplica o que chega no cache de odds e no inbox de pagamentos.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/radieske/prediction-market-node/pkg/contracts/events"
)

// Transport entrega um envelope ao nó Target. Sem garantia de exactly-once.
type Transport interface {
	Send(ctx context.Context, env events.Envelope) error
}

// EnvelopeHandler é quem processa um envelope no nó de destino
type EnvelopeHandler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

var ErrUnknownTarget = errors.New("unknown target node")

// Loopback entrega envelopes em processo, direto no handler do nó destino
type Loopback struct {
	mu    sync.RWMutex
	nodes map[string]EnvelopeHandler
}

func NewLoopback() *Loopback {
	return &Loopback{nodes: make(map[string]EnvelopeHandler)}
}

func (l *Loopback) Register(node string, h EnvelopeHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[node] = h
}

func (l *Loopback) Send(ctx context.Context, env events.Envelope) error {
	l.mu.RLock()
	h, ok := l.nodes[env.Target]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, env.Target)
	}
	return h.Handle(ctx, env)
}
