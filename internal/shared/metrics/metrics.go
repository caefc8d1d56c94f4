package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors agrupa os contadores do nó. Cada binário registra os seus
// e liga os callbacks das peças (machine, relay, consumer).
type Collectors struct {
	Operations      *prometheus.CounterVec // op, result
	Enqueued        *prometheus.CounterVec // kind
	Sent            *prometheus.CounterVec // kind
	Received        *prometheus.CounterVec // kind
	Errors          *prometheus.CounterVec // stage
	Consumed        prometheus.Counter
	PayoutsRecorded prometheus.Counter
	Duplicates      prometheus.Counter
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_operations_total", Help: "operações executadas por tipo e resultado",
		}, []string{"op", "result"}),
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_messages_enqueued_total", Help: "mensagens gravadas no outbox",
		}, []string{"kind"}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_messages_sent_total", Help: "mensagens entregues ao transporte",
		}, []string{"kind"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_messages_received_total", Help: "mensagens recebidas do inbox",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_errors_total", Help: "erros por estágio",
		}, []string{"stage"}),
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_inbox_consumed_total", Help: "mensagens lidas do inbox Kafka",
		}),
		PayoutsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_payouts_recorded_total", Help: "payout notices registrados",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_payout_duplicates_total", Help: "payout notices descartados por duplicidade",
		}),
	}
	reg.MustRegister(c.Operations, c.Enqueued, c.Sent, c.Received, c.Errors, c.Consumed, c.PayoutsRecorded, c.Duplicates)
	return c
}

func (c *Collectors) OperationApplied(op string) { c.Operations.WithLabelValues(op, "applied").Inc() }

// OperationRejected usa o kind do erro de domínio como resultado
func (c *Collectors) OperationRejected(op, kind string) { c.Operations.WithLabelValues(op, kind).Inc() }

func (c *Collectors) MessagesEnqueued(kind string, n int) { c.Enqueued.WithLabelValues(kind).Add(float64(n)) }

func (c *Collectors) MessageSent(kind string) { c.Sent.WithLabelValues(kind).Inc() }

func (c *Collectors) MessageReceived(kind string) { c.Received.WithLabelValues(kind).Inc() }

func (c *Collectors) Error(stage string) { c.Errors.WithLabelValues(stage).Inc() }

func (c *Collectors) MessageConsumed() { c.Consumed.Inc() }
