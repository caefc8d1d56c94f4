package topics

const (
	// Inbox de cada nó: InboxPrefix + "." + nodeID
	InboxPrefix = "market_inbox"

	// DLQs
	InboxDLQ = "market_inbox_dlq"

	// Canal Redis Pub/Sub com as odds aplicadas no cache local
	OddsBroadcast = "odds_updates_broadcast"
)

// Inbox retorna o tópico de entrada de mensagens de um nó
func Inbox(prefix, nodeID string) string {
	if prefix == "" {
		prefix = InboxPrefix
	}
	return prefix + "." + nodeID
}
