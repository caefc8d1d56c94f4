package events

import (
	"testing"
	"time"
)

func TestEnvelopeDecode(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("BRT", -3*3600))

	env, err := NewEnvelope(KindOddsUpdate, "alice", "bob", OddsUpdate{MarketID: 3, Odds: []float64{0.3, 0.7}, SentimentScore: 10}, now)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.ID == "" || env.CreatedAt.Location() != time.UTC {
		t.Errorf("envelope = %+v", env)
	}
	msg, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, ok := msg.(*OddsUpdate)
	if !ok || u.MarketID != 3 || u.SentimentScore != 10 {
		t.Errorf("decoded = %#v", msg)
	}

	other, _ := NewEnvelope(KindOddsUpdate, "alice", "bob", OddsUpdate{}, now)
	if other.ID == env.ID {
		t.Error("message ids must be unique")
	}
}

func TestEnvelopeDecodeRejects(t *testing.T) {
	if _, err := (Envelope{Kind: "gossip", Payload: []byte(`{}`)}).Decode(); err == nil {
		t.Error("unknown kind accepted")
	}
	if _, err := (Envelope{Kind: KindPayoutNotice, Payload: []byte(`{"amount":"lots"}`)}).Decode(); err == nil {
		t.Error("malformed payload accepted")
	}
}
