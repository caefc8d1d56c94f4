package payout

import (
	"context"
	"testing"
)

func TestMemoryDeduplicatesByMessageID(t *testing.T) {
	ctx := context.Background()
	in := NewMemory()

	n := Notice{MessageID: "m-1", Sender: "alice", MarketID: 0, Beneficiary: "bob", Amount: 600}
	if ok, err := in.Record(ctx, n); err != nil || !ok {
		t.Fatalf("first record: %v %v", ok, err)
	}
	if ok, err := in.Record(ctx, n); err != nil || ok {
		t.Fatalf("duplicate record: applied=%v err=%v", ok, err)
	}

	// mesmo conteúdo, mensagem diferente: conta de novo
	n.MessageID = "m-2"
	if ok, _ := in.Record(ctx, n); !ok {
		t.Fatal("distinct message id should be recorded")
	}

	list, _ := in.List(ctx)
	if len(list) != 2 {
		t.Fatalf("notices = %d, want 2", len(list))
	}
	list[0].Amount = 0
	again, _ := in.List(ctx)
	if again[0].Amount != 600 {
		t.Error("List must return a copy")
	}
}
