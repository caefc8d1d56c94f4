package postgres

import (
	"math"
	"strings"
	"testing"
)

func TestAmountsRoundTripBeyondInt64(t *testing.T) {
	in := []uint64{0, 150, math.MaxUint64}
	s := formatAmounts(in)
	if s[2] != "18446744073709551615" {
		t.Fatalf("formatted max = %q", s[2])
	}
	out, err := parseAmounts(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("amount[%d] = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestParseAmountsRejectsGarbage(t *testing.T) {
	if _, err := parseAmounts([]string{"12", "-1"}); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestSchemaDeclaresAllMappings(t *testing.T) {
	for _, table := range []string{"markets", "stakes", "subscribers", "authorized_oracles", "winning_outcomes", "outbox"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema missing table %s", table)
		}
	}
}
