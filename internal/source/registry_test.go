package source

import (
	"reflect"
	"testing"
	"time"
)

func TestParseRegistry(t *testing.T) {
	data := []byte(`
sources:
  - id: courtfinder
    trust: 0.9
    phase: 0
    rate_per_sec: 2
    endpoint: "https://api.example.com/search?q={query}"
    decoder:
      kind: json
      records: results
      fields:
        name: name
  - id: townlistings
    trust: 0.5
    phase: 1
    cost: 0.1
    daily_limit: 100
`)
	registry, err := ParseRegistry(data)
	if err != nil {
		t.Fatalf("Expected registry to parse, got %v", err)
	}
	if registry.Len() != 2 {
		t.Fatalf("Expected 2 sources, got %d", registry.Len())
	}
	if !reflect.DeepEqual(registry.IDs(), []string{"courtfinder", "townlistings"}) {
		t.Errorf("Expected sorted ids, got %v", registry.IDs())
	}

	spec, ok := registry.Get("courtfinder")
	if !ok {
		t.Fatal("Expected courtfinder spec")
	}
	if spec.Trust != 0.9 || spec.RatePerSec != 2 {
		t.Errorf("Unexpected spec: %+v", spec)
	}
	if spec.Timeout != 15*time.Second {
		t.Errorf("Expected default timeout, got %v", spec.Timeout)
	}
}

func TestNewRegistry_Rejections(t *testing.T) {
	if _, err := NewRegistry([]Spec{{ID: ""}}); err == nil {
		t.Error("Expected rejection of empty source id")
	}
	if _, err := NewRegistry([]Spec{{ID: "a", Trust: 0.5}, {ID: "a", Trust: 0.5}}); err == nil {
		t.Error("Expected rejection of duplicate source id")
	}
	if _, err := NewRegistry([]Spec{{ID: "a", Trust: 1.5}}); err == nil {
		t.Error("Expected rejection of out-of-range trust")
	}
}

func TestBudgetLedger(t *testing.T) {
	ledger := NewBudgetLedger(10)
	paid := Spec{ID: "paid", Cost: 4}

	if !ledger.CanAfford(paid) {
		t.Fatal("Expected first call affordable")
	}
	if !ledger.Charge(paid) || !ledger.Charge(paid) {
		t.Fatal("Expected two charges within budget")
	}
	// 8 spent of 10: a third call at cost 4 exceeds the ceiling.
	if ledger.CanAfford(paid) {
		t.Error("Expected third call unaffordable")
	}
	if ledger.Charge(paid) {
		t.Error("Expected charge to refuse over-budget call")
	}
	if got := ledger.Remaining(); got != 2 {
		t.Errorf("Expected 2 remaining, got %v", got)
	}
}

func TestBudgetLedger_DailyLimit(t *testing.T) {
	ledger := NewBudgetLedger(0) // unlimited spend
	limited := Spec{ID: "limited", DailyLimit: 2}

	for i := 0; i < 2; i++ {
		if !ledger.Charge(limited) {
			t.Fatalf("Expected call %d within daily limit", i+1)
		}
	}
	if ledger.CanAfford(limited) {
		t.Error("Expected daily limit to block further calls")
	}
	if ledger.Charge(limited) {
		t.Error("Expected charge to refuse over-limit call")
	}
}

func TestBudgetLedger_FreeSourcesAlwaysAffordable(t *testing.T) {
	ledger := NewBudgetLedger(1)
	free := Spec{ID: "free", Cost: 0}
	for i := 0; i < 50; i++ {
		if !ledger.Charge(free) {
			t.Fatal("Expected free source never to exhaust the budget")
		}
	}
}
