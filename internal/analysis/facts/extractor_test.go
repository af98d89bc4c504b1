package facts

import "testing"

func TestExtractBudgetAndProduct(t *testing.T) {
	f := Extract("I need a laptop for $500")
	if f.ProductInterest != "laptop" {
		t.Fatalf("expected laptop interest, got %q", f.ProductInterest)
	}
	if f.Budget == nil || *f.Budget != 500 {
		t.Fatalf("expected budget 500, got %v", f.Budget)
	}
	if f.OrderRelated {
		t.Fatal("did not expect order flag")
	}
}

func TestExtractOrderRelated(t *testing.T) {
	f := Extract("order status please")
	data := f.Map()
	if data[KeyOrderRelated] != true {
		t.Fatalf("expected order_related=true, got %+v", data)
	}
	if _, ok := data[KeyProductInterest]; ok {
		t.Fatalf("expected no product interest, got %+v", data)
	}
	if _, ok := data[KeyBudget]; ok {
		t.Fatalf("expected no budget, got %+v", data)
	}
}

func TestExtractLaterKeywordWins(t *testing.T) {
	if got := Extract("my new smartphone").ProductInterest; got != "smartphone" {
		t.Fatalf("expected smartphone, got %q", got)
	}
	if got := Extract("a shirt and some coffee").ProductInterest; got != "coffee" {
		t.Fatalf("expected coffee, got %q", got)
	}
}

func TestExtractNothing(t *testing.T) {
	cases := []string{"", "hello there", "what a lovely day", "$"}
	for _, utterance := range cases {
		if f := Extract(utterance); !f.Empty() {
			t.Fatalf("utterance %q: expected empty facts, got %+v", utterance, f)
		}
	}
}

func TestExtractOverflowBudgetIgnored(t *testing.T) {
	f := Extract("$99999999999999999999999 laptop")
	if f.Budget != nil {
		t.Fatalf("expected overflow budget to be ignored, got %d", *f.Budget)
	}
	if f.ProductInterest != "laptop" {
		t.Fatalf("expected laptop interest, got %q", f.ProductInterest)
	}
}
