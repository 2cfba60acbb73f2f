package economy

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{in: "5", want: 500},
		{in: "5.5", want: 550},
		{in: "5,50", want: 550},
		{in: " 0.01 ", want: 1},
		{in: "1000000000000", want: MaxAmount},
	}
	for _, tc := range tests {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) got=%d want=%d", tc.in, got, tc.want)
		}
	}

	invalid := []string{"", "0", "-1", "0.001", "abc", "1000000000000.01", "1e400"}
	for _, in := range invalid {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestAmountString(t *testing.T) {
	tests := []struct {
		in   Amount
		want string
	}{
		{in: 0, want: "0.00"},
		{in: 5, want: "0.05"},
		{in: Coins(25), want: "25.00"},
		{in: 123456, want: "1234.56"},
	}
	for _, tc := range tests {
		if got := tc.in.String(); got != tc.want {
			t.Fatalf("Amount(%d).String() got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestAmountFromDecimalRejectsFractionalCents(t *testing.T) {
	if _, err := AmountFromDecimal(decimal.RequireFromString("1.005")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected fractional cents to be rejected, got %v", err)
	}
	got, err := AmountFromDecimal(decimal.RequireFromString("12.50"))
	if err != nil || got != 1250 {
		t.Fatalf("got=%d err=%v want=1250", got, err)
	}
}

func TestAmountValid(t *testing.T) {
	if Amount(0).Valid() || Amount(-1).Valid() || (MaxAmount + 1).Valid() {
		t.Fatalf("expected out-of-range amounts to be invalid")
	}
	if !Amount(1).Valid() || !MaxAmount.Valid() {
		t.Fatalf("expected in-range amounts to be valid")
	}
}

func TestProfileClone(t *testing.T) {
	p := Profile{Balance: 10, Inventory: []string{"pao"}}
	c := p.Clone()
	c.Inventory[0] = "agua"
	if p.Inventory[0] != "pao" {
		t.Fatalf("clone shares inventory backing array")
	}
	if NewProfile().HasEarned() {
		t.Fatalf("new profile should not have earned")
	}
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	if c.Len() != 7 {
		t.Fatalf("default catalog size got=%d want=7", c.Len())
	}

	hits := map[string]string{
		"maca":            "maca",
		"Maçã":            "maca",
		"  MAÇÃ ":         "maca",
		"pão francês":     "pao",
		"ESPADA_LENDARIA": "espada_lendaria",
		"Espada Lendária": "espada_lendaria",
	}
	for query, wantID := range hits {
		item, ok := c.FindByNameOrID(query)
		if !ok || item.ID != wantID {
			t.Fatalf("FindByNameOrID(%q) got=%q ok=%v want=%q", query, item.ID, ok, wantID)
		}
	}

	for _, query := range []string{"", "maç", "espada", "dragão"} {
		if _, ok := c.FindByNameOrID(query); ok {
			t.Fatalf("FindByNameOrID(%q) should miss", query)
		}
	}

	if _, ok := c.ByID("MACA"); ok {
		t.Fatalf("ByID should be case-sensitive")
	}
	if item, ok := c.ByID("maca"); !ok || item.Price != Coins(12) {
		t.Fatalf("ByID(maca) got=%+v ok=%v", item, ok)
	}
}

func TestNewCatalogValidation(t *testing.T) {
	bad := [][]ShopItem{
		{{ID: "", Name: "X", Price: 1}},
		{{ID: "x", Name: "X", Price: 0}},
		{{ID: "x", Name: "X", Price: 1}, {ID: "y", Name: "x", Price: 1}},
		{{ID: "x", Name: "X", Price: 1}, {ID: "X", Name: "Y", Price: 1}},
	}
	for i, items := range bad {
		if _, err := NewCatalog(items); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
