package navi

import "testing"

func TestAssertAddress(t *testing.T) {
	valid := "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	if err := AssertAddress(valid); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	for _, bad := range []string{
		"",
		"0x123",
		"ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd",
		"0x" + "zz12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
	} {
		if err := AssertAddress(bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
}

func TestNormalizeCoinType(t *testing.T) {
	if got := NormalizeCoinType("2::sui::SUI"); got != "0x2::sui::SUI" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeCoinType("  0x2::sui::SUI "); got != "0x2::sui::SUI" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeCoinType(""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestPoolSummaryAppendsUnits(t *testing.T) {
	pool := Pool{ID: 3, Symbol: "USDT", BorrowAPY: "8.5", SupplyAPY: "3.1", Price: "0.9998"}
	s := pool.Summary()
	if s.BorrowAPY != "8.5%" || s.SupplyAPY != "3.1%" || s.Price != "0.9998USD" {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestPositionUnitsTolerateGarbage(t *testing.T) {
	p := Position{SupplyBalance: "not-a-number", BorrowBalance: "-5"}
	if p.SupplyUnits().Sign() != 0 || p.BorrowUnits().Sign() != 0 {
		t.Fatalf("garbage balances should read as zero: %+v", p)
	}
}
