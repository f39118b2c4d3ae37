package amount

import (
	"math/big"
	"testing"

	"github.com/m3rciful/tradebot/internal/errs"
)

func rat(t *testing.T, s string) *big.Rat {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		t.Fatalf("bad rat %q", s)
	}
	return r
}

func TestPercentFullBalanceIsExact(t *testing.T) {
	balance := rat(t, "7.123456789")
	got, err := Percent(balance, "", 100, 6)
	if err != nil {
		t.Fatalf("Percent: %v", err)
	}
	if got.UI.Cmp(balance) != 0 {
		t.Fatalf("100%% should keep the balance unchanged, got %s", got.UI.FloatString(9))
	}

	withRaw, err := Percent(balance, "7123456789", 100, 6)
	if err != nil {
		t.Fatalf("Percent: %v", err)
	}
	if withRaw.Base.String() != "7123456789" {
		t.Fatalf("raw base units should be used verbatim, got %s", withRaw.Base)
	}
}

func TestPercentFractionFloorsToGrid(t *testing.T) {
	balance := rat(t, "7.123456789")
	got, err := Percent(balance, "", 33, 6)
	if err != nil {
		t.Fatalf("Percent: %v", err)
	}
	// 7.123456789 * 0.33 * 10^6 = 2350740.74037
	if got.Base.String() != "2350740" {
		t.Fatalf("base = %s, want 2350740", got.Base)
	}
	if got.UI.Cmp(rat(t, "2.35074")) != 0 {
		t.Fatalf("ui = %s, want 2.35074", got.UI.FloatString(6))
	}
}

func TestPercentRejectsOutOfRange(t *testing.T) {
	for _, pct := range []int{0, -5, 101} {
		if _, err := Percent(big.NewRat(1, 1), "", pct, 9); !errs.Is(err, errs.CodeValidation) {
			t.Fatalf("pct %d: expected validation error, got %v", pct, err)
		}
	}
}

func TestManual(t *testing.T) {
	balance := rat(t, "2.5")
	cases := []struct {
		in      string
		base    string
		wantErr bool
	}{
		{in: "1", base: "1000000"},
		{in: "2.5", base: "2500000"},
		{in: "0.0000019", base: "1"},
		{in: "2.5000001", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0.0000001", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Manual(tc.in, balance, 6)
		if tc.wantErr {
			if !errs.Is(err, errs.CodeValidation) {
				t.Fatalf("%q: expected validation error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.in, err)
		}
		if got.Base.String() != tc.base {
			t.Fatalf("%q: base = %s, want %s", tc.in, got.Base, tc.base)
		}
	}
}

func TestToBaseUnitsFloors(t *testing.T) {
	if got := ToBaseUnits(rat(t, "1.999999999"), 6).String(); got != "1999999" {
		t.Fatalf("floor failed: %s", got)
	}
	if got := ToBaseUnits(rat(t, "0.5"), 9).String(); got != "500000000" {
		t.Fatalf("scale failed: %s", got)
	}
}

func TestFormatBase(t *testing.T) {
	if got := FormatBase(big.NewInt(1500000), 6); got != "1.5" {
		t.Fatalf("FormatBase = %s", got)
	}
	if got := FormatBase(big.NewInt(7), 0); got != "7" {
		t.Fatalf("FormatBase = %s", got)
	}
}
