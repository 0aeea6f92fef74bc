package plan

import (
	"errors"
	"math"
	"testing"
)

const usdcKey = AssetKey("erc20:USDC:0xaaa")

func addBeneficiary(t *testing.T, p *Plan, name string) Beneficiary {
	t.Helper()
	b, err := p.AddBeneficiary(Beneficiary{Name: name})
	if err != nil {
		t.Fatalf("add beneficiary %s: %v", name, err)
	}
	return b
}

func total(rows []Split) float64 {
	sum := 0.0
	for _, r := range rows {
		sum += r.Percent
	}
	return sum
}

func TestEvenSplitProperties(t *testing.T) {
	for n := 1; n <= 12; n++ {
		rows := evenSplit(n)
		if got := func() float64 {
			s := 0.0
			for _, v := range rows {
				s += v
			}
			return s
		}(); got != 100 {
			t.Fatalf("n=%d: total %v, want exactly 100", n, got)
		}
		floor := float64(100 / n)
		above := 0
		for i, v := range rows {
			if v < floor {
				t.Fatalf("n=%d row %d: %v below floor %v", n, i, v, floor)
			}
			if v > floor {
				above++
			}
		}
		if above > 1 {
			t.Fatalf("n=%d: %d rows above floor, at most one may carry the remainder", n, above)
		}
	}
}

func TestAddSplitEvenPair(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	addBeneficiary(t, p, "Bob")

	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)

	rows := p.Assignments[usdcKey]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Percent != 50 || rows[1].Percent != 50 {
		t.Fatalf("expected 50/50, got %v/%v", rows[0].Percent, rows[1].Percent)
	}
	if rows[0].BeneficiaryID != p.Beneficiaries[0].ID {
		t.Fatal("new rows should pre-select the first beneficiary")
	}
}

func TestAddBeneficiaryRedistributes(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	addBeneficiary(t, p, "Bob")
	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)

	addBeneficiary(t, p, "Carol")

	rows := p.Assignments[usdcKey]
	if len(rows) != 3 {
		t.Fatalf("expected one row per beneficiary, got %d", len(rows))
	}
	want := []float64{34, 33, 33}
	for i, r := range rows {
		if r.Percent != want[i] {
			t.Fatalf("row %d: got %v, want %v", i, r.Percent, want[i])
		}
		if r.BeneficiaryID != p.Beneficiaries[i].ID {
			t.Fatalf("row %d assigned to wrong beneficiary", i)
		}
	}
	if total(rows) != 100 {
		t.Fatalf("total %v", total(rows))
	}
}

func TestRemoveBeneficiaryDoesNotRenormalize(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	bob := addBeneficiary(t, p, "Bob")
	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)

	if !p.RemoveBeneficiary(bob.ID) {
		t.Fatal("remove should report true")
	}

	rows := p.Assignments[usdcKey]
	if len(rows) != 1 {
		t.Fatalf("expected bob's row stripped, got %d rows", len(rows))
	}
	if rows[0].Percent != 50 {
		t.Fatalf("remaining row must keep its percent, got %v", rows[0].Percent)
	}

	var verr *ValidationError
	err := p.Validate()
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Asset != usdcKey || math.Abs(verr.Total-50) > epsilon {
		t.Fatalf("wrong report: %+v", verr)
	}
}

func TestRemoveBeneficiaryDropsEmptiedAssets(t *testing.T) {
	p := New()
	alice := addBeneficiary(t, p, "Alice")
	p.AddSplit(usdcKey)

	p.RemoveBeneficiary(alice.ID)

	if _, ok := p.Assignments[usdcKey]; ok {
		t.Fatal("asset with no remaining rows should be unassigned")
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("empty plan must validate: %v", err)
	}
}

func TestValidateEmptyListsAlwaysValid(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	p.Assignments["erc20:WETH:0xbbb"] = nil

	if err := p.Validate(); err != nil {
		t.Fatalf("unassigned asset must be valid: %v", err)
	}
}

func TestValidateReportsOffendingAsset(t *testing.T) {
	p := New()
	alice := addBeneficiary(t, p, "Alice")
	p.AddSplit(usdcKey)
	if err := p.SetSplit(usdcKey, 0, alice.ID, 99, false); err != nil {
		t.Fatalf("set split: %v", err)
	}

	var verr *ValidationError
	if err := p.Validate(); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Asset != usdcKey || verr.Total != 99 {
		t.Fatalf("wrong report: %+v", verr)
	}

	if err := p.SetSplit(usdcKey, 0, alice.ID, 101, false); err != nil {
		t.Fatalf("set split: %v", err)
	}
	if err := p.Validate(); !errors.As(err, &verr) || verr.Total != 101 {
		t.Fatalf("expected total 101 report, got %v", err)
	}
}

func TestSetSplitManualThenRenormalize(t *testing.T) {
	p := New()
	alice := addBeneficiary(t, p, "Alice")
	bob := addBeneficiary(t, p, "Bob")
	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)

	// manual overrides stand as entered
	if err := p.SetSplit(usdcKey, 0, alice.ID, 70, false); err != nil {
		t.Fatalf("set split: %v", err)
	}
	if err := p.SetSplit(usdcKey, 1, bob.ID, 30, false); err != nil {
		t.Fatalf("set split: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("70/30 must validate: %v", err)
	}

	// the auto path rebalances and ignores the entered percent
	if err := p.SetSplit(usdcKey, 0, bob.ID, 7, true); err != nil {
		t.Fatalf("set split auto: %v", err)
	}
	rows := p.Assignments[usdcKey]
	if rows[0].Percent != 50 || rows[1].Percent != 50 {
		t.Fatalf("expected rebalanced 50/50, got %v/%v", rows[0].Percent, rows[1].Percent)
	}
}

func TestSetSplitRejectsUnknownBeneficiary(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	p.AddSplit(usdcKey)

	if err := p.SetSplit(usdcKey, 0, "nope", 100, false); err == nil {
		t.Fatal("expected unknown beneficiary error")
	}
}

func TestRemoveSplit(t *testing.T) {
	p := New()
	addBeneficiary(t, p, "Alice")
	addBeneficiary(t, p, "Bob")
	addBeneficiary(t, p, "Carol")
	// three beneficiaries, three rows at 34/33/33
	if got := len(p.Assignments[usdcKey]); got != 0 {
		t.Fatalf("no splits expected yet, got %d", got)
	}
	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)
	p.AddSplit(usdcKey)

	if err := p.RemoveSplit(usdcKey, 2); err != nil {
		t.Fatalf("remove split: %v", err)
	}
	rows := p.Assignments[usdcKey]
	if len(rows) != 2 || rows[0].Percent != 50 || rows[1].Percent != 50 {
		t.Fatalf("expected rebalanced pair, got %+v", rows)
	}

	if err := p.RemoveSplit(usdcKey, 5); err == nil {
		t.Fatal("expected out-of-range error")
	}

	if err := p.RemoveSplit(usdcKey, 0); err != nil {
		t.Fatalf("remove split: %v", err)
	}
	if err := p.RemoveSplit(usdcKey, 0); err != nil {
		t.Fatalf("remove split: %v", err)
	}
	if _, ok := p.Assignments[usdcKey]; ok {
		t.Fatal("removing the last row should unassign the asset")
	}
}

func TestWalletCapAndDuplicates(t *testing.T) {
	p := New()
	if _, err := p.AddWallet("0xAAA", ""); err != nil {
		t.Fatalf("add wallet: %v", err)
	}
	if _, err := p.AddWallet("0xaaa", ""); err == nil {
		t.Fatal("expected duplicate rejection (case-insensitive)")
	}
	for i := 1; i < maxWallets; i++ {
		if _, err := p.AddWallet(string(rune('b'+i))+"wallet", ""); err != nil {
			t.Fatalf("add wallet %d: %v", i, err)
		}
	}
	if _, err := p.AddWallet("0xoverflow", ""); err == nil {
		t.Fatal("expected wallet cap rejection")
	}
}
