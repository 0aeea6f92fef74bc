package store

import (
	"testing"

	"github.com/lastwish-io/estate-engine/internal/logging"
)

type record struct {
	Name string `json:"name"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := s.Save(EntityOwner, "0xAbC", record{Name: "alice"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out record
	// keys are case-insensitive on the account part
	ok, err := s.Load(EntityOwner, "0xABC", &out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || out.Name != "alice" {
		t.Fatalf("expected alice record, got ok=%v out=%+v", ok, out)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	s, err := New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var out record
	ok, err := s.Load(EntityOwner, "0xabc", &out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expected no record")
	}
}

func TestResetAccountLeavesOtherAccounts(t *testing.T) {
	s, err := New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := s.Save(EntityOwner, "0xaaa", record{Name: "a"}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := s.Save(EntityOwner, "0xbbb", record{Name: "b"}); err != nil {
		t.Fatalf("save b: %v", err)
	}

	if err := s.ResetAccount("0xAAA"); err != nil {
		t.Fatalf("reset account: %v", err)
	}

	var out record
	if ok, _ := s.Load(EntityOwner, "0xaaa", &out); ok {
		t.Fatal("account a should be gone")
	}
	if ok, _ := s.Load(EntityOwner, "0xbbb", &out); !ok || out.Name != "b" {
		t.Fatal("account b should survive")
	}
}

func TestResetAllClearsNamespace(t *testing.T) {
	s, err := New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, entity := range []string{EntityOwner, EntityBeneficiaries, EntityAssignments, EntityWallets} {
		if err := s.Save(entity, "0xaaa", record{Name: "x"}); err != nil {
			t.Fatalf("save %s: %v", entity, err)
		}
	}

	if err := s.ResetAll(); err != nil {
		t.Fatalf("reset all: %v", err)
	}

	var out record
	for _, entity := range []string{EntityOwner, EntityBeneficiaries, EntityAssignments, EntityWallets} {
		if ok, _ := s.Load(entity, "0xaaa", &out); ok {
			t.Fatalf("%s should be gone", entity)
		}
	}
}
