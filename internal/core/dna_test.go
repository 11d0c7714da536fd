package core

import (
	"testing"

	"unitledger/pkg/domain"
)

func TestDeriveDNAIsDeterministicPerInput(t *testing.T) {
	seed := []byte("seed")
	a, err := DeriveDNA(seed, "alice", 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	again, _ := DeriveDNA(seed, "alice", 0)
	if a != again {
		t.Fatalf("same inputs gave %x and %x", a, again)
	}
	for name, other := range map[string]func() (domain.DNA, error){
		"caller": func() (domain.DNA, error) { return DeriveDNA(seed, "bob", 0) },
		"index":  func() (domain.DNA, error) { return DeriveDNA(seed, "alice", 1) },
		"seed":   func() (domain.DNA, error) { return DeriveDNA([]byte("other"), "alice", 0) },
	} {
		got, err := other()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got == a {
			t.Fatalf("changing %s did not change the dna", name)
		}
	}
}

func TestCombineDNATakesBitsBySelector(t *testing.T) {
	var sel, a, b domain.DNA
	for i := range sel {
		sel[i] = 0xF0
		a[i] = 0xAA
		b[i] = 0x55
	}
	child := CombineDNA(sel, a, b)
	for i, got := range child {
		if got != 0xA5 {
			t.Fatalf("byte %d = %#x, want 0xa5", i, got)
		}
	}

	var all domain.DNA
	for i := range all {
		all[i] = 0xFF
	}
	if CombineDNA(all, a, b) != a {
		t.Fatal("all-ones selector should copy parent a")
	}
	if CombineDNA(domain.DNA{}, a, b) != b {
		t.Fatal("zero selector should copy parent b")
	}
}
