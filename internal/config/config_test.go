package config

import "testing"

func TestTargetChain(t *testing.T) {
	var p Provider
	if p.TargetChain() != nil {
		t.Fatal("zero target should mean no switch")
	}
	p.TargetChainID = 8453
	if got := p.TargetChain(); got == nil || got.Uint64() != 8453 {
		t.Fatalf("target = %v", got)
	}
}

func TestChainFor(t *testing.T) {
	cfg := &Config{Chains: map[uint64]Chain{
		1: {Name: "Ethereum Mainnet", Symbol: "ETH", IndexerName: "eth"},
	}}
	if ch, ok := cfg.ChainFor(1); !ok || ch.IndexerName != "eth" {
		t.Fatalf("chain = %+v ok=%v", ch, ok)
	}
	if _, ok := cfg.ChainFor(42); ok {
		t.Fatal("unknown chain reported as supported")
	}
}
