package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lastwish-io/estate-engine/internal/logging"
	"github.com/lastwish-io/estate-engine/internal/moralis"
)

type fakeIndexer struct {
	tokens   []moralis.TokenBalance
	nfts     []moralis.NFTHolding
	tokenErr error
	nftErr   error
}

func (f *fakeIndexer) ERC20Balances(context.Context, string, string) ([]moralis.TokenBalance, error) {
	return f.tokens, f.tokenErr
}

func (f *fakeIndexer) NFTHoldings(context.Context, string, string) ([]moralis.NFTHolding, error) {
	return f.nfts, f.nftErr
}

var owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestLoadNormalizesHoldings(t *testing.T) {
	idx := &fakeIndexer{
		tokens: []moralis.TokenBalance{
			{Symbol: "USDC", TokenAddress: "0xAAA0000000000000000000000000000000000001", Balance: "1500000", Decimals: 6},
		},
		nfts: []moralis.NFTHolding{
			{Name: "Azuki", TokenAddress: "0xBBB0000000000000000000000000000000000002", TokenID: "42"},
		},
	}
	r := NewRegistry(idx, logging.Discard())

	h, err := r.Load(context.Background(), owner, "eth")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if h.Partial || h.Demo {
		t.Fatalf("unexpected flags: %+v", h)
	}

	tok := h.Tokens[0]
	if string(tok.Key) != "erc20:USDC:0xaaa0000000000000000000000000000000000001" {
		t.Fatalf("token key: %s", tok.Key)
	}
	if tok.Balance != "1.5" {
		t.Fatalf("display balance: %s", tok.Balance)
	}

	nft := h.NFTs[0]
	if string(nft.Key) != "nft:0xbbb0000000000000000000000000000000000002:42" {
		t.Fatalf("nft key: %s", nft.Key)
	}
}

func TestLoadPartialFailure(t *testing.T) {
	idx := &fakeIndexer{
		nfts:     []moralis.NFTHolding{{Name: "Azuki", TokenAddress: "0xbbb", TokenID: "1"}},
		tokenErr: errors.New("boom"),
	}
	r := NewRegistry(idx, logging.Discard())

	h, err := r.Load(context.Background(), owner, "eth")
	if err != nil {
		t.Fatalf("one failing query must not fail the load: %v", err)
	}
	if !h.Partial {
		t.Fatal("expected partial flag")
	}
	if len(h.Tokens) != 0 || len(h.NFTs) != 1 {
		t.Fatalf("unexpected holdings: %+v", h)
	}
}

func TestLoadTotalFailure(t *testing.T) {
	idx := &fakeIndexer{tokenErr: errors.New("a"), nftErr: errors.New("b")}
	r := NewRegistry(idx, logging.Discard())

	if _, err := r.Load(context.Background(), owner, "eth"); err == nil {
		t.Fatal("expected error when both queries fail")
	}
}

func TestDemoIsMarked(t *testing.T) {
	h := Demo()
	if !h.Demo {
		t.Fatal("demo dataset must be marked")
	}
	if len(h.Tokens) != 3 || len(h.NFTs) != 3 {
		t.Fatalf("unexpected demo size: %d tokens, %d nfts", len(h.Tokens), len(h.NFTs))
	}
	// 2500000000000000000 raw at 18 decimals
	if h.Tokens[1].Balance != "2.5" {
		t.Fatalf("WETH display balance: %s", h.Tokens[1].Balance)
	}
}

func TestDisplayBalance(t *testing.T) {
	cases := []struct {
		raw      string
		decimals uint8
		want     string
	}{
		{"1000000000", 6, "1000"},
		{"1", 18, "0.000000000000000001"},
		{"0", 6, "0"},
		{"12345", 0, "12345"},
		{"garbage", 6, "0"},
	}
	for _, c := range cases {
		if got := DisplayBalance(c.raw, c.decimals); got != c.want {
			t.Errorf("DisplayBalance(%q, %d) = %q, want %q", c.raw, c.decimals, got, c.want)
		}
	}
}
