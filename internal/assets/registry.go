// Package assets fetches the holdings of the active account and normalizes
// them to the asset keys the allocation ledger works with.
package assets

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lastwish-io/estate-engine/internal/moralis"
	"github.com/lastwish-io/estate-engine/internal/plan"
)

// Indexer is the holdings surface of the indexing API.
type Indexer interface {
	ERC20Balances(ctx context.Context, account, chain string) ([]moralis.TokenBalance, error)
	NFTHoldings(ctx context.Context, account, chain string) ([]moralis.NFTHolding, error)
}

// Token is one fungible holding with its display balance already computed.
type Token struct {
	Key      plan.AssetKey `json:"key"`
	Symbol   string        `json:"symbol"`
	Contract string        `json:"contract"`
	Decimals uint8         `json:"decimals"`
	Raw      string        `json:"raw"`
	Balance  string        `json:"balance"`
}

// NFT is one non-fungible holding.
type NFT struct {
	Key        plan.AssetKey `json:"key"`
	Collection string        `json:"collection"`
	TokenID    string        `json:"tokenId"`
	Name       string        `json:"name"`
}

// Holdings is the combined result of the token and NFT queries. Partial is
// set when exactly one of the two queries failed; Demo marks the fallback
// dataset, which must never be persisted as real holdings.
type Holdings struct {
	Tokens  []Token `json:"tokens"`
	NFTs    []NFT   `json:"nfts"`
	Partial bool    `json:"partial,omitempty"`
	Demo    bool    `json:"demo,omitempty"`
}

type Registry struct {
	indexer Indexer
	log     *zap.Logger
}

func NewRegistry(indexer Indexer, log *zap.Logger) *Registry {
	return &Registry{indexer: indexer, log: log}
}

// Load runs the two holdings queries for account on the named chain. The
// queries are independent: one failing does not block the other, and the
// partial result is returned with Partial set. Only when both fail does Load
// return an error, and the caller may fall back to Demo().
func (r *Registry) Load(ctx context.Context, account common.Address, chain string) (Holdings, error) {
	var h Holdings

	tokens, tokenErr := r.indexer.ERC20Balances(ctx, account.Hex(), chain)
	if tokenErr != nil {
		r.log.Warn("token query failed", zap.String("account", account.Hex()), zap.Error(tokenErr))
	} else {
		for _, t := range tokens {
			h.Tokens = append(h.Tokens, normalizeToken(t))
		}
	}

	nfts, nftErr := r.indexer.NFTHoldings(ctx, account.Hex(), chain)
	if nftErr != nil {
		r.log.Warn("nft query failed", zap.String("account", account.Hex()), zap.Error(nftErr))
	} else {
		for _, n := range nfts {
			h.NFTs = append(h.NFTs, normalizeNFT(n))
		}
	}

	if tokenErr != nil && nftErr != nil {
		return Holdings{}, fmt.Errorf("assets: all holdings queries failed: %w", tokenErr)
	}
	h.Partial = tokenErr != nil || nftErr != nil
	return h, nil
}

func normalizeToken(t moralis.TokenBalance) Token {
	symbol := t.Symbol
	if symbol == "" {
		symbol = "TOK"
	}
	contract := strings.ToLower(t.TokenAddress)
	return Token{
		Key:      plan.TokenKey(symbol, contract),
		Symbol:   symbol,
		Contract: contract,
		Decimals: t.Decimals,
		Raw:      t.Balance,
		Balance:  DisplayBalance(t.Balance, t.Decimals),
	}
}

func normalizeNFT(n moralis.NFTHolding) NFT {
	name := n.Name
	if name == "" {
		name = "NFT"
	}
	collection := strings.ToLower(n.TokenAddress)
	return NFT{
		Key:        plan.NFTKey(collection, n.TokenID),
		Collection: collection,
		TokenID:    n.TokenID,
		Name:       name,
	}
}

// DisplayBalance converts a raw integer amount to its decimal display form,
// balance = raw / 10^decimals. The division is exact big-rational math; raw
// strings never pass through a float.
func DisplayBalance(raw string, decimals uint8) string {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(amount, divisor)

	s := rat.FloatString(int(decimals))
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
