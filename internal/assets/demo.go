package assets

import "github.com/lastwish-io/estate-engine/internal/moralis"

// Demo returns a fixed demonstration dataset for UI continuity when every
// holdings source is down. The result is marked Demo and callers must never
// persist it as real holdings.
func Demo() Holdings {
	tokens := []moralis.TokenBalance{
		{Symbol: "USDC", TokenAddress: "0xa0b86a33e6441e8e421f8e2b4b8b6b8b8b8b8b8b", Balance: "1000000000", Decimals: 6},
		{Symbol: "WETH", TokenAddress: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Balance: "2500000000000000000", Decimals: 18},
		{Symbol: "UNI", TokenAddress: "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", Balance: "50000000000000000000", Decimals: 18},
	}
	nfts := []moralis.NFTHolding{
		{Name: "Bored Ape", TokenAddress: "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", TokenID: "1234"},
		{Name: "CryptoPunk", TokenAddress: "0xb47e3cd837ddf8e4c57f05d70ab865de6e193bbb", TokenID: "5678"},
		{Name: "Azuki", TokenAddress: "0xed5af388653567af2f388e6224dc7c4b3241c544", TokenID: "9012"},
	}

	h := Holdings{Demo: true}
	for _, t := range tokens {
		h.Tokens = append(h.Tokens, normalizeToken(t))
	}
	for _, n := range nfts {
		h.NFTs = append(h.NFTs, normalizeNFT(n))
	}
	return h
}
