// Package moralis is a thin client for the indexing/resolution API the
// engine uses for name lookups, token balances, and NFT holdings.
package moralis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://deep-index.moralis.io/api/v2.2"

// Client calls the indexer with an API key. All methods are plain reads;
// callers decide how failures degrade.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	nftPage int
}

func NewClient(baseURL, apiKey string, timeout time.Duration, nftPage int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if nftPage <= 0 {
		nftPage = 50
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		nftPage: nftPage,
	}
}

// TokenBalance is one fungible-token row as reported by the indexer.
type TokenBalance struct {
	TokenAddress string `json:"token_address"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Decimals     uint8  `json:"decimals"`
	Balance      string `json:"balance"`
}

// NFTHolding is one NFT row as reported by the indexer.
type NFTHolding struct {
	TokenAddress string `json:"token_address"`
	TokenID      string `json:"token_id"`
	Name         string `json:"name"`
}

type tokenPage struct {
	Result []TokenBalance `json:"result"`
}

type nftListPage struct {
	Result []NFTHolding `json:"result"`
}

type resolveResponse struct {
	Address string `json:"address"`
}

type reverseResponse struct {
	Name string `json:"name"`
}

// ResolveName resolves an ENS-style name to an address string.
func (c *Client) ResolveName(ctx context.Context, name string) (string, error) {
	var out resolveResponse
	path := fmt.Sprintf("/resolve/ens/%s", url.PathEscape(name))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("moralis: no address for %q", name)
	}
	return out.Address, nil
}

// ReverseResolve looks up the primary name for an address.
func (c *Client) ReverseResolve(ctx context.Context, address string) (string, error) {
	var out reverseResponse
	path := fmt.Sprintf("/resolve/%s/reverse", url.PathEscape(address))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", fmt.Errorf("moralis: no name for %s", address)
	}
	return out.Name, nil
}

// ERC20Balances lists fungible token balances for an account on a chain.
func (c *Client) ERC20Balances(ctx context.Context, account, chain string) ([]TokenBalance, error) {
	var out tokenPage
	q := url.Values{"chain": {chain}}
	if err := c.get(ctx, fmt.Sprintf("/%s/erc20", url.PathEscape(account)), q, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// NFTHoldings lists NFTs held by an account on a chain.
func (c *Client) NFTHoldings(ctx context.Context, account, chain string) ([]NFTHolding, error) {
	var out nftListPage
	q := url.Values{
		"chain":  {chain},
		"format": {"decimal"},
		"limit":  {fmt.Sprint(c.nftPage)},
	}
	if err := c.get(ctx, fmt.Sprintf("/%s/nft", url.PathEscape(account)), q, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("moralis: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("moralis: %s: status %d: %s", path, resp.StatusCode, truncate(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("moralis: decode %s: %w", path, err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
