// Package plan holds the estate-plan state: registered wallets, the
// beneficiaries who inherit, and the percentage split of each asset among
// them. All mutation goes through Plan methods so the assignment map is
// always either empty or sum-valid after an auto-balancing call.
package plan

import (
	"fmt"
	"strings"
)

// AssetKey identifies one holding. Keys are derived from the asset itself
// and never stored redundantly:
//
//	erc20:<symbol>:<contract lowercased>
//	nft:<collection lowercased>:<token id>
type AssetKey string

func TokenKey(symbol, contract string) AssetKey {
	return AssetKey("erc20:" + symbol + ":" + strings.ToLower(contract))
}

func NFTKey(collection, tokenID string) AssetKey {
	return AssetKey("nft:" + strings.ToLower(collection) + ":" + tokenID)
}

func (k AssetKey) IsToken() bool { return strings.HasPrefix(string(k), "erc20:") }
func (k AssetKey) IsNFT() bool   { return strings.HasPrefix(string(k), "nft:") }

// Parts splits the key into its kind and two payload fields:
// symbol/contract for tokens, collection/token id for NFTs.
func (k AssetKey) Parts() (kind, a, b string) {
	parts := strings.SplitN(string(k), ":", 3)
	if len(parts) != 3 {
		return string(k), "", ""
	}
	return parts[0], parts[1], parts[2]
}

// Wallet is any address the owner registers, including the actively
// connected one.
type Wallet struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName,omitempty"`
}

// Role marks a beneficiary's executor duty. When no beneficiary carries an
// explicit role the first two in ledger order serve positionally.
type Role string

const (
	RoleNone            Role = ""
	RolePrimaryExecutor Role = "primary_executor"
	RoleBackupExecutor  Role = "backup_executor"
)

type Beneficiary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Relation    string `json:"relation,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

// Split is one row of an asset's assignment list.
type Split struct {
	BeneficiaryID string  `json:"beneficiaryId"`
	Percent       float64 `json:"percent"`
}

// Owner carries the profile fields that end up in the document. KeyLocation
// is free text describing where keys are stored; the engine never holds key
// material itself.
type Owner struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions,omitempty"`
	KeyLocation  string `json:"keyLocation,omitempty"`
}

// Plan is the explicit state container for one account's estate plan.
type Plan struct {
	Owner         Owner                `json:"owner"`
	Wallets       []Wallet             `json:"wallets"`
	Beneficiaries []Beneficiary        `json:"beneficiaries"`
	Assignments   map[AssetKey][]Split `json:"assignments"`
}

func New() *Plan {
	return &Plan{Assignments: map[AssetKey][]Split{}}
}

// ValidationError reports the first asset whose splits do not sum to 100.
type ValidationError struct {
	Asset AssetKey
	Total float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan: splits for %s total %.3f, expected 100", e.Asset, e.Total)
}

// evenSplit distributes 100 across n rows using floor division; the leftover
// remainder goes to the first row so totals always land exactly on 100.
func evenSplit(n int) []float64 {
	per := 100 / n
	rem := 100 - per*n
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(per)
	}
	out[0] += float64(rem)
	return out
}
