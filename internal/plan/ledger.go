package plan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxWallets = 20

// AddWallet registers an address. Duplicates (case-insensitive) and
// overflow past the wallet cap are rejected.
func (p *Plan) AddWallet(address, displayName string) (Wallet, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Wallet{}, fmt.Errorf("plan: wallet address is required")
	}
	if len(p.Wallets) >= maxWallets {
		return Wallet{}, fmt.Errorf("plan: at most %d wallets allowed", maxWallets)
	}
	for _, w := range p.Wallets {
		if strings.EqualFold(w.Address, address) {
			return Wallet{}, fmt.Errorf("plan: wallet %s already added", address)
		}
	}

	w := Wallet{ID: uuid.NewString(), Address: address, DisplayName: displayName}
	p.Wallets = append(p.Wallets, w)
	return w, nil
}

// RemoveWallet deletes a wallet by id and reports whether it existed.
func (p *Plan) RemoveWallet(id string) bool {
	for i, w := range p.Wallets {
		if w.ID == id {
			p.Wallets = append(p.Wallets[:i], p.Wallets[i+1:]...)
			return true
		}
	}
	return false
}

// AddBeneficiary appends a beneficiary and redistributes every non-empty
// assignment list evenly across the new beneficiary set.
func (p *Plan) AddBeneficiary(b Beneficiary) (Beneficiary, error) {
	if strings.TrimSpace(b.Name) == "" {
		return Beneficiary{}, fmt.Errorf("plan: beneficiary name is required")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	p.Beneficiaries = append(p.Beneficiaries, b)
	p.redistributeAll()
	return b, nil
}

// RemoveBeneficiary deletes the beneficiary and strips their rows from every
// assignment list. Remaining rows are deliberately left as they are — a list
// that used to sum to 100 may now sum below it, and Validate will say so.
// Callers who want an even split back must call Renormalize explicitly.
func (p *Plan) RemoveBeneficiary(id string) bool {
	idx := -1
	for i, b := range p.Beneficiaries {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	p.Beneficiaries = append(p.Beneficiaries[:idx], p.Beneficiaries[idx+1:]...)

	for key, rows := range p.Assignments {
		kept := rows[:0]
		for _, r := range rows {
			if r.BeneficiaryID != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(p.Assignments, key)
		} else {
			p.Assignments[key] = kept
		}
	}
	return true
}

// Beneficiary returns the record for id.
func (p *Plan) Beneficiary(id string) (Beneficiary, bool) {
	for _, b := range p.Beneficiaries {
		if b.ID == id {
			return b, true
		}
	}
	return Beneficiary{}, false
}

// redistributeAll rebuilds every non-empty assignment list as one row per
// beneficiary, split evenly with the remainder on the first row.
func (p *Plan) redistributeAll() {
	n := len(p.Beneficiaries)
	if n == 0 {
		return
	}
	percents := evenSplit(n)
	for key, rows := range p.Assignments {
		if len(rows) == 0 {
			continue
		}
		next := make([]Split, n)
		for i, b := range p.Beneficiaries {
			next[i] = Split{BeneficiaryID: b.ID, Percent: percents[i]}
		}
		p.Assignments[key] = next
	}
}
