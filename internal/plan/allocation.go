package plan

import (
	"fmt"
	"math"
	"sort"
)

// validation tolerance for float percent sums
const epsilon = 0.001

// AddSplit appends a row for the asset, pre-selecting the first beneficiary,
// then rebalances that asset's rows evenly over the new row count.
func (p *Plan) AddSplit(key AssetKey) {
	if p.Assignments == nil {
		p.Assignments = map[AssetKey][]Split{}
	}
	first := ""
	if len(p.Beneficiaries) > 0 {
		first = p.Beneficiaries[0].ID
	}
	p.Assignments[key] = append(p.Assignments[key], Split{BeneficiaryID: first})
	p.Renormalize(key)
}

// RemoveSplit deletes one row. Remaining rows are rebalanced; removing the
// last row unassigns the asset entirely.
func (p *Plan) RemoveSplit(key AssetKey, index int) error {
	rows, ok := p.Assignments[key]
	if !ok {
		return fmt.Errorf("plan: no splits for %s", key)
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("plan: split index %d out of range for %s", index, key)
	}
	rows = append(rows[:index], rows[index+1:]...)
	if len(rows) == 0 {
		delete(p.Assignments, key)
		return nil
	}
	p.Assignments[key] = rows
	p.Renormalize(key)
	return nil
}

// SetSplit overwrites one row. With renormalize false this is the manual
// path: the user's numbers stand as entered and only Validate gates them
// later. With renormalize true the asset is rebalanced evenly afterwards
// and the percent argument is ignored.
func (p *Plan) SetSplit(key AssetKey, index int, beneficiaryID string, percent float64, renormalize bool) error {
	rows, ok := p.Assignments[key]
	if !ok {
		return fmt.Errorf("plan: no splits for %s", key)
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("plan: split index %d out of range for %s", index, key)
	}
	if beneficiaryID != "" {
		if _, ok := p.Beneficiary(beneficiaryID); !ok {
			return fmt.Errorf("plan: unknown beneficiary %s", beneficiaryID)
		}
	}
	rows[index] = Split{BeneficiaryID: beneficiaryID, Percent: percent}
	if renormalize {
		p.Renormalize(key)
	}
	return nil
}

// Renormalize rebalances one asset's rows to an even split with the
// remainder on the first row. A missing or empty list is a no-op.
func (p *Plan) Renormalize(key AssetKey) {
	rows := p.Assignments[key]
	if len(rows) == 0 {
		return
	}
	percents := evenSplit(len(rows))
	for i := range rows {
		rows[i].Percent = percents[i]
	}
}

// Validate scans every assigned asset and reports the first, in stable key
// order, whose percentages do not total 100 within tolerance. Unassigned
// assets (empty lists) are always valid.
func (p *Plan) Validate() error {
	keys := make([]AssetKey, 0, len(p.Assignments))
	for key := range p.Assignments {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		rows := p.Assignments[key]
		if len(rows) == 0 {
			continue
		}
		total := 0.0
		for _, r := range rows {
			total += r.Percent
		}
		if math.Abs(total-100) > epsilon {
			return &ValidationError{Asset: key, Total: total}
		}
	}
	return nil
}
