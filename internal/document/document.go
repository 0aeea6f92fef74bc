// Package document renders the printable Last Will and Testament from an
// in-memory snapshot of the plan. Rendering is pure: the same input always
// produces the same bytes, so callers pass the as-of time explicitly.
package document

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/lastwish-io/estate-engine/internal/plan"
)

// Input is everything the will text needs. Callers snapshot it from the
// live plan so rendering never races with edits.
type Input struct {
	Owner         plan.Owner
	AsOf          time.Time
	Wallets       []plan.Wallet
	Beneficiaries []plan.Beneficiary
	Assignments   map[plan.AssetKey][]plan.Split
	AssetLines    []string // pre-formatted inventory lines, e.g. "1.5 WETH"
}

type walletView struct {
	Address     string
	DisplayName string
}

type bequestView struct {
	Name    string
	Display string
	Shares  []string
}

type documentView struct {
	OwnerName       string
	AsOf            string
	PrimaryWallet   walletView
	ExtraWallets    []walletView
	AssetLines      []string
	Bequests        []bequestView
	PrimaryExecutor string
	BackupExecutor  string
	Instructions    string
	KeyLocation     string
}

// Render produces the will document as a standalone HTML page.
func Render(in Input) (string, error) {
	if strings.TrimSpace(in.Owner.Name) == "" {
		return "", fmt.Errorf("document: owner name is required")
	}

	view := documentView{
		OwnerName:    in.Owner.Name,
		AsOf:         in.AsOf.Format("January 2, 2006"),
		AssetLines:   in.AssetLines,
		Instructions: strings.TrimSpace(in.Owner.Instructions),
		KeyLocation:  strings.TrimSpace(in.Owner.KeyLocation),
	}

	for i, w := range in.Wallets {
		wv := walletView{Address: w.Address, DisplayName: w.DisplayName}
		if i == 0 {
			view.PrimaryWallet = wv
		} else {
			view.ExtraWallets = append(view.ExtraWallets, wv)
		}
	}

	view.Bequests = bequests(in.Beneficiaries, in.Assignments)
	view.PrimaryExecutor, view.BackupExecutor = executors(in.Beneficiaries)

	var b strings.Builder
	if err := willTemplate.Execute(&b, view); err != nil {
		return "", fmt.Errorf("document: render: %w", err)
	}
	return b.String(), nil
}

// executors picks the named executors. An explicit role wins; otherwise the
// first beneficiary is primary and the second is backup.
func executors(beneficiaries []plan.Beneficiary) (primary, backup string) {
	primary = "To be designated"
	backup = "To be designated"

	var primaryIdx = -1
	for i, b := range beneficiaries {
		if b.Role == plan.RolePrimaryExecutor {
			primary = b.Name
			primaryIdx = i
			break
		}
	}
	if primaryIdx < 0 && len(beneficiaries) > 0 {
		primary = beneficiaries[0].Name
		primaryIdx = 0
	}
	for i, b := range beneficiaries {
		if i != primaryIdx && b.Role == plan.RoleBackupExecutor {
			return primary, b.Name
		}
	}
	for i, b := range beneficiaries {
		if i != primaryIdx {
			return primary, b.Name
		}
	}
	return primary, backup
}

// bequests lists, per beneficiary in plan order, their percentage of each
// assigned asset. Asset keys are walked in sorted order so output is stable.
func bequests(beneficiaries []plan.Beneficiary, assignments map[plan.AssetKey][]plan.Split) []bequestView {
	keys := make([]plan.AssetKey, 0, len(assignments))
	for k := range assignments {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]bequestView, 0, len(beneficiaries))
	for _, b := range beneficiaries {
		bv := bequestView{Name: b.Name, Display: b.DisplayName}
		for _, key := range keys {
			for _, split := range assignments[key] {
				if split.BeneficiaryID == b.ID && split.Percent > 0 {
					bv.Shares = append(bv.Shares, fmt.Sprintf("%s of %s", formatPercent(split.Percent), assetLabel(key)))
				}
			}
		}
		out = append(out, bv)
	}
	return out
}

func formatPercent(p float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", p), "0"), ".")
	return s + "%"
}

func assetLabel(key plan.AssetKey) string {
	kind, name, id := key.Parts()
	switch kind {
	case "erc20":
		return name
	case "nft":
		return fmt.Sprintf("%s #%s", name, id)
	default:
		return string(key)
	}
}

var willTemplate = template.Must(template.New("will").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Last Will and Testament of {{.OwnerName}}</title>
<style>
body { font-family: 'Times New Roman', serif; line-height: 1.6; margin: 40px; color: #000; background: #fff; }
h1 { font-size: 24px; text-align: center; text-decoration: underline; }
h2 { font-size: 16px; text-decoration: underline; margin: 20px 0 10px 0; }
.wallet-box { border: 2px solid #000; padding: 10px; margin: 10px 0; }
.signature-line { border-bottom: 1px solid #000; width: 300px; height: 20px; margin: 20px 0; }
p { margin: 10px 0; text-align: justify; }
</style>
</head>
<body>
<h1>Last Will and Testament of {{.OwnerName}}</h1>

<h2>ARTICLE I - DECLARATION AND REVOCATION</h2>
<p>I, <strong>{{.OwnerName}}</strong>, a resident of the jurisdiction where this will is executed, being of sound mind and memory and not acting under duress, menace, fraud, or undue influence of any person whomsoever, do hereby make, publish, and declare this instrument to be my Last Will and Testament, hereby expressly revoking all wills and codicils heretofore made by me.</p>
<p>I am over the age of eighteen (18) years and am competent to make this Will. I declare that this Will expresses my true wishes concerning the disposition of my digital assets and that I have carefully read this Will and understand its contents.</p>

<h2>ARTICLE II - DIGITAL ASSET IDENTIFICATION AND DISPOSITION</h2>
<p>I hereby give, devise, and bequeath all of my right, title, and interest in and to my digital assets, including but not limited to cryptocurrency, digital tokens, non-fungible tokens (NFTs), smart contracts, and other blockchain-based assets, currently held in or accessible through the following digital wallet addresses:</p>
{{if .PrimaryWallet.Address}}<div class="wallet-box"><strong>Primary Wallet:</strong> {{.PrimaryWallet.Address}}{{if .PrimaryWallet.DisplayName}} ({{.PrimaryWallet.DisplayName}}){{end}}</div>{{end}}
{{if .ExtraWallets}}<div class="wallet-box"><strong>Additional Wallets:</strong><ul>{{range .ExtraWallets}}<li>{{.Address}}{{if .DisplayName}} ({{.DisplayName}}){{end}}</li>{{end}}</ul></div>{{end}}
<p><strong>Current Digital Asset Inventory (as of {{.AsOf}}):</strong></p>
{{if .AssetLines}}{{range .AssetLines}}<p>&bull; {{.}}</p>
{{end}}{{else}}<p>&bull; Digital assets to be inventoried at time of distribution</p>{{end}}
<p><strong>Asset Distribution:</strong></p>
{{if .Bequests}}{{range .Bequests}}<p><strong>{{.Name}}</strong>{{if .Display}} ({{.Display}}){{end}}: {{if .Shares}}To receive {{range $i, $s := .Shares}}{{if $i}}; {{end}}{{$s}}{{end}}.{{else}}To receive designated percentage of digital assets as specified in assignment records.{{end}}</p>
{{end}}{{else}}<p>Beneficiaries to be designated through assignment records.</p>{{end}}

<h2>ARTICLE III - APPOINTMENT OF EXECUTOR AND DIGITAL ASSET POWERS</h2>
<p>I hereby nominate, constitute, and appoint <strong>{{.PrimaryExecutor}}</strong> as the Executor of this Last Will and Testament. If {{.PrimaryExecutor}} is unable, unwilling, or fails to qualify as Executor, I nominate and appoint <strong>{{.BackupExecutor}}</strong> as successor Executor.</p>
<p><strong>Digital Asset Authority:</strong> I specifically grant my Executor the following powers and authorities with respect to my digital assets:</p>
<p>a) To locate, access, and take control of all digital wallets, private keys, seed phrases, passwords, and authentication methods necessary to access my digital assets;</p>
<p>b) To engage qualified blockchain technology experts, cryptocurrency services, or digital asset custodians as necessary;</p>
<p>c) To convert digital assets to fiat currency if required for estate settlement or tax obligations;</p>
<p>d) To create new digital wallets and transfer assets to beneficiaries' designated addresses;</p>
<p>e) To claim any forks, airdrops, staking rewards, or other derivative benefits;</p>
<p>f) To pay all taxes, fees, and expenses related to digital asset management and transfer;</p>
<p>g) To execute all necessary documents and transactions to effectuate the distribution of digital assets.</p>

<h2>ARTICLE IV - DIGITAL ASSET ADMINISTRATION INSTRUCTIONS</h2>
<p><strong>Immediate Actions Required:</strong></p>
<p><strong>1. Security:</strong> My Executor shall immediately secure all digital assets by obtaining control of private keys and changing passwords to prevent unauthorized access;</p>
<p><strong>2. Inventory:</strong> Conduct a complete inventory and valuation of all digital assets within thirty (30) days of my death;</p>
<p><strong>3. Documentation:</strong> Maintain detailed records of all digital asset transactions, including blockchain transaction IDs;</p>
<p><strong>4. Distribution:</strong> Transfer assets to beneficiaries within ninety (90) days unless additional time is required for tax or legal compliance;</p>
<p><strong>5. Tax Compliance:</strong> Ensure all federal, state, and local tax obligations are satisfied before final distribution.</p>
{{if .KeyLocation}}<p><strong>Key Material Location:</strong> {{.KeyLocation}}</p>{{end}}
{{if .Instructions}}<p><strong>SPECIAL INSTRUCTIONS AND ADDITIONAL WISHES:</strong></p>
<div style="border: 1px solid #000; padding: 15px; margin: 15px 0; font-style: italic;">&quot;{{.Instructions}}&quot;</div>
<p>I direct my Executor to carefully consider and implement these additional instructions to the extent legally permissible and practically feasible. These instructions are an integral part of my wishes for the administration of my digital assets.</p>{{end}}

<h2>ARTICLE V - GENERAL PROVISIONS AND GOVERNING LAW</h2>
<p><strong>Governing Law:</strong> This Will shall be construed and administered according to the laws of the state of my domicile at the time of my death, without regard to conflict of laws principles.</p>
<p><strong>Severability:</strong> If any provision of this Will is held to be invalid or unenforceable, such determination shall not affect the validity or enforceability of the remaining provisions, which shall continue in full force and effect.</p>
<p><strong>Digital Asset Definition:</strong> &quot;Digital assets&quot; as used herein includes cryptocurrency, virtual currency, digital tokens, non-fungible tokens (NFTs), blockchain-based assets, smart contracts, and any other form of digital property that exists on a blockchain or distributed ledger.</p>

<p><strong>IN WITNESS WHEREOF,</strong> I have signed my name to this Last Will and Testament this _____ day of _____________, 20____.</p>
<p><strong>TESTATOR:</strong></p>
<div class="signature-line"></div>
<p>{{.OwnerName}}</p>
</body>
</html>
`))
