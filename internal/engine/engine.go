// Package engine ties the session, plan, asset registry, payment processor,
// and document renderer together behind one mutex-guarded facade. It keeps
// exactly one account's plan in memory and reloads it whenever the session
// reports a different active account.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lastwish-io/estate-engine/internal/assets"
	"github.com/lastwish-io/estate-engine/internal/config"
	"github.com/lastwish-io/estate-engine/internal/document"
	"github.com/lastwish-io/estate-engine/internal/payment"
	"github.com/lastwish-io/estate-engine/internal/plan"
	"github.com/lastwish-io/estate-engine/internal/resolver"
	"github.com/lastwish-io/estate-engine/internal/session"
	"github.com/lastwish-io/estate-engine/internal/store"
	"github.com/lastwish-io/estate-engine/internal/webhook"
)

var (
	ErrNotConnected = errors.New("engine: no wallet connected")
	ErrNotPaid      = errors.New("engine: document requires a confirmed payment")
	ErrStale        = errors.New("engine: account changed during operation")
)

type Engine struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	session  *session.Manager
	registry *assets.Registry
	resolver *resolver.Resolver
	payments *payment.Processor
	notifier webhook.Notifier

	mu       sync.Mutex
	plan     *plan.Plan
	holdings assets.Holdings
	receipt  *payment.Receipt
	epoch    uint64

	changes   chan session.Change
	changeSub interface{ Unsubscribe() }
}

func New(cfg *config.Config, st *store.Store, sess *session.Manager, registry *assets.Registry, res *resolver.Resolver, payments *payment.Processor, notifier webhook.Notifier, log *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log,
		store:    st,
		session:  sess,
		registry: registry,
		resolver: res,
		payments: payments,
		notifier: notifier,
		plan:     plan.New(),
	}
}

// Start subscribes to session changes so account switches reload state even
// when they originate inside the wallet rather than through engine calls.
func (e *Engine) Start() {
	e.changes = make(chan session.Change, 8)
	e.changeSub = e.session.SubscribeChanges(e.changes)
	go e.watch()
}

func (e *Engine) Stop() {
	if e.changeSub != nil {
		e.changeSub.Unsubscribe()
	}
}

func (e *Engine) watch() {
	for change := range e.changes {
		switch change.Reason {
		case session.ReasonAccountSwitch:
			e.activate(change.Account, change.Epoch)
		case session.ReasonDisconnect:
			e.deactivate()
		}
	}
}

// Connect establishes the wallet session and loads the persisted plan for
// the connected account.
func (e *Engine) Connect(ctx context.Context) (common.Address, bool, error) {
	account, switched, err := e.session.Connect(ctx)
	if err != nil {
		return common.Address{}, false, err
	}
	_, epoch := e.session.Active()
	e.activate(account, epoch)
	return account, switched, nil
}

func (e *Engine) Sign(ctx context.Context) (*session.Session, error) {
	return e.session.SignSession(ctx)
}

func (e *Engine) Disconnect(ctx context.Context) error {
	if err := e.session.Disconnect(ctx); err != nil {
		return err
	}
	e.deactivate()
	return nil
}

// activate replaces the in-memory plan with account's persisted records.
// Holdings and the receipt never carry across accounts.
func (e *Engine) activate(account common.Address, epoch uint64) {
	p := plan.New()
	key := account.Hex()
	if _, err := e.store.Load(store.EntityOwner, key, &p.Owner); err != nil {
		e.log.Warn("load owner record", zap.Error(err))
	}
	if _, err := e.store.Load(store.EntityWallets, key, &p.Wallets); err != nil {
		e.log.Warn("load wallet records", zap.Error(err))
	}
	if _, err := e.store.Load(store.EntityBeneficiaries, key, &p.Beneficiaries); err != nil {
		e.log.Warn("load beneficiary records", zap.Error(err))
	}
	if _, err := e.store.Load(store.EntityAssignments, key, &p.Assignments); err != nil {
		e.log.Warn("load assignment records", zap.Error(err))
	}
	if p.Assignments == nil {
		p.Assignments = map[plan.AssetKey][]plan.Split{}
	}

	e.mu.Lock()
	if epoch < e.epoch {
		// a newer switch already won
		e.mu.Unlock()
		return
	}
	e.plan = p
	e.holdings = assets.Holdings{}
	e.receipt = nil
	e.epoch = epoch
	e.mu.Unlock()

	e.log.Info("plan activated",
		zap.String("account", key),
		zap.Int("wallets", len(p.Wallets)),
		zap.Int("beneficiaries", len(p.Beneficiaries)),
	)
}

func (e *Engine) deactivate() {
	e.mu.Lock()
	e.plan = plan.New()
	e.holdings = assets.Holdings{}
	e.receipt = nil
	e.mu.Unlock()
}

// account returns the connected account or ErrNotConnected.
func (e *Engine) account() (common.Address, error) {
	account, _ := e.session.Active()
	if account == (common.Address{}) {
		return common.Address{}, ErrNotConnected
	}
	return account, nil
}

func (e *Engine) SetOwner(ctx context.Context, owner plan.Owner) error {
	account, err := e.account()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.plan.Owner = owner
	e.mu.Unlock()
	return e.store.Save(store.EntityOwner, account.Hex(), owner)
}

// AddWallet registers an extra address on the plan. A .eth name is resolved
// to its address and kept as the display name.
func (e *Engine) AddWallet(ctx context.Context, address, displayName string) (plan.Wallet, error) {
	account, err := e.account()
	if err != nil {
		return plan.Wallet{}, err
	}

	if resolver.IsName(address) {
		if resolved, ok := e.resolver.Resolve(ctx, address); ok {
			if displayName == "" {
				displayName = address
			}
			address = resolved.Hex()
		}
	}

	e.mu.Lock()
	w, err := e.plan.AddWallet(address, displayName)
	if err != nil {
		e.mu.Unlock()
		return plan.Wallet{}, err
	}
	wallets := append([]plan.Wallet(nil), e.plan.Wallets...)
	e.mu.Unlock()

	return w, e.store.Save(store.EntityWallets, account.Hex(), wallets)
}

func (e *Engine) RemoveWallet(ctx context.Context, id string) error {
	account, err := e.account()
	if err != nil {
		return err
	}
	e.mu.Lock()
	if !e.plan.RemoveWallet(id) {
		e.mu.Unlock()
		return fmt.Errorf("engine: unknown wallet %q", id)
	}
	wallets := append([]plan.Wallet(nil), e.plan.Wallets...)
	e.mu.Unlock()
	return e.store.Save(store.EntityWallets, account.Hex(), wallets)
}

// AddBeneficiary records a beneficiary and rebalances every assignment list
// evenly across the new beneficiary set. Name-service lookups are best
// effort: a .eth address is resolved, a plain address is reverse-resolved
// for display, and failures leave the fields as given.
func (e *Engine) AddBeneficiary(ctx context.Context, b plan.Beneficiary) (plan.Beneficiary, error) {
	account, err := e.account()
	if err != nil {
		return plan.Beneficiary{}, err
	}

	if resolver.IsName(b.Address) {
		if resolved, ok := e.resolver.Resolve(ctx, b.Address); ok {
			if b.DisplayName == "" {
				b.DisplayName = b.Address
			}
			b.Address = resolved.Hex()
		}
	} else if common.IsHexAddress(b.Address) && b.DisplayName == "" {
		if name, ok := e.resolver.ReverseResolve(ctx, common.HexToAddress(b.Address)); ok {
			b.DisplayName = name
		}
	}

	e.mu.Lock()
	added, err := e.plan.AddBeneficiary(b)
	if err != nil {
		e.mu.Unlock()
		return plan.Beneficiary{}, err
	}
	beneficiaries := append([]plan.Beneficiary(nil), e.plan.Beneficiaries...)
	e.mu.Unlock()

	return added, e.store.Save(store.EntityBeneficiaries, account.Hex(), beneficiaries)
}

// RemoveBeneficiary strips the beneficiary's rows without rebalancing the
// survivors; SaveAssignments will refuse until the totals are fixed.
func (e *Engine) RemoveBeneficiary(ctx context.Context, id string) error {
	account, err := e.account()
	if err != nil {
		return err
	}
	e.mu.Lock()
	if !e.plan.RemoveBeneficiary(id) {
		e.mu.Unlock()
		return fmt.Errorf("engine: unknown beneficiary %q", id)
	}
	beneficiaries := append([]plan.Beneficiary(nil), e.plan.Beneficiaries...)
	e.mu.Unlock()
	return e.store.Save(store.EntityBeneficiaries, account.Hex(), beneficiaries)
}

// Split edits stay in memory until SaveAssignments persists them.

func (e *Engine) AddSplit(key plan.AssetKey) error {
	if _, err := e.account(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.plan.Beneficiaries) == 0 {
		return fmt.Errorf("engine: add a beneficiary before assigning %s", key)
	}
	e.plan.AddSplit(key)
	return nil
}

func (e *Engine) SetSplit(key plan.AssetKey, index int, beneficiaryID string, percent float64, renormalize bool) error {
	if _, err := e.account(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.SetSplit(key, index, beneficiaryID, percent, renormalize)
}

func (e *Engine) RemoveSplit(key plan.AssetKey, index int) error {
	if _, err := e.account(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.RemoveSplit(key, index)
}

// SaveAssignments validates every split list and persists the assignment
// map. The save webhook fires only after the write succeeds.
func (e *Engine) SaveAssignments(ctx context.Context) error {
	account, err := e.account()
	if err != nil {
		return err
	}

	e.mu.Lock()
	if err := e.plan.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}
	assignments := make(map[plan.AssetKey][]plan.Split, len(e.plan.Assignments))
	for k, v := range e.plan.Assignments {
		assignments[k] = append([]plan.Split(nil), v...)
	}
	e.mu.Unlock()

	if err := e.store.Save(store.EntityAssignments, account.Hex(), assignments); err != nil {
		return err
	}
	e.notifier.Notify(ctx, webhook.EventAssignmentsSaved, map[string]any{
		"account": account.Hex(),
		"assets":  len(assignments),
	})
	return nil
}

// RefreshAssets queries the indexer for the connected account's holdings.
// Results that arrive after the account changed are discarded.
func (e *Engine) RefreshAssets(ctx context.Context) (assets.Holdings, error) {
	account, err := e.account()
	if err != nil {
		return assets.Holdings{}, err
	}
	_, epoch := e.session.Active()

	chain := e.chainName()
	holdings, err := e.registry.Load(ctx, account, chain)
	if err != nil {
		return assets.Holdings{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsCurrent(epoch) {
		return assets.Holdings{}, ErrStale
	}
	e.holdings = holdings
	return holdings, nil
}

// UseDemoAssets swaps in the canned demo inventory. It lives in memory only
// and is never written to the store.
func (e *Engine) UseDemoAssets() assets.Holdings {
	demo := assets.Demo()
	e.mu.Lock()
	e.holdings = demo
	e.mu.Unlock()
	return demo
}

func (e *Engine) chainName() string {
	id := e.session.ChainID()
	if id == nil {
		return "eth"
	}
	if ch, ok := e.cfg.ChainFor(id.Uint64()); ok && ch.IndexerName != "" {
		return ch.IndexerName
	}
	return "eth"
}

// Pay charges the document fee: the base price, discounted when the account
// reverse-resolves to a name, then a transfer from the connected account
// watched through to a successful receipt.
func (e *Engine) Pay(ctx context.Context) (*payment.Receipt, error) {
	account, err := e.account()
	if err != nil {
		return nil, err
	}
	_, epoch := e.session.Active()

	_, eligible := e.resolver.ReverseResolve(ctx, account)
	price := payment.ComputePrice(e.cfg.Payment.BasePriceEth, e.cfg.Payment.EnsDiscountPercent, eligible)

	var receipt *payment.Receipt
	if price <= 0 {
		receipt = &payment.Receipt{Amount: 0, ConfirmedAt: time.Now().UTC()}
	} else {
		to := common.HexToAddress(e.cfg.Payment.ToAddress)
		hash, err := e.payments.Submit(ctx, account, to, price)
		if err != nil {
			return nil, err
		}
		receipt, err = e.payments.AwaitConfirmation(ctx, hash, price)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	if !e.session.IsCurrent(epoch) {
		e.mu.Unlock()
		return nil, ErrStale
	}
	e.receipt = receipt
	e.mu.Unlock()

	e.notifier.Notify(ctx, webhook.EventPaymentConfirmed, map[string]any{
		"account": account.Hex(),
		"txHash":  receipt.TxHash.Hex(),
		"amount":  receipt.Amount,
	})
	return receipt, nil
}

// RenderDocument produces the final will. It refuses while any assignment
// list is unbalanced or before a confirmed payment for this account.
func (e *Engine) RenderDocument(ctx context.Context) (string, error) {
	account, err := e.account()
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	if err := e.plan.Validate(); err != nil {
		e.mu.Unlock()
		return "", err
	}
	if e.receipt == nil {
		e.mu.Unlock()
		return "", ErrNotPaid
	}
	in := document.Input{
		Owner:         e.plan.Owner,
		AsOf:          time.Now().UTC(),
		Wallets:       documentWallets(account, e.plan.Wallets),
		Beneficiaries: append([]plan.Beneficiary(nil), e.plan.Beneficiaries...),
		Assignments:   e.plan.Assignments,
		AssetLines:    assetLines(e.holdings),
	}
	e.mu.Unlock()

	return document.Render(in)
}

// documentWallets puts the connected account first; extra registered
// wallets follow in ledger order without duplicating it.
func documentWallets(account common.Address, wallets []plan.Wallet) []plan.Wallet {
	out := []plan.Wallet{{Address: account.Hex()}}
	for _, w := range wallets {
		if strings.EqualFold(w.Address, account.Hex()) {
			out[0].DisplayName = w.DisplayName
			continue
		}
		out = append(out, w)
	}
	return out
}

func assetLines(h assets.Holdings) []string {
	lines := make([]string, 0, len(h.Tokens)+len(h.NFTs))
	for _, t := range h.Tokens {
		lines = append(lines, fmt.Sprintf("%s %s", t.Balance, t.Symbol))
	}
	for _, n := range h.NFTs {
		lines = append(lines, fmt.Sprintf("%s #%s", n.Collection, n.TokenID))
	}
	return lines
}

// View is a read-only snapshot for the HTTP layer.
type View struct {
	State     string           `json:"state"`
	Account   string           `json:"account,omitempty"`
	ChainID   string           `json:"chainId,omitempty"`
	ChainName string           `json:"chainName,omitempty"`
	Signed    bool             `json:"signed"`
	Plan      plan.Plan        `json:"plan"`
	Holdings  assets.Holdings  `json:"holdings"`
	Receipt   *payment.Receipt `json:"receipt,omitempty"`
	Valid     bool             `json:"valid"`
	Violation string           `json:"violation,omitempty"`
}

func (e *Engine) Snapshot() View {
	account, _ := e.session.Active()
	chainID := e.session.ChainID()

	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		State:    e.session.State().String(),
		Signed:   e.session.Session() != nil,
		Holdings: e.holdings,
		Receipt:  e.receipt,
		Valid:    true,
	}
	if account != (common.Address{}) {
		v.Account = account.Hex()
	}
	if chainID != nil {
		v.ChainID = chainID.String()
		if ch, ok := e.cfg.ChainFor(chainID.Uint64()); ok {
			v.ChainName = ch.Name
		}
	}

	v.Plan = plan.Plan{
		Owner:         e.plan.Owner,
		Wallets:       append([]plan.Wallet(nil), e.plan.Wallets...),
		Beneficiaries: append([]plan.Beneficiary(nil), e.plan.Beneficiaries...),
		Assignments:   make(map[plan.AssetKey][]plan.Split, len(e.plan.Assignments)),
	}
	for k, splits := range e.plan.Assignments {
		v.Plan.Assignments[k] = append([]plan.Split(nil), splits...)
	}
	if err := e.plan.Validate(); err != nil {
		v.Valid = false
		v.Violation = err.Error()
	}
	return v
}
