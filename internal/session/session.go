// Package session owns the wallet connect → sign → disconnect lifecycle and
// is the single source of truth for the active account. Provider
// account/chain changes are republished as typed Change events; every change
// bumps an epoch counter so late responses for a previous account can be
// recognized and discarded.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"github.com/lastwish-io/estate-engine/internal/provider"
	"github.com/lastwish-io/estate-engine/internal/store"
	"github.com/lastwish-io/estate-engine/internal/webhook"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSigned
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSigned:
		return "signed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session proves the connected account authorized the current planning
// session. It lives in memory only and dies with any account change.
type Session struct {
	Account   common.Address `json:"account"`
	ChainID   *big.Int       `json:"chainId"`
	Nonce     string         `json:"nonce"`
	Signature string         `json:"signature"`
	SignedAt  time.Time      `json:"signedAt"`
}

type ChangeReason int

const (
	ReasonConnect ChangeReason = iota
	ReasonAccountSwitch
	ReasonChainSwitch
	ReasonDisconnect
)

// Change is published to subscribers whenever the active account or chain
// moves. Epoch identifies the dataset generation the change begins.
type Change struct {
	Reason  ChangeReason
	Account common.Address
	ChainID *big.Int
	Epoch   uint64
}

type Manager struct {
	provider    provider.Provider
	store       *store.Store
	notifier    webhook.Notifier
	log         *zap.Logger
	targetChain *big.Int

	feed event.Feed

	mu      sync.Mutex
	state   State
	account common.Address
	chainID *big.Int
	session *Session
	epoch   uint64

	sub    event.Subscription
	events chan provider.Event
	stop   chan struct{}
}

func NewManager(p provider.Provider, st *store.Store, notifier webhook.Notifier, targetChain *big.Int, log *zap.Logger) *Manager {
	return &Manager{
		provider:    p,
		store:       st,
		notifier:    notifier,
		log:         log,
		targetChain: targetChain,
	}
}

// Connect requests account access and the active chain from the provider.
// When a target chain is configured and mismatched, a switch is requested;
// refusal is non-fatal and reported through the switched flag. On success
// the manager subscribes to provider change events and publishes a
// ReasonConnect change so the owning engine can load persisted state.
func (m *Manager) Connect(ctx context.Context) (common.Address, bool, error) {
	if m.provider == nil {
		return common.Address{}, false, provider.ErrUnavailable
	}

	m.mu.Lock()
	if m.state == StateConnected || m.state == StateSigned {
		account := m.account
		m.mu.Unlock()
		return account, true, nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		m.setError()
		return common.Address{}, false, fmt.Errorf("session: request accounts: %w", err)
	}
	if len(accounts) == 0 {
		m.setError()
		return common.Address{}, false, fmt.Errorf("session: wallet returned no accounts")
	}
	account := accounts[0]

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		m.setError()
		return common.Address{}, false, fmt.Errorf("session: chain id: %w", err)
	}

	switched := true
	if m.targetChain != nil && chainID.Cmp(m.targetChain) != 0 {
		if err := m.provider.SwitchChain(ctx, m.targetChain); err != nil {
			// refusal or transient RPC failure: stay on the wallet's chain
			m.log.Warn("chain switch refused",
				zap.String("want", m.targetChain.String()),
				zap.String("have", chainID.String()),
				zap.Error(err),
			)
			switched = false
		} else {
			chainID = new(big.Int).Set(m.targetChain)
		}
	}

	m.mu.Lock()
	m.state = StateConnected
	m.account = account
	m.chainID = chainID
	m.session = nil
	m.epoch++
	epoch := m.epoch
	if m.sub == nil {
		m.events = make(chan provider.Event, 8)
		m.stop = make(chan struct{})
		m.sub = m.provider.SubscribeEvents(m.events)
		go m.watch(m.events, m.sub, m.stop)
	}
	m.mu.Unlock()

	m.log.Info("wallet connected",
		zap.String("account", account.Hex()),
		zap.String("chain", chainID.String()),
	)
	m.feed.Send(Change{Reason: ReasonConnect, Account: account, ChainID: chainID, Epoch: epoch})
	return account, switched, nil
}

// SignSession generates a fresh nonce, asks the wallet to sign the canonical
// session message, and stores the proof. A user rejection leaves the
// connection state untouched so the user can simply retry.
func (m *Manager) SignSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.state != StateConnected && m.state != StateSigned {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("session: cannot sign while %s", state)
	}
	account := m.account
	chainID := m.chainID
	epoch := m.epoch
	m.mu.Unlock()

	nonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("session: nonce: %w", err)
	}
	signedAt := time.Now().UTC()
	msg := canonicalMessage(account, nonce, signedAt)

	sig, err := m.provider.SignPersonal(ctx, account, []byte(msg))
	if err != nil {
		return nil, fmt.Errorf("session: sign: %w", err)
	}

	sess := &Session{
		Account:   account,
		ChainID:   chainID,
		Nonce:     nonce,
		Signature: hexutil.Encode(sig),
		SignedAt:  signedAt,
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// the account moved while the wallet prompt was open
		m.mu.Unlock()
		return nil, fmt.Errorf("session: account changed during signing")
	}
	m.session = sess
	m.state = StateSigned
	m.mu.Unlock()

	m.log.Info("session signed", zap.String("account", account.Hex()))
	m.notifier.Notify(ctx, webhook.EventSessionSigned, map[string]any{
		"account": account.Hex(),
		"chainId": chainID.String(),
	})
	return sess, nil
}

// Disconnect is the only full-teardown path: it unregisters provider event
// subscriptions, clears every persisted key for the account, and returns to
// Disconnected. Calling it repeatedly is safe.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateDisconnected && m.sub == nil {
		m.mu.Unlock()
		return nil
	}
	account := m.account
	sub := m.sub
	stop := m.stop
	m.sub = nil
	m.stop = nil
	m.session = nil
	m.account = common.Address{}
	m.chainID = nil
	m.state = StateDisconnected
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		close(stop)
	}

	if account != (common.Address{}) {
		if err := m.store.ResetAccount(account.Hex()); err != nil {
			return fmt.Errorf("session: clear account state: %w", err)
		}
		m.notifier.Notify(ctx, webhook.EventReset, map[string]any{
			"account": account.Hex(),
		})
	}

	m.log.Info("wallet disconnected")
	m.feed.Send(Change{Reason: ReasonDisconnect, Epoch: epoch})
	return nil
}

// SubscribeChanges registers ch for account/chain change notifications.
func (m *Manager) SubscribeChanges(ch chan<- Change) event.Subscription {
	return m.feed.Subscribe(ch)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the current account and epoch. Callers doing slow loads
// capture the epoch and check IsCurrent before applying results.
func (m *Manager) Active() (common.Address, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, m.epoch
}

// IsCurrent reports whether epoch still identifies the live dataset.
func (m *Manager) IsCurrent(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Manager) ChainID() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID
}

// Session returns the current signed proof, or nil before signing.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) setError() {
	m.mu.Lock()
	m.state = StateError
	m.mu.Unlock()
}

func (m *Manager) watch(events chan provider.Event, sub event.Subscription, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case err := <-sub.Err():
			if err != nil {
				m.log.Warn("provider subscription failed", zap.Error(err))
			}
			return
		case ev := <-events:
			m.handleProviderEvent(ev)
		}
	}
}

func (m *Manager) handleProviderEvent(ev provider.Event) {
	switch ev.Type {
	case provider.AccountsChanged:
		if len(ev.Accounts) == 0 {
			// wallet locked or access revoked
			if err := m.Disconnect(context.Background()); err != nil {
				m.log.Warn("teardown after account revocation failed", zap.Error(err))
			}
			return
		}
		next := ev.Accounts[0]

		m.mu.Lock()
		if next == m.account {
			m.mu.Unlock()
			return
		}
		old := m.account
		m.account = next
		if ev.ChainID != nil {
			m.chainID = ev.ChainID
		}
		chainID := m.chainID
		m.session = nil
		m.state = StateConnected
		m.epoch++
		epoch := m.epoch
		m.mu.Unlock()

		m.log.Info("active account changed",
			zap.String("from", old.Hex()),
			zap.String("to", next.Hex()),
		)
		m.feed.Send(Change{Reason: ReasonAccountSwitch, Account: next, ChainID: chainID, Epoch: epoch})

	case provider.ChainChanged:
		m.mu.Lock()
		m.chainID = ev.ChainID
		account := m.account
		epoch := m.epoch
		m.mu.Unlock()

		m.feed.Send(Change{Reason: ReasonChainSwitch, Account: account, ChainID: ev.ChainID, Epoch: epoch})

	case provider.Disconnected:
		if err := m.Disconnect(context.Background()); err != nil {
			m.log.Warn("teardown after provider disconnect failed", zap.Error(err))
		}
	}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func canonicalMessage(account common.Address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"LastWish planning session\nAccount: %s\nNonce: %s\nIssued-At: %s\n",
		account.Hex(), nonce, issuedAt.Format(time.RFC3339),
	)
}
