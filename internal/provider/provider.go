// Package provider abstracts the user's wallet over the small JSON-RPC
// surface the engine needs: account access, chain management, personal
// message signatures, native value transfers, and receipt lookups.
package provider

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

var (
	// ErrUnavailable means no wallet provider is reachable. This is a hard
	// precondition failure; callers must not retry automatically.
	ErrUnavailable = errors.New("provider: wallet provider unavailable")

	// ErrUserDeclined means the user rejected a signature or transaction
	// request in their wallet.
	ErrUserDeclined = errors.New("provider: request declined by user")
)

type EventType int

const (
	AccountsChanged EventType = iota
	ChainChanged
	Disconnected
)

// Event is pushed whenever the wallet's active accounts or chain change.
type Event struct {
	Type     EventType
	Accounts []common.Address
	ChainID  *big.Int
}

// Provider is the injected wallet. Implementations must be safe for use from
// a single goroutine; all methods honor the passed context.
type Provider interface {
	// RequestAccounts asks the wallet for account access and returns the
	// authorized accounts, active first.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the wallet's active chain.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain asks the wallet to move to the given chain. A refusal is
	// reported as an error; the caller decides whether that is fatal.
	SwitchChain(ctx context.Context, id *big.Int) error

	// SignPersonal requests a personal-message signature from account.
	SignPersonal(ctx context.Context, account common.Address, msg []byte) ([]byte, error)

	// SendTransfer submits a native value transfer and returns its hash.
	SendTransfer(ctx context.Context, from, to common.Address, amountWei *big.Int) (common.Hash, error)

	// TransactionReceipt returns the receipt for hash, or nil while the
	// transaction is still pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// SubscribeEvents registers ch for account/chain change notifications.
	// The subscription must be unsubscribed on teardown.
	SubscribeEvents(ch chan<- Event) event.Subscription
}
