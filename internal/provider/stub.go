package provider

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Stub is a scripted in-memory provider for tests. Zero-value fields behave
// like an idle wallet; set the Fn hooks to script behavior, and call Fire to
// push change events at subscribers.
type Stub struct {
	RequestAccountsFn    func(ctx context.Context) ([]common.Address, error)
	ChainIDFn            func(ctx context.Context) (*big.Int, error)
	SwitchChainFn        func(ctx context.Context, id *big.Int) error
	SignPersonalFn       func(ctx context.Context, account common.Address, msg []byte) ([]byte, error)
	SendTransferFn       func(ctx context.Context, from, to common.Address, amountWei *big.Int) (common.Hash, error)
	TransactionReceiptFn func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	mu          sync.Mutex
	subscribers int
	feed        event.Feed
}

var _ Provider = (*Stub)(nil)

func (s *Stub) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if s.RequestAccountsFn != nil {
		return s.RequestAccountsFn(ctx)
	}
	return nil, ErrUnavailable
}

func (s *Stub) ChainID(ctx context.Context) (*big.Int, error) {
	if s.ChainIDFn != nil {
		return s.ChainIDFn(ctx)
	}
	return big.NewInt(1), nil
}

func (s *Stub) SwitchChain(ctx context.Context, id *big.Int) error {
	if s.SwitchChainFn != nil {
		return s.SwitchChainFn(ctx, id)
	}
	return nil
}

func (s *Stub) SignPersonal(ctx context.Context, account common.Address, msg []byte) ([]byte, error) {
	if s.SignPersonalFn != nil {
		return s.SignPersonalFn(ctx, account, msg)
	}
	return []byte{0x01}, nil
}

func (s *Stub) SendTransfer(ctx context.Context, from, to common.Address, amountWei *big.Int) (common.Hash, error) {
	if s.SendTransferFn != nil {
		return s.SendTransferFn(ctx, from, to, amountWei)
	}
	return common.Hash{}, ErrUnavailable
}

func (s *Stub) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if s.TransactionReceiptFn != nil {
		return s.TransactionReceiptFn(ctx, hash)
	}
	return nil, nil
}

func (s *Stub) SubscribeEvents(ch chan<- Event) event.Subscription {
	s.mu.Lock()
	s.subscribers++
	s.mu.Unlock()
	return &stubSub{inner: s.feed.Subscribe(ch), s: s}
}

// Fire pushes an event to all current subscribers.
func (s *Stub) Fire(ev Event) {
	s.feed.Send(ev)
}

// Subscribers reports how many event subscriptions are still active, for
// teardown assertions.
func (s *Stub) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers
}

type stubSub struct {
	inner event.Subscription
	s     *Stub
	once  sync.Once
}

func (ss *stubSub) Unsubscribe() {
	ss.once.Do(func() {
		ss.s.mu.Lock()
		ss.s.subscribers--
		ss.s.mu.Unlock()
	})
	ss.inner.Unsubscribe()
}

func (ss *stubSub) Err() <-chan error {
	return ss.inner.Err()
}
