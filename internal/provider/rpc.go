package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// wallets signal a user rejection with EIP-1193 code 4001
const codeUserRejected = 4001

// RPC talks to a wallet-exposed JSON-RPC endpoint. Browser providers push
// accountsChanged/chainChanged events; a plain RPC endpoint cannot, so the
// client polls both and synthesizes the same events.
type RPC struct {
	client *rpc.Client
	log    *zap.Logger

	feed event.Feed

	mu       sync.Mutex
	accounts []common.Address
	chainID  *big.Int

	stop chan struct{}
	done chan struct{}
}

// DialRPC connects to the wallet endpoint and starts the change-poll loop.
func DialRPC(ctx context.Context, url string, pollInterval time.Duration, log *zap.Logger) (*RPC, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, url, err)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	p := &RPC{
		client: client,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.poll(pollInterval)
	return p, nil
}

func (p *RPC) Close() {
	close(p.stop)
	<-p.done
	p.client.Close()
}

func (p *RPC) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	// eth_requestAccounts prompts the wallet; nodes without the method fall
	// back to the already-authorized list.
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		if declined(err) {
			return nil, ErrUserDeclined
		}
		if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, fmt.Errorf("%w: eth_accounts: %v", ErrUnavailable, err)
		}
	}
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
	return accounts, nil
}

func (p *RPC) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	p.mu.Lock()
	p.chainID = (*big.Int)(&id)
	p.mu.Unlock()
	return (*big.Int)(&id), nil
}

func (p *RPC) SwitchChain(ctx context.Context, id *big.Int) error {
	param := map[string]string{"chainId": hexutil.EncodeBig(id)}
	if err := p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", param); err != nil {
		if declined(err) {
			return ErrUserDeclined
		}
		return fmt.Errorf("wallet_switchEthereumChain: %w", err)
	}
	return nil
}

func (p *RPC) SignPersonal(ctx context.Context, account common.Address, msg []byte) ([]byte, error) {
	var sig hexutil.Bytes
	if err := p.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(msg), account); err != nil {
		if declined(err) {
			return nil, ErrUserDeclined
		}
		return nil, fmt.Errorf("personal_sign: %w", err)
	}
	return sig, nil
}

func (p *RPC) SendTransfer(ctx context.Context, from, to common.Address, amountWei *big.Int) (common.Hash, error) {
	tx := map[string]any{
		"from":  from,
		"to":    to,
		"value": hexutil.EncodeBig(amountWei),
	}
	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		if declined(err) {
			return common.Hash{}, ErrUserDeclined
		}
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}

func (p *RPC) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := p.client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt: %w", err)
	}
	return receipt, nil
}

func (p *RPC) SubscribeEvents(ch chan<- Event) event.Subscription {
	return p.feed.Subscribe(ch)
}

func (p *RPC) poll(interval time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkOnce()
		}
	}
}

func (p *RPC) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		p.log.Debug("account poll failed", zap.Error(err))
		return
	}
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		p.log.Debug("chain poll failed", zap.Error(err))
		return
	}
	chainID := (*big.Int)(&id)

	p.mu.Lock()
	accountsChanged := !sameAccounts(p.accounts, accounts)
	chainChanged := p.chainID != nil && p.chainID.Cmp(chainID) != 0
	p.accounts = accounts
	p.chainID = chainID
	p.mu.Unlock()

	if accountsChanged {
		if len(accounts) == 0 {
			p.feed.Send(Event{Type: Disconnected})
		} else {
			p.feed.Send(Event{Type: AccountsChanged, Accounts: accounts, ChainID: chainID})
		}
	}
	if chainChanged {
		p.feed.Send(Event{Type: ChainChanged, ChainID: chainID})
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func declined(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == codeUserRejected
	}
	return false
}
