// Package payment submits the planning-fee transfer and waits for its
// on-chain confirmation. A confirmed receipt gates document finalization.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/lastwish-io/estate-engine/internal/provider"
)

var (
	// ErrConfirmTimeout means the confirmation window elapsed with the
	// transaction still pending. The transaction may yet mine; callers can
	// keep watching manually or treat this as failure.
	ErrConfirmTimeout = errors.New("payment: confirmation timed out")

	// ErrTransactionFailed means the transaction mined with a failure
	// status. This attempt is terminal; a retry needs a new submission.
	ErrTransactionFailed = errors.New("payment: transaction reverted")
)

// Receipt is recorded only after a successful on-chain confirmation.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber *big.Int    `json:"blockNumber"`
	Amount      float64     `json:"amount"`
	ConfirmedAt time.Time   `json:"confirmedAt"`
}

// ComputePrice applies discountPercent to basePrice when eligible, clamped
// at zero. Ineligible callers pay the base price unchanged.
func ComputePrice(basePrice, discountPercent float64, eligible bool) float64 {
	if !eligible || discountPercent <= 0 {
		return basePrice
	}
	price := basePrice * (1 - discountPercent/100)
	if price < 0 {
		return 0
	}
	return price
}

// EtherToWei converts a decimal price in native units to the chain's
// smallest integer unit.
func EtherToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(
		big.NewFloat(amount),
		new(big.Float).SetInt(big.NewInt(params.Ether)),
	).Int(nil)
	return wei
}

type Processor struct {
	provider     provider.Provider
	log          *zap.Logger
	pollInterval time.Duration
	timeout      time.Duration
}

func NewProcessor(p provider.Provider, pollInterval, timeout time.Duration, log *zap.Logger) *Processor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Processor{provider: p, log: log, pollInterval: pollInterval, timeout: timeout}
}

// Submit requests a native transfer of amount (in native units) from the
// connected account.
func (p *Processor) Submit(ctx context.Context, from, to common.Address, amount float64) (common.Hash, error) {
	if amount < 0 {
		return common.Hash{}, fmt.Errorf("payment: negative amount %v", amount)
	}
	hash, err := p.provider.SendTransfer(ctx, from, to, EtherToWei(amount))
	if err != nil {
		return common.Hash{}, fmt.Errorf("payment: submit transfer: %w", err)
	}
	p.log.Info("payment submitted",
		zap.String("tx", hash.Hex()),
		zap.Float64("amount", amount),
	)
	return hash, nil
}

// Result is one outcome delivered by Watch.
type Result struct {
	Receipt *Receipt
	Err     error
}

// Watch polls for the transaction receipt at the processor's interval and
// delivers exactly one Result: a confirmed receipt, ErrTransactionFailed for
// a reverted transaction, or the context error if the caller stops first.
// The returned stop function cancels polling and releases the timer.
func (p *Processor) Watch(ctx context.Context, hash common.Hash, amount float64) (<-chan Result, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Result, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				out <- Result{Err: ctx.Err()}
				return
			case <-ticker.C:
				receipt, err := p.provider.TransactionReceipt(ctx, hash)
				if err != nil {
					// transient lookup failure; keep polling
					p.log.Debug("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
					continue
				}
				if receipt == nil || receipt.BlockNumber == nil {
					continue
				}
				if receipt.Status != types.ReceiptStatusSuccessful {
					out <- Result{Err: fmt.Errorf("%w: tx %s", ErrTransactionFailed, hash.Hex())}
					return
				}
				out <- Result{Receipt: &Receipt{
					TxHash:      hash,
					BlockNumber: new(big.Int).Set(receipt.BlockNumber),
					Amount:      amount,
					ConfirmedAt: time.Now().UTC(),
				}}
				return
			}
		}
	}()

	return out, cancel
}

// AwaitConfirmation blocks until the transaction confirms, fails, or the
// processor's timeout elapses. Timeout is reported as ErrConfirmTimeout,
// distinct from a reverted transaction.
func (p *Processor) AwaitConfirmation(ctx context.Context, hash common.Hash, amount float64) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results, stop := p.Watch(ctx, hash, amount)
	defer stop()

	res := <-results
	if res.Err != nil {
		if errors.Is(res.Err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tx %s after %s", ErrConfirmTimeout, hash.Hex(), p.timeout)
		}
		return nil, res.Err
	}

	p.log.Info("payment confirmed",
		zap.String("tx", hash.Hex()),
		zap.String("block", res.Receipt.BlockNumber.String()),
	)
	return res.Receipt, nil
}
