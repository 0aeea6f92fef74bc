package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lastwish-io/estate-engine/internal/logging"
	"github.com/lastwish-io/estate-engine/internal/provider"
	"github.com/lastwish-io/estate-engine/internal/store"
)

var (
	accountA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	accountB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestManager(t *testing.T, p provider.Provider) (*Manager, *store.Store, *recordingNotifier) {
	t.Helper()
	st, err := store.New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	notifier := &recordingNotifier{}
	return NewManager(p, st, notifier, big.NewInt(1), logging.Discard()), st, notifier
}

func scriptedStub(accounts []common.Address, chain int64) *provider.Stub {
	return &provider.Stub{
		RequestAccountsFn: func(context.Context) ([]common.Address, error) {
			return accounts, nil
		},
		ChainIDFn: func(context.Context) (*big.Int, error) {
			return big.NewInt(chain), nil
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectSignDisconnect(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 1)
	m, st, notifier := newTestManager(t, stub)
	ctx := context.Background()

	account, switched, err := m.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if account != accountA {
		t.Fatalf("account = %s, want %s", account.Hex(), accountA.Hex())
	}
	if !switched {
		t.Fatal("expected no chain switch needed")
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}

	sess, err := m.SignSession(ctx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sess.Account != accountA || sess.Nonce == "" || sess.Signature == "" {
		t.Fatalf("incomplete session: %+v", sess)
	}
	if m.State() != StateSigned {
		t.Fatalf("state = %s, want signed", m.State())
	}

	if err := st.Save(store.EntityOwner, accountA.Hex(), map[string]string{"name": "Ada"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", m.State())
	}
	if m.Session() != nil {
		t.Fatal("session survived disconnect")
	}

	var out map[string]string
	found, err := st.Load(store.EntityOwner, accountA.Hex(), &out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatal("persisted state survived disconnect")
	}

	events := notifier.seen()
	if len(events) != 2 || events[0] != "session_signed" || events[1] != "app_reset" {
		t.Fatalf("webhook events = %v", events)
	}
	if stub.Subscribers() != 0 {
		t.Fatalf("subscriptions leaked: %d", stub.Subscribers())
	}
}

func TestConnectNoProvider(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	if _, _, err := m.Connect(context.Background()); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestChainSwitchRefusalIsNonFatal(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 137)
	stub.SwitchChainFn = func(context.Context, *big.Int) error {
		return errors.New("user refused")
	}
	m, _, _ := newTestManager(t, stub)

	_, switched, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if switched {
		t.Fatal("switched should be false after refusal")
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}
	if m.ChainID().Int64() != 137 {
		t.Fatalf("chain = %v, want wallet chain 137", m.ChainID())
	}
}

func TestSignDeclinedKeepsConnection(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 1)
	stub.SignPersonalFn = func(context.Context, common.Address, []byte) ([]byte, error) {
		return nil, provider.ErrUserDeclined
	}
	m, _, notifier := newTestManager(t, stub)

	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.SignSession(context.Background()); !errors.Is(err, provider.ErrUserDeclined) {
		t.Fatalf("err = %v, want ErrUserDeclined", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %s, want connected after decline", m.State())
	}
	if m.Session() != nil {
		t.Fatal("declined signing must not produce a session")
	}
	if len(notifier.seen()) != 0 {
		t.Fatalf("unexpected webhook events: %v", notifier.seen())
	}
}

func TestAccountSwitchInvalidatesSession(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 1)
	m, _, _ := newTestManager(t, stub)
	ctx := context.Background()

	changes := make(chan Change, 4)
	sub := m.SubscribeChanges(changes)
	defer sub.Unsubscribe()

	if _, _, err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.SignSession(ctx); err != nil {
		t.Fatalf("sign: %v", err)
	}
	<-changes // ReasonConnect
	_, before := m.Active()

	stub.Fire(provider.Event{Type: provider.AccountsChanged, Accounts: []common.Address{accountB}})

	var change Change
	select {
	case change = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change published after account switch")
	}
	if change.Reason != ReasonAccountSwitch || change.Account != accountB {
		t.Fatalf("change = %+v", change)
	}
	if m.Session() != nil {
		t.Fatal("session survived account switch")
	}
	if m.IsCurrent(before) {
		t.Fatal("epoch did not advance on account switch")
	}
	account, _ := m.Active()
	if account != accountB {
		t.Fatalf("active account = %s, want %s", account.Hex(), accountB.Hex())
	}
}

func TestProviderDisconnectTearsDown(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 1)
	m, _, _ := newTestManager(t, stub)

	if _, _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stub.Fire(provider.Event{Type: provider.Disconnected})

	waitFor(t, "teardown", func() bool { return m.State() == StateDisconnected })
	waitFor(t, "unsubscribe", func() bool { return stub.Subscribers() == 0 })
}

func TestDisconnectIdempotent(t *testing.T) {
	stub := scriptedStub([]common.Address{accountA}, 1)
	m, _, notifier := newTestManager(t, stub)
	ctx := context.Background()

	if _, _, err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	resets := 0
	for _, ev := range notifier.seen() {
		if ev == "app_reset" {
			resets++
		}
	}
	if resets != 1 {
		t.Fatalf("app_reset fired %d times, want 1", resets)
	}
}
