package client

import (
	"context"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"typestake/internal/chain"
	"typestake/internal/domain"
	apihttp "typestake/internal/http"
	"typestake/internal/http/handlers"
	"typestake/internal/repository"
	"typestake/internal/retry"
	"typestake/internal/service"
	"typestake/internal/signer"
	"typestake/internal/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const verifierKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

// fakeChain is an in-memory settlement contract. Seeds are delivered either
// immediately (autoSeed) or by calling fulfil*.
type fakeChain struct {
	mu       sync.Mutex
	sessions map[common.Address]*domain.GameSession
	duels    map[uint64]*domain.Duel
	seq      uint64
	nextDuel uint64
	block    uint64
	feeBps   uint64
	feeErr   error
	autoSeed bool
	calls    map[string]int
	failNext map[string]error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		sessions: make(map[common.Address]*domain.GameSession),
		duels:    make(map[uint64]*domain.Duel),
		feeBps:   500,
		autoSeed: true,
		calls:    make(map[string]int),
		failNext: make(map[string]error),
	}
}

func (f *fakeChain) Session(_ context.Context, player common.Address) (*domain.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[player]; ok {
		cp := *s
		return &cp, nil
	}
	return &domain.GameSession{Player: player}, nil
}

func (f *fakeChain) Duel(_ context.Context, id uint64) (*domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.duels[id]; ok {
		cp := *d
		return &cp, nil
	}
	return &domain.Duel{ID: id}, nil
}

func (f *fakeChain) CancelFeeBps(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeBps, f.feeErr
}

func (f *fakeChain) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeChain) fulfilSession(player common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[player]
	s.Fulfilled = true
	s.RandomSeed = big.NewInt(int64(1000 + s.SequenceNumber))
}

func (f *fakeChain) fulfilDuel(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.duels[id]
	d.Fulfilled = true
	d.RandomSeed = big.NewInt(int64(7000 + id))
}

func (f *fakeChain) account(from common.Address) *fakeAccount {
	return &fakeAccount{chain: f, from: from}
}

// begin counts the call, pops an injected failure and returns a receipt
// skeleton. Callers hold no lock.
func (f *fakeChain) begin(op string) (*chain.Receipt, error) {
	f.calls[op]++
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return nil, err
	}
	f.block++
	return &chain.Receipt{
		TxHash:      common.BigToHash(new(big.Int).SetUint64(f.block)),
		BlockNumber: f.block,
	}, nil
}

func revert(op, reason string) error {
	return &domain.ChainTransactionError{Operation: op, Reason: reason}
}

// fakeAccount is a Transactor for one player on a fakeChain.
type fakeAccount struct {
	chain *fakeChain
	from  common.Address
}

func (a *fakeAccount) From() common.Address { return a.from }

func (a *fakeAccount) ApproveStake(_ context.Context, amount *big.Int) (*chain.Receipt, error) {
	a.chain.mu.Lock()
	defer a.chain.mu.Unlock()
	return a.chain.begin("ApproveStake")
}

func (a *fakeAccount) StartGame(_ context.Context, stake *big.Int) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("StartGame")
	if err != nil {
		return nil, err
	}
	if s, ok := f.sessions[a.from]; ok && s.Active {
		return nil, revert("startGame", "session already active")
	}
	f.seq++
	s := &domain.GameSession{Player: a.from, SequenceNumber: f.seq, Stake: new(big.Int).Set(stake), Active: true}
	if f.autoSeed {
		s.Fulfilled = true
		s.RandomSeed = big.NewInt(int64(1000 + f.seq))
	}
	f.sessions[a.from] = s
	r.Events = append(r.Events, chain.Event{Name: chain.EventGameStarted, SequenceNumber: f.seq, Player: a.from, Amount: stake})
	return r, nil
}

func (a *fakeAccount) SettleGame(_ context.Context, p domain.SoloSettlement, sig []byte) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("SettleGame")
	if err != nil {
		return nil, err
	}
	s, ok := f.sessions[a.from]
	if !ok || !s.Active || !s.Fulfilled || s.SequenceNumber != p.SequenceNumber || len(sig) != 65 {
		return nil, revert("settleGame", "bad settlement")
	}
	s.Active = false
	paid := new(big.Int).Set(s.Stake)
	r.Events = append(r.Events, chain.Event{Name: chain.EventGameSettled, SequenceNumber: s.SequenceNumber, Player: a.from, Amount: paid})
	return r, nil
}

func (a *fakeAccount) CancelSession(context.Context) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("CancelSession")
	if err != nil {
		return nil, err
	}
	s, ok := f.sessions[a.from]
	if !ok || !s.Active || s.Fulfilled {
		return nil, revert("cancelSession", "not cancellable")
	}
	s.Active = false
	r.Events = append(r.Events, chain.Event{Name: chain.EventSessionCancelled, SequenceNumber: s.SequenceNumber, Player: a.from, Amount: f.refund(s.Stake)})
	return r, nil
}

func (a *fakeAccount) CreateDuel(_ context.Context, stake *big.Int) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("CreateDuel")
	if err != nil {
		return nil, err
	}
	f.nextDuel++
	f.duels[f.nextDuel] = &domain.Duel{ID: f.nextDuel, Player1: a.from, Stake: new(big.Int).Set(stake), Active: true}
	r.Events = append(r.Events, chain.Event{Name: chain.EventDuelCreated, DuelID: f.nextDuel, Player: a.from, Amount: stake})
	return r, nil
}

func (a *fakeAccount) JoinDuel(_ context.Context, id uint64) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("JoinDuel")
	if err != nil {
		return nil, err
	}
	d, ok := f.duels[id]
	if !ok || !d.Open() {
		return nil, revert("joinDuel", "duel not open")
	}
	d.Player2 = a.from
	if f.autoSeed {
		d.Fulfilled = true
		d.RandomSeed = big.NewInt(int64(7000 + id))
	}
	r.Events = append(r.Events, chain.Event{Name: chain.EventDuelJoined, DuelID: id, Player: a.from})
	return r, nil
}

func (a *fakeAccount) SettleDuel(_ context.Context, p domain.DuelSettlement, sig []byte) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("SettleDuel")
	if err != nil {
		return nil, err
	}
	d, ok := f.duels[p.DuelID]
	if !ok || !d.Active || !d.Fulfilled || len(sig) != 65 {
		return nil, revert("settleDuel", "duel not settleable")
	}
	winner := common.HexToAddress(p.Winner)
	if !d.HasPlayer(winner) {
		return nil, revert("settleDuel", "winner is not a duelist")
	}
	d.Active = false
	pot := new(big.Int).Mul(d.Stake, big.NewInt(2))
	r.Events = append(r.Events, chain.Event{Name: chain.EventDuelSettled, DuelID: d.ID, Player: winner, Amount: pot})
	return r, nil
}

func (a *fakeAccount) CancelDuel(_ context.Context, id uint64) (*chain.Receipt, error) {
	f := a.chain
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.begin("CancelDuel")
	if err != nil {
		return nil, err
	}
	d, ok := f.duels[id]
	if !ok || !d.Active || d.Fulfilled || !d.HasPlayer(a.from) {
		return nil, revert("cancelDuel", "not cancellable")
	}
	d.Active = false
	r.Events = append(r.Events, chain.Event{Name: chain.EventDuelCancelled, DuelID: id, Amount: f.refund(d.Stake)})
	return r, nil
}

func (f *fakeChain) refund(stake *big.Int) *big.Int {
	fee := new(big.Int).Mul(stake, new(big.Int).SetUint64(f.feeBps))
	fee.Quo(fee, big.NewInt(10_000))
	return new(big.Int).Sub(stake, fee)
}

// testServer is the real settlement API over httptest, reading duel players
// from reader.
type testServer struct {
	URL     string
	results *repository.MemoryDuelResultStore
	records *repository.MemoryDuelRecordStore
}

func newTestServer(t *testing.T, reader chain.StateReader) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("client-test-secret")

	audit := service.NewAuditService(repository.NewMemoryAuditStore())
	sign, err := signer.New(verifierKey, audit)
	require.NoError(t, err)

	hub := ws.NewHub()
	results := repository.NewMemoryDuelResultStore()
	records := repository.NewMemoryDuelRecordStore()
	h := handlers.NewHandler(
		service.NewSettlementService(sign, results, reader),
		service.NewResultSyncService(results, hub).WithReader(reader),
		service.NewDuelRecordService(records, audit),
		service.NewWalletAuthService(service.NewMemoryNonceStore(), audit),
	)

	r := gin.New()
	apihttp.RegisterRoutes(r, h, handlers.NewHealthHandler("test"), hub, apihttp.RouteConfig{
		APIRateLimit:    10_000,
		APIRateWindow:   time.Minute,
		SettleRateLimit: 10_000,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, results: results, records: records}
}

// fast policies keep tests from sleeping for real budgets.
var (
	fastPolicy  = retry.Constant(50, 5*time.Millisecond)
	quickPolicy = retry.Constant(3, time.Millisecond)
)

func newTestAPI(url string) *API {
	return NewAPI(url).WithPolicy(quickPolicy)
}
