package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultWatchInterval = 2 * time.Second
	maxBlockRange        = 2000
	// Seen keys older than this many blocks behind the cursor are forgotten.
	seenRetention = 128
)

// LogSource is the part of an RPC client the watcher polls.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Filter selects events for a subscription. Nil fields match anything.
type Filter struct {
	Events         []string
	DuelID         *uint64
	SequenceNumber *uint64
	Player         *common.Address
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev Event) bool {
	if len(f.Events) > 0 {
		found := false
		for _, name := range f.Events {
			if name == ev.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DuelID != nil && ev.DuelID != *f.DuelID {
		return false
	}
	if f.SequenceNumber != nil && ev.SequenceNumber != *f.SequenceNumber {
		return false
	}
	// Seed events carry no player, so a player filter lets them through.
	if f.Player != nil && ev.Player != (common.Address{}) && ev.Player != *f.Player {
		return false
	}
	return true
}

// ForDuel matches every event of one duel. Subscriptions built from it end
// on their own once the duel is settled or cancelled.
func ForDuel(duelID uint64) Filter {
	return Filter{DuelID: &duelID}
}

// Watcher polls contract logs and fans them out to subscribers. Every log is
// delivered at most once per subscription, keyed by (tx hash, log index).
type Watcher struct {
	src      LogSource
	address  common.Address
	interval time.Duration

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	cursor uint64 // next block to scan
	primed bool
	seen   map[logKey]uint64
}

// NewWatcher watches the contract at address. A zero interval uses
// DefaultWatchInterval.
func NewWatcher(src LogSource, address common.Address, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		src:      src,
		address:  address,
		interval: interval,
		subs:     make(map[*Subscription]struct{}),
		seen:     make(map[logKey]uint64),
	}
}

// StartAt makes the first poll scan from block instead of the current tip.
func (w *Watcher) StartAt(block uint64) {
	w.mu.Lock()
	w.cursor = block
	w.primed = true
	w.mu.Unlock()
}

// Run polls until ctx is done, then ends every open subscription.
func (w *Watcher) Run(ctx context.Context) {
	log := logger.Component("watcher", "contract", w.address.Hex())
	log.Info("watcher started", "interval", w.interval)
	defer log.Info("watcher stopped")
	defer w.closeAll()

	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	tip, err := w.src.BlockNumber(ctx)
	if err != nil {
		logger.Debug("watcher: block number failed", "error", err)
		return
	}

	w.mu.Lock()
	if !w.primed {
		w.cursor = tip
		w.primed = true
	}
	from := w.cursor
	w.mu.Unlock()

	for from <= tip {
		to := from + maxBlockRange - 1
		if to > tip {
			to = tip
		}
		logs, err := w.src.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{w.address},
		})
		if err != nil {
			// cursor stays put, the range is retried next tick
			logger.Warn("watcher: filter logs failed", "from", from, "to", to, "error", err)
			return
		}
		for _, l := range logs {
			if l.Removed {
				continue
			}
			ev, ok := DecodeLog(l)
			if !ok {
				continue
			}
			w.dispatch(ev)
		}
		from = to + 1
		w.mu.Lock()
		w.cursor = from
		w.prune()
		w.mu.Unlock()
	}
}

func (w *Watcher) dispatch(ev Event) {
	w.mu.Lock()
	if _, dup := w.seen[ev.key()]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[ev.key()] = ev.BlockNumber
	targets := make([]*Subscription, 0, len(w.subs))
	for s := range w.subs {
		if s.filter.Match(ev) {
			targets = append(targets, s)
		}
	}
	w.mu.Unlock()

	for _, s := range targets {
		last := ev.Terminal() && s.filter.DuelID != nil
		s.push(ev, last)
	}
}

// prune drops dedupe keys far enough behind the cursor. Caller holds w.mu.
func (w *Watcher) prune() {
	if w.cursor <= seenRetention {
		return
	}
	floor := w.cursor - seenRetention
	for k, block := range w.seen {
		if block < floor {
			delete(w.seen, k)
		}
	}
}

// Subscribe registers f. The returned subscription must be released with
// Unsubscribe unless it ends on its own.
func (w *Watcher) Subscribe(f Filter) *Subscription {
	s := &Subscription{
		w:      w,
		filter: f,
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.mu.Lock()
	w.subs[s] = struct{}{}
	w.mu.Unlock()
	go s.pump()
	return s
}

func (w *Watcher) remove(s *Subscription) {
	w.mu.Lock()
	delete(w.subs, s)
	w.mu.Unlock()
}

func (w *Watcher) closeAll() {
	w.mu.Lock()
	subs := make([]*Subscription, 0, len(w.subs))
	for s := range w.subs {
		subs = append(subs, s)
	}
	w.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Subscriptions returns the number of live subscriptions.
func (w *Watcher) Subscriptions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Subscription delivers matching events in order. The queue is unbounded so
// a slow reader never makes the watcher drop events.
type Subscription struct {
	w      *Watcher
	filter Filter

	mu      sync.Mutex
	queue   []Event
	closing bool

	out    chan Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// C yields events; it is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.out }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe ends the subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.w.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(ev Event, last bool) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	if last {
		s.closing = true
	}
	s.mu.Unlock()

	if last {
		s.w.remove(s)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		var (
			next    Event
			have    bool
			closing = s.closing
		)
		if len(s.queue) > 0 {
			next, have = s.queue[0], true
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !have {
			if closing {
				s.Unsubscribe()
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
