package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gaslessSwap/internal/model"
)

const (
	EventLiquidityAdded     = model.EventLiquidityAdded
	EventTokenSwapped       = model.EventTokenSwapped
	EventEmergencyWithdrawn = model.EventEmergencyWithdrawn
)

// maxEventHistory bounds what Events returns; older events are dropped.
const maxEventHistory = 1024

// Event is a structured ledger notification. Fields not used by Name are nil/zero.
// Seq is assigned under the pool lock, so it follows mutation order.
type Event struct {
	Seq       uint64
	Name      string
	Caller    common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	AmountA   *uint256.Int
	AmountB   *uint256.Int
}

// Subscribe registers fn for every future event. Callbacks run after the pool lock
// is released, one at a time and in Seq order. Under concurrent mutation fn may run
// on another mutating goroutine than the one that produced the event.
func (l *Ledger) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	l.evMu.Lock()
	l.subs = append(l.subs, fn)
	l.evMu.Unlock()
}

// Events returns the most recent events in Seq order, at most maxEventHistory.
func (l *Ledger) Events() []Event {
	l.evMu.Lock()
	defer l.evMu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// record stamps ev and queues it for delivery. Callers hold l.mu.
func (l *Ledger) record(ev Event) {
	l.seq++
	ev.Seq = l.seq

	l.evMu.Lock()
	l.events = append(l.events, ev)
	if over := len(l.events) - maxEventHistory; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	l.pending = append(l.pending, ev)
	l.evMu.Unlock()
}

// deliver drains queued events to subscribers. Callers must not hold l.mu. Only one
// goroutine drains at a time; the others leave their events to it.
func (l *Ledger) deliver() {
	l.evMu.Lock()
	if l.delivering {
		l.evMu.Unlock()
		return
	}
	l.delivering = true
	for len(l.pending) > 0 {
		batch := l.pending
		l.pending = nil
		subs := make([]func(Event), len(l.subs))
		copy(subs, l.subs)
		l.evMu.Unlock()

		for _, ev := range batch {
			for _, fn := range subs {
				fn(ev)
			}
		}

		l.evMu.Lock()
	}
	l.delivering = false
	l.evMu.Unlock()
}
