package orders

import (
	"sync"

	"github.com/chiyaghar/teashop/internal/domain"
)

// Ledger is the process-local list of every order created by this instance.
// Entries are never evicted. Callers only ever see copies.
type Ledger struct {
	mu     sync.RWMutex
	orders []*domain.Order
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(o *domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, o.Clone())
}

func (l *Ledger) Find(id string) (*domain.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if o := l.lookup(id); o != nil {
		return o.Clone(), true
	}
	return nil, false
}

// Mutate applies fn to the stored order under the write lock and returns a
// copy of the result.
func (l *Ledger) Mutate(id string, fn func(*domain.Order)) (*domain.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.lookup(id)
	if o == nil {
		return nil, false
	}
	fn(o)
	return o.Clone(), true
}

// Recent returns up to limit orders, newest first.
func (l *Ledger) Recent(limit int) []domain.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.orders)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Order, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *l.orders[i].Clone())
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = nil
}

func (l *Ledger) lookup(id string) *domain.Order {
	for _, o := range l.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}
