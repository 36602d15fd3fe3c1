package aggregator

import (
	"fmt"

	"github.com/teemow/agenda/internal/account"
)

// DefaultMaxListeners bounds the number of refresh listeners.
const DefaultMaxListeners = 16

// RefreshListener receives accounts whose credentials or status changed
// during a fetch.
type RefreshListener func(account.Account)

type listenerEntry struct {
	id int
	fn RefreshListener
}

// AddRefreshListener registers fn and returns a function that removes it.
// Listeners run synchronously, in registration order, on the goroutine that
// refreshed the account; they may be invoked concurrently for different
// pairs and must be safe for that.
func (a *Aggregator) AddRefreshListener(fn RefreshListener) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.listeners) >= a.maxListeners {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyListeners, a.maxListeners)
	}

	a.nextListenerID++
	id := a.nextListenerID
	a.listeners = append(a.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, l := range a.listeners {
			if l.id == id {
				a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
				return
			}
		}
	}, nil
}

func (a *Aggregator) broadcast(acc account.Account) {
	a.mu.Lock()
	listeners := make([]listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		l.fn(acc.Clone())
	}
}
