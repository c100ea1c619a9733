package session

import "sync"

// notifier fans state changes out to subscribers. Each subscriber channel
// holds at most one pending state; a newer state replaces an unread one so
// slow consumers always catch up to the latest value without blocking the
// manager.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]chan State
	nextID int
	closed bool
}

func (n *notifier) subscribe() (<-chan State, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan State, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	if n.subs == nil {
		n.subs = make(map[int]chan State)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *notifier) notify(s State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Replace the stale pending value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
