package ledger

import "sync"

// Gate is the batched-read critical section shared by Ledger implementations.
// At most one window is open at a time and writes are refused while it is.
type Gate struct {
	mu   sync.Mutex
	open bool
}

// Enter opens the window, failing if one is already open.
func (g *Gate) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return ErrBatchOpen
	}
	g.open = true
	return nil
}

// Leave closes the window. Closing an already closed window is a no-op.
func (g *Gate) Leave() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

// CheckWrite fails while a window is open.
func (g *Gate) CheckWrite() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return ErrBatchOpen
	}
	return nil
}
