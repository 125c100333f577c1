package cache

import "sync"

// Epoch orders response fills against purges within one process. A fill
// that started before a purge is dropped instead of stored, so a handler
// that read pre-mutation data cannot repopulate a purged key.
type Epoch struct {
	mu sync.RWMutex
	n  uint64
}

func (e *Epoch) Current() uint64 {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.n
}

// Fill runs store only if no purge happened since the epoch was read. It
// reports whether store ran.
func (e *Epoch) Fill(since uint64, store func() error) (bool, error) {
	if e == nil {
		return true, store()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.n != since {
		return false, nil
	}
	return true, store()
}

// Purge advances the epoch and runs purge while fills are held off.
func (e *Epoch) Purge(purge func() error) error {
	if e == nil {
		return purge()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	return purge()
}
