package commands

import "sync"

// Inflight tracks the command handlers a transport has started so shutdown
// can wait for them. After CloseAndWait no new handler starts.
type Inflight struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// Go runs fn in its own goroutine and reports false when the tracker is
// already closing.
func (f *Inflight) Go(fn func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closing {
		return false
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
	return true
}

func (f *Inflight) CloseAndWait() {
	f.mu.Lock()
	f.closing = true
	f.mu.Unlock()
	f.wg.Wait()
}
