package anticheat

import "sync"

const historySize = 20

// Tracker keeps a bounded window of recent keystroke timestamps per
// player.
type Tracker struct {
	mu      sync.Mutex
	size    int
	history map[string][]int64
}

func NewTracker(size int) *Tracker {
	if size < 2 {
		size = 2
	}
	return &Tracker{size: size, history: make(map[string][]int64)}
}

// History returns a copy of the player's timestamps, oldest first.
func (t *Tracker) History(playerID string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[playerID]
	out := make([]int64, len(h))
	copy(out, h)
	return out
}

func (t *Tracker) Record(playerID string, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[playerID], ts)
	if len(h) > t.size {
		h = append(h[:0:0], h[len(h)-t.size:]...)
	}
	t.history[playerID] = h
}

func (t *Tracker) Forget(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, playerID)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}
