package dispatch

import (
	"sync"
)

// ActivationState is the state of one activation key in the ledger.
type ActivationState int

// Activation states. Unattempted is never stored: absent keys are
// unattempted.
const (
	Unattempted ActivationState = iota
	Loading
	Activated
	Failed
)

func (s ActivationState) String() string {
	switch s {
	case Unattempted:
		return "unattempted"
	case Loading:
		return "loading"
	case Activated:
		return "activated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ledger records which activation keys were attempted in the current scene.
//
// Keys move Unattempted -> Loading -> Activated or Failed. A Failed key may
// be loaded again on a later event; an Activated key stays activated until
// the scene changes. Every scene change starts a new generation, and
// completions carrying an older generation are ignored.
//
// The ledger is mutated by the dispatch goroutine only; the lock lets other
// goroutines read it.
type Ledger struct {
	mu         sync.RWMutex
	entries    map[string]ActivationState
	scene      string
	generation uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]ActivationState)}
}

// ShouldActivate reports whether a load may start for key.
func (l *Ledger) ShouldActivate(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.entries[key] {
	case Unattempted, Failed:
		return true
	default:
		return false
	}
}

// Begin marks key as loading and returns the generation the load belongs to.
func (l *Ledger) Begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = Loading
	return l.generation
}

// MarkActivated records the outcome of the load of key started in
// generation gen. It reports false when the outcome was ignored because the
// scene changed since, or key is not loading.
func (l *Ledger) MarkActivated(key string, gen uint64, success bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generation || l.entries[key] != Loading {
		return false
	}
	if success {
		l.entries[key] = Activated
	} else {
		l.entries[key] = Failed
	}
	return true
}

// Forget returns a loading key of generation gen to Unattempted. It is used
// when no module was resolved for the key.
func (l *Ledger) Forget(key string, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generation || l.entries[key] != Loading {
		return false
	}
	delete(l.entries, key)
	return true
}

// ResetOnSceneChange clears the ledger and starts a new generation when
// sceneID differs from the last observed scene. It reports whether a reset
// happened.
func (l *Ledger) ResetOnSceneChange(sceneID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sceneID == l.scene {
		return false
	}
	l.scene = sceneID
	l.entries = make(map[string]ActivationState)
	l.generation++
	return true
}

// State returns the state of key.
func (l *Ledger) State(key string) ActivationState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.entries[key]
}

// Scene returns the last observed scene.
func (l *Ledger) Scene() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.scene
}

// Generation returns the current generation.
func (l *Ledger) Generation() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.generation
}

// Snapshot returns a copy of every attempted key and its state.
func (l *Ledger) Snapshot() map[string]ActivationState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := make(map[string]ActivationState, len(l.entries))
	for k, v := range l.entries {
		s[k] = v
	}
	return s
}
