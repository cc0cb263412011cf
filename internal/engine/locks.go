package engine

import "sync"

// actorLocks serializes mutating operations per actor. Different actors are
// independent, so a keyed mutex avoids a global bottleneck; the partial
// unique indexes in storage back the same invariants.
type actorLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newActorLocks() *actorLocks {
	return &actorLocks{m: make(map[string]*sync.Mutex)}
}

func (l *actorLocks) lock(actorID string) func() {
	l.mu.Lock()
	am, ok := l.m[actorID]
	if !ok {
		am = &sync.Mutex{}
		l.m[actorID] = am
	}
	l.mu.Unlock()
	am.Lock()
	return am.Unlock
}
