/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fetchpool

import "sync"

type outcome[V any] struct {
	val V
	err error
}

// pendingFetch is an in-flight fetch for a single key shared by all its current subscribers.
type pendingFetch[V any] struct {
	subscribers []chan outcome[V]
}

// pendingGroup holds at most one pendingFetch per key.
type pendingGroup[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*pendingFetch[V]
}

func newPendingGroup[K comparable, V any]() *pendingGroup[K, V] {
	return &pendingGroup[K, V]{m: make(map[K]*pendingFetch[V])}
}

// subscribe attaches a new subscriber to the pending fetch for the key.
// If there is no pending fetch, it is created and created is true.
// Channels are buffered, so settle never blocks on a subscriber that has stopped waiting.
func (g *pendingGroup[K, V]) subscribe(key K) (ch <-chan outcome[V], created bool) {
	sub := make(chan outcome[V], 1)

	g.mu.Lock()
	defer g.mu.Unlock()

	if pf, ok := g.m[key]; ok {
		pf.subscribers = append(pf.subscribers, sub)
		return sub, false
	}
	g.m[key] = &pendingFetch[V]{subscribers: []chan outcome[V]{sub}}
	return sub, true
}

// settle removes the pending fetch for the key and delivers the outcome to its subscribers
// in the order they were attached. A later subscribe for the key starts a new fetch cycle.
func (g *pendingGroup[K, V]) settle(key K, res outcome[V]) {
	g.mu.Lock()
	pf, ok := g.m[key]
	delete(g.m, key)
	g.mu.Unlock()

	if !ok {
		return
	}
	for _, sub := range pf.subscribers {
		sub <- res
	}
}

func (g *pendingGroup[K, V]) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
