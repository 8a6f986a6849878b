// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package directory implements the replicated registries that map room names
// to rooms and user addresses to sessions.
//
// A directory wraps a Store, the replication capability supplied by the
// embedding server, and adds two things on top of it: per-key locking as the
// serialization point for all work on a room or user, and a node-local record
// of the entries this node authored so that they can be replayed into a fresh
// store after a cluster membership change.
package directory // import "mellium.im/mucd/directory"

import (
	"sync"

	"github.com/rs/zerolog"
)

// Store is a replicated key/value map. Implementations are expected to back
// it with a distributed cache; Memory provides a process-local one.
//
// Lock returns the mutual exclusion handle for a key, not yet acquired.
// Callers must hold the key's lock while calling Put or Remove; Get may be
// called without it for best-effort reads. Locking is per key, never global.
type Store[V any] interface {
	Lock(key string) sync.Locker
	Get(key string) (V, bool)
	Put(key string, v V)
	Remove(key string)
}

// Directory is a Store wrapper that remembers which entries this node wrote.
//
// Mutations through Put and Remove are applied to the store and mirrored in
// the node-local record. A value mutated in memory is invisible to other
// nodes, and to this node's next Get, until it is published with Put again.
type Directory[V any] struct {
	name   string
	equal  func(a, b V) bool
	logger zerolog.Logger

	mu    sync.Mutex
	store Store[V]
	local map[string]V
}

// New creates a directory over the given store. The name is used only for
// logging. The equal function decides whether a locally authored value and a
// cluster value are the same entry during rehydration.
func New[V any](name string, store Store[V], equal func(a, b V) bool, logger zerolog.Logger) *Directory[V] {
	return &Directory[V]{
		name:   name,
		equal:  equal,
		logger: logger,
		store:  store,
		local:  make(map[string]V),
	}
}

// Lock returns the lock handle for key. All mutations of the state filed
// under key must happen while holding it.
func (d *Directory[V]) Lock(key string) sync.Locker {
	d.mu.Lock()
	store := d.store
	d.mu.Unlock()
	return store.Lock(key)
}

// Get looks the key up in the replicated store.
func (d *Directory[V]) Get(key string) (V, bool) {
	d.mu.Lock()
	store := d.store
	d.mu.Unlock()
	return store.Get(key)
}

// Put publishes a value to the replicated store and records it as authored by
// this node. The caller must hold the key's lock.
func (d *Directory[V]) Put(key string, v V) {
	d.mu.Lock()
	store := d.store
	d.local[key] = v
	d.mu.Unlock()
	store.Put(key, v)
}

// Remove deletes the key from the replicated store and from this node's
// record. The caller must hold the key's lock.
func (d *Directory[V]) Remove(key string) {
	d.mu.Lock()
	store := d.store
	delete(d.local, key)
	d.mu.Unlock()
	store.Remove(key)
}

// RestoreLocalContent replays the entries this node authored into the store.
// A key the store no longer has is inserted. A key the store has with a
// different value is a conflict between this node's history and the
// cluster's: the conflict is logged and the cluster's value kept.
//
// It is called after the store lost content this node contributed, typically
// because a cluster membership change rebuilt it.
func (d *Directory[V]) RestoreLocalContent() {
	d.mu.Lock()
	store := d.store
	local := make(map[string]V, len(d.local))
	for k, v := range d.local {
		local[k] = v
	}
	d.mu.Unlock()

	restored := 0
	for key, mine := range local {
		l := store.Lock(key)
		l.Lock()
		theirs, ok := store.Get(key)
		switch {
		case !ok:
			store.Put(key, mine)
			restored++
		case !d.equal(mine, theirs):
			d.logger.Warn().
				Str("directory", d.name).
				Str("key", key).
				Msg("locally authored entry conflicts with cluster entry, keeping cluster entry")
		}
		l.Unlock()
	}
	d.logger.Info().
		Str("directory", d.name).
		Int("restored", restored).
		Int("authored", len(local)).
		Msg("restored local directory content")
}

// SwapStore replaces the backing store and replays this node's entries into
// it. It is the entry point for cluster join and leave events, where the
// replicated cache is exchanged for a different implementation.
func (d *Directory[V]) SwapStore(store Store[V]) {
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()
	d.RestoreLocalContent()
}
