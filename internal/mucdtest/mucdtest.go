// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mucdtest provides fakes for testing the occupancy engine: a router
// that records what it routes, an in-memory room, and stub room management
// and group resolution.
package mucdtest // import "mellium.im/mucd/internal/mucdtest"

import (
	"sync"

	"mellium.im/xmpp/jid"

	"mellium.im/mucd"
)

// Router records every stanza routed through it.
type Router struct {
	mu      sync.Mutex
	stanzas []mucd.Stanza
}

// Route satisfies mucd.Router.
func (r *Router) Route(s mucd.Stanza) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stanzas = append(r.stanzas, s)
}

// Stanzas returns everything routed so far.
func (r *Router) Stanzas() []mucd.Stanza {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mucd.Stanza(nil), r.stanzas...)
}

// Presences returns the routed presence stanzas.
func (r *Router) Presences() []*mucd.Presence {
	var out []*mucd.Presence
	for _, s := range r.Stanzas() {
		if p, ok := s.(*mucd.Presence); ok {
			out = append(out, p)
		}
	}
	return out
}

// Messages returns the routed message stanzas.
func (r *Router) Messages() []*mucd.Message {
	var out []*mucd.Message
	for _, s := range r.Stanzas() {
		if m, ok := s.(*mucd.Message); ok {
			out = append(out, m)
		}
	}
	return out
}

// IQs returns the routed iq stanzas.
func (r *Router) IQs() []*mucd.IQ {
	var out []*mucd.IQ
	for _, s := range r.Stanzas() {
		if iq, ok := s.(*mucd.IQ); ok {
			out = append(out, iq)
		}
	}
	return out
}

// Last returns the most recently routed stanza, or nil.
func (r *Router) Last() mucd.Stanza {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stanzas) == 0 {
		return nil
	}
	return r.stanzas[len(r.stanzas)-1]
}

// Reset discards the recorded stanzas.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stanzas = nil
}

// RoomManager creates mucdtest rooms on demand.
type RoomManager struct {
	// Service is the domain part of created room addresses.
	Service string
	// Router is handed to every created room.
	Router *Router
	// CreateErr, when set, refuses every creation attempt.
	CreateErr error
	// Configure, when set, is applied to every room before it is returned.
	Configure func(*Room)

	mu      sync.Mutex
	created []*Room
}

// CreateRoom satisfies mucd.RoomManager.
func (m *RoomManager) CreateRoom(name string, creator jid.JID) (mucd.Room, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	addr, err := jid.New(name, m.Service, "")
	if err != nil {
		return nil, err
	}
	r := NewRoom(addr, m.Router)
	if m.Configure != nil {
		m.Configure(r)
	}
	m.mu.Lock()
	m.created = append(m.created, r)
	m.mu.Unlock()
	return r, nil
}

// Created returns the rooms created so far.
func (m *RoomManager) Created() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Room(nil), m.created...)
}

// Groups resolves group addresses from a static map keyed by the group's
// bare address.
type Groups struct {
	Member map[string][]jid.JID
}

// IsGroup satisfies mucd.Groups.
func (g *Groups) IsGroup(j jid.JID) bool {
	if g == nil || g.Member == nil {
		return false
	}
	_, ok := g.Member[j.Bare().String()]
	return ok
}

// Members satisfies mucd.Groups.
func (g *Groups) Members(j jid.JID) ([]jid.JID, error) {
	return g.Member[j.Bare().String()], nil
}
