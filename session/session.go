// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package session

import (
	"sync"
	"time"

	"mellium.im/xmpp/jid"

	"mellium.im/mucd"
)

// Session is the per-user stanza router. It holds the occupancies the user
// currently has, at most one per room, keyed by the room's address.
//
// Sessions are retired by the embedding server when the user disconnects; the
// engine only creates them.
type Session struct {
	mgr  *Manager
	addr jid.JID

	mu           sync.Mutex
	occupancies  map[string]*mucd.Occupant
	lastActivity time.Time
}

func newSession(m *Manager, addr jid.JID) *Session {
	return &Session{
		mgr:         m,
		addr:        addr,
		occupancies: make(map[string]*mucd.Occupant),
	}
}

// Addr returns the real address the session belongs to.
func (s *Session) Addr() jid.JID {
	return s.addr
}

// LastActivity returns the time the session last processed a stanza.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Occupant returns the user's occupancy in the room with the given address,
// if any.
func (s *Session) Occupant(room jid.JID) (*mucd.Occupant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occupancies[roomKey(room)]
	return o, ok
}

// Rooms returns the addresses of the rooms the user is in.
func (s *Session) Rooms() []jid.JID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jid.JID, 0, len(s.occupancies))
	for _, o := range s.occupancies {
		out = append(out, o.Room().Addr())
	}
	return out
}

// Process handles one stanza sent by the user. All results are emitted as
// stanzas through the router; Process itself never reports failure to the
// caller.
func (s *Session) Process(st mucd.Stanza) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	switch st := st.(type) {
	case *mucd.Presence:
		s.processPresence(st)
	case *mucd.Message:
		s.processMessage(st)
	case *mucd.IQ:
		s.processIQ(st)
	}
}

func (s *Session) occupant(key string) (*mucd.Occupant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occupancies[key]
	return o, ok
}

func (s *Session) setOccupant(key string, o *mucd.Occupant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occupancies[key] = o
}

func (s *Session) removeOccupant(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.occupancies, key)
}

func (s *Session) reply(st mucd.Stanza) {
	s.mgr.router.Route(st)
}
