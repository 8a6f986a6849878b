// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package session routes the stanzas a user sends to the chat service.
//
// Every connected real address has at most one Session, looked up in a
// replicated user directory. The session owns the user's occupancies, one per
// joined room, and classifies each incoming stanza into the join, leave,
// nickname change, broadcast, private delivery, or administration flow.
package session // import "mellium.im/mucd/session"

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"

	"mellium.im/mucd"
	"mellium.im/mucd/admin"
	"mellium.im/mucd/directory"
)

// Config wires a Manager to its collaborators.
type Config struct {
	// Router delivers the stanzas the engine emits.
	Router mucd.Router

	// Rooms and Users are the backing stores of the two directories. When nil
	// a process-local store is used.
	Rooms directory.Store[mucd.Room]
	Users directory.Store[*Session]

	// RoomManager creates rooms when a join names one that does not exist.
	RoomManager mucd.RoomManager

	// Groups expands group addresses in affiliation lists and invitations.
	// May be nil when the deployment has no groups.
	Groups mucd.Groups

	// Service holds the service level options.
	Service mucd.Config

	Logger zerolog.Logger
}

// Manager is the entry point of the engine. The transport layer hands it
// every stanza addressed to the chat service; results are emitted as stanzas
// through the router, never as return values.
type Manager struct {
	router  mucd.Router
	rooms   *directory.Directory[mucd.Room]
	users   *directory.Directory[*Session]
	roomMgr mucd.RoomManager
	groups  mucd.Groups
	admin   *admin.Handler
	config  mucd.Config
	logger  zerolog.Logger
}

// New creates a manager from the given configuration.
func New(cfg Config) *Manager {
	roomStore := cfg.Rooms
	if roomStore == nil {
		roomStore = directory.NewMemory[mucd.Room]()
	}
	userStore := cfg.Users
	if userStore == nil {
		userStore = directory.NewMemory[*Session]()
	}
	m := &Manager{
		router: cfg.Router,
		rooms: directory.New("rooms", roomStore, func(a, b mucd.Room) bool {
			return a == b
		}, cfg.Logger),
		users: directory.New("users", userStore, func(a, b *Session) bool {
			return a == b
		}, cfg.Logger),
		roomMgr: cfg.RoomManager,
		groups:  cfg.Groups,
		config:  cfg.Service,
		logger:  cfg.Logger,
	}
	m.admin = &admin.Handler{
		Router: cfg.Router,
		Groups: cfg.Groups,
		Config: cfg.Service,
		Logger: cfg.Logger,
	}
	return m
}

// Rooms returns the room directory, so that the embedding server can swap its
// backing store on cluster membership changes.
func (m *Manager) Rooms() *directory.Directory[mucd.Room] {
	return m.rooms
}

// Users returns the user directory.
func (m *Manager) Users() *directory.Directory[*Session] {
	return m.users
}

// Process routes one stanza sent by a user. The sender's session is looked up
// or created under the sender's directory lock, which serializes all work on
// behalf of one real address, and published back once the stanza has been
// handled. A stanza without an id is stamped with a fresh one before any
// reply can echo it.
func (m *Manager) Process(s mucd.Stanza) {
	var from jid.JID
	switch s := s.(type) {
	case *mucd.Presence:
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		from = s.From
	case *mucd.Message:
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		from = s.From
	case *mucd.IQ:
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		from = s.From
	default:
		m.logger.Debug().Msg("dropping stanza of unknown kind")
		return
	}
	if from.Equal(jid.JID{}) {
		m.logger.Debug().Msg("dropping stanza without sender")
		return
	}

	key := userKey(from)
	l := m.users.Lock(key)
	l.Lock()
	defer l.Unlock()
	sess, ok := m.users.Get(key)
	if !ok {
		sess = newSession(m, from)
	}
	sess.Process(s)
	m.users.Put(key, sess)
}

// userKey is the user directory key for a real address.
func userKey(addr jid.JID) string {
	return strings.ToLower(addr.String())
}

// roomKey is the room directory key for a room address. Room names compare
// case-insensitively.
func roomKey(addr jid.JID) string {
	return strings.ToLower(addr.Bare().String())
}
