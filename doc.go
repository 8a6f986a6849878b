// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mucd implements the occupancy engine of a Multi-User Chat service.
//
// Unlike the client side of Multi-User Chat (for which see mellium.im/xmpp/muc)
// this package takes the perspective of the server hosting the rooms: it turns
// the stream of presence, message, and IQ stanzas addressed to a room into
// consistent membership state and correctly routed traffic.
//
// The package deliberately does not implement the room itself. Subject
// storage, history, configuration, and persistence differ wildly between
// deployments, so the room is an opaque capability reached through the Room
// interface and registered in a directory (see the directory package). What
// this package owns is everything around the room: the identity of a user
// within a room (Occupant), the closed set of failure kinds that room
// operations may report (Error), and the wire envelopes exchanged with
// clients.
//
// Inbound stanzas enter the engine through a session.Manager, which owns one
// session.Session per connected real address and routes each stanza into a
// join, leave, nickname change, broadcast, private delivery, or administration
// flow.
package mucd // import "mellium.im/mucd"
