// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
)

// Stanza is any outbound stanza handled by the engine. All of the envelope
// types of this package satisfy it.
type Stanza interface {
	xmlstream.Marshaler
}

// Router delivers outbound stanzas to their recipients. It is implemented by
// the packet router of the embedding server.
type Router interface {
	Route(s Stanza)
}

// Room is the chat room capability that the engine drives. The engine does
// not implement it: subject storage, history, configuration, and persistence
// belong to the embedding server.
//
// Operations report failures as Error values; the engine matches on the
// failure kind to pick the wire condition of the reply. Administrative
// operations return the presence updates they produced instead of
// broadcasting them, so that a request with several items is broadcast only
// once, after every item has been processed.
type Room interface {
	// Addr returns the bare address of the room.
	Addr() jid.JID

	// Self returns the occupant representing the room itself. Stanzas sent on
	// behalf of the room (rather than of a particular occupant) name it as
	// their sender.
	Self() *Occupant

	// Join admits a user to the room under the requested nickname, creating
	// and returning its Occupant. The presence is the join presence as sent by
	// the user; its From attribute is the user's real address.
	//
	// Reported failure kinds: Unauthorized, ServiceUnavailable, Conflict,
	// RoomLocked, Forbidden, RegistrationRequired, and NotAcceptable.
	Join(nick, password string, history *HistoryRequest, presence *Presence) (*Occupant, error)

	// Leave processes the departure of an occupant and broadcasts its
	// unavailable presence.
	Leave(o *Occupant) error

	// PresenceUpdated broadcasts a changed availability status.
	PresenceUpdated(o *Occupant, presence *Presence)

	// NicknameChanged broadcasts the availability of an occupant under its new
	// nickname after the engine has retired the old one.
	NicknameChanged(o *Occupant, presence *Presence, oldNick, newNick string)

	// Configuration consulted by the engine.
	MembersOnly() bool
	CanChangeNickname() bool
	CanAnyoneDiscoverJID() bool
	Locked() bool
	ManuallyLocked() bool
	FederationMode() FederationMode

	// Unlock opens a room that is locked pending initial configuration. It is
	// called when the creator did not send a MUC join request element and
	// therefore cannot be expected to ever configure the room.
	Unlock(actor *Occupant) error

	// IsSubjectChangeRequest classifies a message as a subject change. The
	// classification belongs to the room because it depends on how the room's
	// history treats bodyless messages.
	IsSubjectChangeRequest(m *Message) bool

	// ChangeSubject applies a subject change. Reported failure kind:
	// Forbidden.
	ChangeSubject(m *Message, sender *Occupant) error

	// Broadcast sends a public message to every occupant. Reported failure
	// kind: Forbidden (the sender may lack voice).
	Broadcast(m *Message, sender *Occupant) error

	// SendPrivate delivers a stanza to the occupant with the given nickname.
	// Reported failure kinds: Forbidden, NotFound.
	SendPrivate(s Stanza, toNick string, sender *Occupant) error

	// Send delivers a stanza to every occupant without the permission checks
	// of Broadcast. It is used for presence fan-out.
	Send(s Stanza, sender *Occupant)

	// SendInvitation sends a mediated invitation. The extra elements, if any,
	// are carried through to the invitee. Reported failure kinds: Forbidden,
	// Conflict, CannotBeInvited.
	SendInvitation(invitee jid.JID, reason string, sender *Occupant, extra []RawXML) error

	// SendInvitationRejection forwards a declined invitation to the original
	// inviter.
	SendInvitationRejection(to jid.JID, reason string, from jid.JID)

	// Occupant and affiliation enumeration.
	Moderators() []*Occupant
	Participants() []*Occupant
	OccupantsByNickname(nick string) []*Occupant
	OccupantsByBareJID(j jid.JID) []*Occupant
	HasOccupant(nick string) bool
	Affiliation(j jid.JID) muc.Affiliation
	Owners() []jid.JID
	Admins() []jid.JID
	Members() []jid.JID
	Outcasts() []jid.JID

	// Affiliation and role administration. The actor arguments carry the
	// privilege of the user making the change; the room enforces the
	// permission matrix and reports Forbidden, Conflict (an operation that
	// would leave the room without owners), or NotAllowed.
	AddOwner(j jid.JID, actor muc.Affiliation) ([]*Presence, error)
	AddAdmin(j jid.JID, actor muc.Affiliation) ([]*Presence, error)
	AddMember(j jid.JID, nick string, actor muc.Affiliation) ([]*Presence, error)
	AddOutcast(j jid.JID, reason string, actorJID jid.JID, actor muc.Affiliation, actorRole muc.Role) ([]*Presence, error)
	AddNone(j jid.JID, actor muc.Affiliation) ([]*Presence, error)
	AddModerator(j jid.JID, actor muc.Affiliation) ([]*Presence, error)
	AddParticipant(j jid.JID, reason string, actor muc.Affiliation, actorRole muc.Role) ([]*Presence, error)
	AddVisitor(j jid.JID, actor muc.Affiliation, actorRole muc.Role) ([]*Presence, error)
	Kick(j jid.JID, actor muc.Affiliation, actorRole muc.Role, actorJID jid.JID, reason string) ([]*Presence, error)

	// HandleOwnerIQ hands a muc#owner query to the room's owner
	// administration handler.
	HandleOwnerIQ(iq *IQ, sender *Occupant) error
}

// RoomManager creates rooms on behalf of the engine when a join request names
// a room that does not exist. Creation may be refused, in which case the
// reported failure kind is NotAllowed.
//
// Lookup of existing rooms goes through the room directory, not through this
// interface.
type RoomManager interface {
	CreateRoom(name string, creator jid.JID) (Room, error)
}

// Groups resolves addresses that denote a group of users rather than a single
// user. Group addresses appear in affiliation lists and must be expanded
// before they are reported to clients or invited.
type Groups interface {
	// IsGroup reports whether the address denotes a group.
	IsGroup(j jid.JID) bool

	// Members returns the member addresses of the group.
	Members(j jid.JID) ([]jid.JID, error)
}
