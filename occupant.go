// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"sync"

	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"
)

// Occupant is a user's identity within one room: the nickname, role, and
// affiliation the user holds there, the occupant address derived from them,
// and the last presence broadcast on the occupant's behalf.
//
// Mutating methods enforce the role and affiliation rules of the protocol and
// keep the stored presence consistent with the occupant's state. An Occupant
// is safe for concurrent use.
type Occupant struct {
	room   Room
	user   jid.JID
	router Router
	logger zerolog.Logger

	mu          sync.RWMutex
	nick        string
	addr        jid.JID
	role        muc.Role
	affiliation muc.Affiliation
	presence    *Presence
	voiceOnly   bool
	fmucAddr    jid.JID
}

// NewOccupant creates the occupant of room that represents the user joined
// under the given nickname. The presence is the join presence as sent by the
// user; it is copied, rewritten to originate from the occupant address, and
// stored as the occupant's presence document.
//
// A voice-only request or a federation provenance element carried by the join
// presence is recorded on the occupant.
func NewOccupant(room Room, user jid.JID, nick string, affiliation muc.Affiliation, role muc.Role, presence *Presence, router Router, logger zerolog.Logger) *Occupant {
	o := &Occupant{
		room:        room,
		user:        user,
		router:      router,
		logger:      logger,
		nick:        nick,
		addr:        addrFor(room.Addr(), nick),
		role:        role,
		affiliation: affiliation,
	}
	if presence != nil {
		o.voiceOnly = presence.Deaf.VoiceOnly()
		if presence.FMUC != nil && presence.FMUC.From != "" {
			a, err := jid.Parse(presence.FMUC.From)
			if err != nil {
				logger.Warn().Err(err).
					Str("room", room.Addr().String()).
					Str("nick", nick).
					Msg("ignoring malformed federation provenance on join")
			} else {
				o.fmucAddr = a
			}
		}
		o.storePresence(presence)
	}
	return o
}

func addrFor(room jid.JID, nick string) jid.JID {
	a, err := room.WithResource(nick)
	if err != nil {
		// The room validated the nickname on admission; an invalid resource
		// at this point means the admission check and the address rules
		// disagree, so keep the bare address rather than guessing.
		return room
	}
	return a
}

// Addr returns the occupant address, room@service/nick.
func (o *Occupant) Addr() jid.JID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.addr
}

// RealAddr returns the full address of the user behind the occupant.
func (o *Occupant) RealAddr() jid.JID {
	return o.user
}

// Room returns the room the occupant is in.
func (o *Occupant) Room() Room {
	return o.room
}

// Nick returns the occupant's current nickname.
func (o *Occupant) Nick() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.nick
}

// Role returns the occupant's current role.
func (o *Occupant) Role() muc.Role {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.role
}

// Affiliation returns the occupant's current affiliation.
func (o *Occupant) Affiliation() muc.Affiliation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.affiliation
}

// VoiceOnly reports whether the occupant asked not to receive broadcast
// traffic.
func (o *Occupant) VoiceOnly() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.voiceOnly
}

// Remote reports whether the occupant joined through a federated partner
// node.
func (o *Occupant) Remote() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return !o.fmucAddr.Equal(jid.JID{})
}

// FMUCAddr returns the address of the federated node the occupant joined
// through, or the zero JID for a local occupant.
func (o *Occupant) FMUCAddr() jid.JID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fmucAddr
}

// Presence returns a copy of the occupant's presence document.
func (o *Occupant) Presence() *Presence {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.presence == nil {
		return nil
	}
	return o.presence.Copy()
}

// SetPresence stores a new presence document for the occupant. The join
// request element, which is meaningful only between client and service, is
// stripped, the sender address is replaced by the occupant address, and the
// identity extension is rebuilt from the occupant's current state.
func (o *Occupant) SetPresence(p *Presence) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storePresence(p)
}

func (o *Occupant) storePresence(p *Presence) {
	p = p.Copy()
	p.Join = nil
	p.From = o.addr
	p.User = o.identity()
	o.presence = p
}

// identity builds the extension advertising the occupant's affiliation and
// role. The real address is disclosed only in rooms that disclose it to
// everyone; copies with the address added for moderators are the room's
// concern. Callers must hold o.mu.
func (o *Occupant) identity() *UserExtension {
	item := &Item{
		Affiliation: AffiliationPtr(o.affiliation),
		Role:        RolePtr(o.role),
	}
	if o.room.CanAnyoneDiscoverJID() {
		item.JID = o.user
	}
	return &UserExtension{Item: item}
}

// SetRole changes the occupant's role.
//
// An owner or admin can only hold the moderator role, and a moderator whose
// affiliation is not plain cannot be reduced to no role at all: removing such
// an occupant requires an affiliation change first. Both attempts fail with a
// NotAllowed error and leave the occupant unchanged.
//
// When the role becomes none the occupant is leaving the room, so the stored
// presence is marked unavailable and its status text cleared.
func (o *Occupant) SetRole(role muc.Role) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.affiliation == muc.AffiliationOwner || o.affiliation == muc.AffiliationAdmin {
		if role != muc.RoleModerator {
			return Error{Kind: NotAllowed, Text: "owners and admins hold the moderator role"}
		}
	}
	if o.role == muc.RoleModerator && role == muc.RoleNone && o.affiliation != muc.AffiliationNone {
		return Error{Kind: NotAllowed, Text: "cannot remove a moderator without changing its affiliation"}
	}
	o.role = role
	if o.presence != nil {
		if role == muc.RoleNone {
			o.presence.Type = stanza.UnavailablePresence
			o.presence.Status = ""
		}
		o.presence.User = o.identity()
	}
	return nil
}

// SetAffiliation changes the occupant's affiliation. Owners and admins cannot
// be made outcasts; the attempt fails with a NotAllowed error.
func (o *Occupant) SetAffiliation(affiliation muc.Affiliation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.affiliation == muc.AffiliationOwner || o.affiliation == muc.AffiliationAdmin {
		if affiliation == muc.AffiliationOutcast {
			return Error{Kind: NotAllowed, Text: "owners and admins cannot be banned"}
		}
	}
	o.affiliation = affiliation
	if o.presence != nil {
		o.presence.User = o.identity()
	}
	return nil
}

// ChangeNickname moves the occupant to a new nickname, recomputing the
// occupant address and the sender address of the stored presence. The caller
// is responsible for having checked that the nickname is free.
func (o *Occupant) ChangeNickname(nick string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nick = nick
	o.addr = addrFor(o.room.Addr(), nick)
	if o.presence != nil {
		o.presence.From = o.addr
	}
}

// Send delivers a stanza to the user behind the occupant, rewriting the
// recipient to the user's real address.
//
// Occupants mirrored over a federation link should receive traffic through
// the link's fan-out, not individually; delivering here anyway is logged and
// the stanza is stamped with the occupant's provenance so that the receiving
// node can attribute it.
func (o *Occupant) Send(s Stanza) {
	o.mu.RLock()
	addr := o.addr
	fmucAddr := o.fmucAddr
	o.mu.RUnlock()
	remote := !fmucAddr.Equal(jid.JID{})

	switch s := s.(type) {
	case *Presence:
		s = s.Copy()
		s.To = o.user
		if remote {
			o.warnRemoteDelivery(addr, fmucAddr)
			if s.FMUC == nil {
				s.FMUC = &FMUC{From: fmucAddr.String()}
			}
		}
		o.router.Route(s)
	case *Message:
		s = s.Copy()
		s.To = o.user
		if remote {
			o.warnRemoteDelivery(addr, fmucAddr)
			if s.FMUC == nil {
				s.FMUC = &FMUC{From: fmucAddr.String()}
			}
		}
		o.router.Route(s)
	case *IQ:
		s = s.Copy()
		s.To = o.user
		if remote {
			o.warnRemoteDelivery(addr, fmucAddr)
			if s.FMUC == nil {
				s.FMUC = &FMUC{From: fmucAddr.String()}
			}
		}
		o.router.Route(s)
	default:
		o.router.Route(s)
	}
}

func (o *Occupant) warnRemoteDelivery(addr, fmucAddr jid.JID) {
	o.logger.Warn().
		Str("occupant", addr.String()).
		Str("fmuc", fmucAddr.String()).
		Msg("delivering directly to an occupant behind a federation link")
}
