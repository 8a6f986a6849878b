// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucdtest

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"

	"mellium.im/mucd"
)

var _ mucd.Room = (*Room)(nil)

// Invitation records a call to SendInvitation.
type Invitation struct {
	Invitee jid.JID
	Reason  string
	Sender  *mucd.Occupant
	Extra   []mucd.RawXML
}

// Rejection records a call to SendInvitationRejection.
type Rejection struct {
	To     jid.JID
	Reason string
	From   jid.JID
}

// Private records a call to SendPrivate.
type Private struct {
	Stanza mucd.Stanza
	Nick   string
	Sender *mucd.Occupant
}

// Room is an in-memory room. The zero behavior admits everyone, grants the
// first joiner the owner affiliation, and lets occupants change nicknames;
// the exported fields script deviations from it.
type Room struct {
	Address jid.JID
	Router  *Router

	// JoinErr, SubjectErr, BroadcastErr, and OwnerErr script failures of the
	// corresponding operations.
	JoinErr      error
	SubjectErr   error
	BroadcastErr error
	OwnerErr     error

	MembersOnlyFlag  bool
	ForbidNickChange bool
	DiscoverJID      bool
	LockedFlag       bool
	ManualLock       bool
	Mode             mucd.FederationMode

	mu           sync.Mutex
	occupants    map[string]*mucd.Occupant
	affiliations map[string]muc.Affiliation
	self         *mucd.Occupant
	subject      string
	unlocked     bool

	sent        []mucd.Stanza
	invitations []Invitation
	rejections  []Rejection
	privates    []Private
	left        []*mucd.Occupant
	ownerIQs    []*mucd.IQ
}

// NewRoom creates an empty room with the given address.
func NewRoom(addr jid.JID, router *Router) *Room {
	return &Room{
		Address:      addr,
		Router:       router,
		occupants:    make(map[string]*mucd.Occupant),
		affiliations: make(map[string]muc.Affiliation),
	}
}

// Addr satisfies mucd.Room.
func (r *Room) Addr() jid.JID { return r.Address }

// Self satisfies mucd.Room.
func (r *Room) Self() *mucd.Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.self == nil {
		r.self = mucd.NewOccupant(r, r.Address, "", muc.AffiliationNone, muc.RoleModerator, nil, r.Router, zerolog.Nop())
	}
	return r.self
}

// Join satisfies mucd.Room.
func (r *Room) Join(nick, password string, history *mucd.HistoryRequest, presence *mucd.Presence) (*mucd.Occupant, error) {
	if r.JoinErr != nil {
		return nil, r.JoinErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.occupants[strings.ToLower(nick)]; taken {
		return nil, mucd.Error{Kind: mucd.Conflict, Text: "nickname is already in use"}
	}
	bare := presence.From.Bare().String()
	aff, known := r.affiliations[bare]
	if !known && len(r.affiliations) == 0 && len(r.occupants) == 0 {
		// First joiner of a fresh room owns it.
		aff = muc.AffiliationOwner
		r.affiliations[bare] = aff
	}
	switch {
	case aff == muc.AffiliationOutcast:
		return nil, mucd.Error{Kind: mucd.Forbidden, Text: "banned from the room"}
	case r.MembersOnlyFlag && aff != muc.AffiliationOwner && aff != muc.AffiliationAdmin && aff != muc.AffiliationMember:
		return nil, mucd.Error{Kind: mucd.RegistrationRequired}
	}
	role := muc.RoleParticipant
	if aff == muc.AffiliationOwner || aff == muc.AffiliationAdmin {
		role = muc.RoleModerator
	}
	o := mucd.NewOccupant(r, presence.From, nick, aff, role, presence, r.Router, zerolog.Nop())
	r.occupants[strings.ToLower(nick)] = o
	if p := o.Presence(); p != nil {
		r.sent = append(r.sent, p)
	}
	return o, nil
}

// Leave satisfies mucd.Room.
func (r *Room) Leave(o *mucd.Occupant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.occupants, strings.ToLower(o.Nick()))
	r.left = append(r.left, o)
	if p := o.Presence(); p != nil {
		r.sent = append(r.sent, p)
	}
	return nil
}

// PresenceUpdated satisfies mucd.Room.
func (r *Room) PresenceUpdated(o *mucd.Occupant, presence *mucd.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, presence)
}

// NicknameChanged satisfies mucd.Room.
func (r *Room) NicknameChanged(o *mucd.Occupant, presence *mucd.Presence, oldNick, newNick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.occupants, strings.ToLower(oldNick))
	r.occupants[strings.ToLower(newNick)] = o
	r.sent = append(r.sent, presence)
}

// MembersOnly satisfies mucd.Room.
func (r *Room) MembersOnly() bool { return r.MembersOnlyFlag }

// CanChangeNickname satisfies mucd.Room.
func (r *Room) CanChangeNickname() bool { return !r.ForbidNickChange }

// CanAnyoneDiscoverJID satisfies mucd.Room.
func (r *Room) CanAnyoneDiscoverJID() bool { return r.DiscoverJID }

// Locked satisfies mucd.Room.
func (r *Room) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.LockedFlag && !r.unlocked
}

// ManuallyLocked satisfies mucd.Room.
func (r *Room) ManuallyLocked() bool { return r.ManualLock }

// FederationMode satisfies mucd.Room.
func (r *Room) FederationMode() mucd.FederationMode { return r.Mode }

// Unlock satisfies mucd.Room.
func (r *Room) Unlock(actor *mucd.Occupant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlocked = true
	return nil
}

// Unlocked reports whether Unlock was called.
func (r *Room) Unlocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked
}

// IsSubjectChangeRequest satisfies mucd.Room: a message with a subject and no
// body is a subject change.
func (r *Room) IsSubjectChangeRequest(m *mucd.Message) bool {
	return m.Subject != nil && m.Body == ""
}

// ChangeSubject satisfies mucd.Room.
func (r *Room) ChangeSubject(m *mucd.Message, sender *mucd.Occupant) error {
	if r.SubjectErr != nil {
		return r.SubjectErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subject = *m.Subject
	r.sent = append(r.sent, m)
	return nil
}

// Subject returns the room subject.
func (r *Room) Subject() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subject
}

// Broadcast satisfies mucd.Room. Visitors have no voice; occupants that
// joined voice-only are skipped on delivery.
func (r *Room) Broadcast(m *mucd.Message, sender *mucd.Occupant) error {
	if r.BroadcastErr != nil {
		return r.BroadcastErr
	}
	if sender.Role() == muc.RoleVisitor {
		return mucd.Error{Kind: mucd.Forbidden, Text: "visitors have no voice"}
	}
	r.mu.Lock()
	r.sent = append(r.sent, m)
	occupants := r.occupantList()
	r.mu.Unlock()
	for _, o := range occupants {
		if o.VoiceOnly() {
			continue
		}
		o.Send(m)
	}
	return nil
}

// Send satisfies mucd.Room.
func (r *Room) Send(s mucd.Stanza, sender *mucd.Occupant) {
	r.mu.Lock()
	r.sent = append(r.sent, s)
	occupants := r.occupantList()
	r.mu.Unlock()
	for _, o := range occupants {
		o.Send(s)
	}
}

// SendPrivate satisfies mucd.Room.
func (r *Room) SendPrivate(s mucd.Stanza, toNick string, sender *mucd.Occupant) error {
	r.mu.Lock()
	o, ok := r.occupants[strings.ToLower(toNick)]
	if ok {
		r.privates = append(r.privates, Private{Stanza: s, Nick: toNick, Sender: sender})
	}
	r.mu.Unlock()
	if !ok {
		return mucd.Error{Kind: mucd.NotFound, Text: "no such occupant"}
	}
	o.Send(s)
	return nil
}

// SendInvitation satisfies mucd.Room.
func (r *Room) SendInvitation(invitee jid.JID, reason string, sender *mucd.Occupant, extra []mucd.RawXML) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.affiliations[invitee.Bare().String()] == muc.AffiliationOutcast {
		return mucd.Error{Kind: mucd.CannotBeInvited}
	}
	r.invitations = append(r.invitations, Invitation{Invitee: invitee, Reason: reason, Sender: sender, Extra: extra})
	return nil
}

// SendInvitationRejection satisfies mucd.Room.
func (r *Room) SendInvitationRejection(to jid.JID, reason string, from jid.JID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, Rejection{To: to, Reason: reason, From: from})
}

// Moderators satisfies mucd.Room.
func (r *Room) Moderators() []*mucd.Occupant { return r.byRole(muc.RoleModerator) }

// Participants satisfies mucd.Room.
func (r *Room) Participants() []*mucd.Occupant { return r.byRole(muc.RoleParticipant) }

func (r *Room) byRole(role muc.Role) []*mucd.Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mucd.Occupant
	for _, o := range r.occupantList() {
		if o.Role() == role {
			out = append(out, o)
		}
	}
	return out
}

// OccupantsByNickname satisfies mucd.Room.
func (r *Room) OccupantsByNickname(nick string) []*mucd.Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.occupants[strings.ToLower(nick)]
	if !ok {
		return nil
	}
	return []*mucd.Occupant{o}
}

// OccupantsByBareJID satisfies mucd.Room.
func (r *Room) OccupantsByBareJID(j jid.JID) []*mucd.Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*mucd.Occupant
	for _, o := range r.occupantList() {
		if o.RealAddr().Bare().Equal(j.Bare()) {
			out = append(out, o)
		}
	}
	return out
}

// HasOccupant satisfies mucd.Room.
func (r *Room) HasOccupant(nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.occupants[strings.ToLower(nick)]
	return ok
}

// Affiliation satisfies mucd.Room.
func (r *Room) Affiliation(j jid.JID) muc.Affiliation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.affiliations[j.Bare().String()]
}

// Owners satisfies mucd.Room.
func (r *Room) Owners() []jid.JID { return r.byAffiliation(muc.AffiliationOwner) }

// Admins satisfies mucd.Room.
func (r *Room) Admins() []jid.JID { return r.byAffiliation(muc.AffiliationAdmin) }

// Members satisfies mucd.Room.
func (r *Room) Members() []jid.JID { return r.byAffiliation(muc.AffiliationMember) }

// Outcasts satisfies mucd.Room.
func (r *Room) Outcasts() []jid.JID { return r.byAffiliation(muc.AffiliationOutcast) }

func (r *Room) byAffiliation(aff muc.Affiliation) []jid.JID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []jid.JID
	for bare, a := range r.affiliations {
		if a != aff {
			continue
		}
		j, err := jid.Parse(bare)
		if err != nil {
			continue
		}
		out = append(out, j)
	}
	return out
}

// SetAffiliation scripts a prior affiliation for a bare address.
func (r *Room) SetAffiliation(j jid.JID, aff muc.Affiliation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.affiliations[j.Bare().String()] = aff
}

// AddOwner satisfies mucd.Room.
func (r *Room) AddOwner(j jid.JID, actor muc.Affiliation) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner {
		return nil, mucd.Error{Kind: mucd.Forbidden, Text: "only owners may grant ownership"}
	}
	return r.setAffiliation(j, muc.AffiliationOwner, muc.RoleModerator)
}

// AddAdmin satisfies mucd.Room.
func (r *Room) AddAdmin(j jid.JID, actor muc.Affiliation) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner {
		return nil, mucd.Error{Kind: mucd.Forbidden, Text: "only owners may grant administration"}
	}
	return r.setAffiliation(j, muc.AffiliationAdmin, muc.RoleModerator)
}

// AddMember satisfies mucd.Room.
func (r *Room) AddMember(j jid.JID, nick string, actor muc.Affiliation) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner && actor != muc.AffiliationAdmin {
		return nil, mucd.Error{Kind: mucd.Forbidden, Text: "only admins and owners may grant membership"}
	}
	return r.setAffiliation(j, muc.AffiliationMember, muc.RoleParticipant)
}

// AddNone satisfies mucd.Room.
func (r *Room) AddNone(j jid.JID, actor muc.Affiliation) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner && actor != muc.AffiliationAdmin {
		return nil, mucd.Error{Kind: mucd.Forbidden}
	}
	return r.setAffiliation(j, muc.AffiliationNone, muc.RoleParticipant)
}

// AddOutcast satisfies mucd.Room. The banned occupant is removed from the
// room with a ban notification.
func (r *Room) AddOutcast(j jid.JID, reason string, actorJID jid.JID, actor muc.Affiliation, actorRole muc.Role) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner && actor != muc.AffiliationAdmin {
		return nil, mucd.Error{Kind: mucd.Forbidden, Text: "only admins and owners may ban"}
	}
	updates, err := r.setAffiliation(j, muc.AffiliationOutcast, muc.RoleNone)
	if err != nil {
		return nil, err
	}
	for _, p := range updates {
		if p.User != nil {
			p.User.Status = append(p.User.Status, mucd.Status{Code: mucd.StatusBanned})
			if p.User.Item != nil {
				p.User.Item.Reason = reason
			}
		}
	}
	r.evict(j)
	return updates, nil
}

// Kick satisfies mucd.Room.
func (r *Room) Kick(j jid.JID, actor muc.Affiliation, actorRole muc.Role, actorJID jid.JID, reason string) ([]*mucd.Presence, error) {
	r.mu.Lock()
	occupants := r.occupantsOfLocked(j)
	r.mu.Unlock()
	var updates []*mucd.Presence
	for _, o := range occupants {
		if err := o.SetRole(muc.RoleNone); err != nil {
			return updates, err
		}
		p := o.Presence()
		if p != nil {
			p.User = &mucd.UserExtension{
				Item:   &mucd.Item{Role: mucd.RolePtr(muc.RoleNone), Reason: reason},
				Status: []mucd.Status{{Code: mucd.StatusKicked}},
			}
			updates = append(updates, p)
		}
	}
	r.evict(j)
	return updates, nil
}

// AddModerator satisfies mucd.Room.
func (r *Room) AddModerator(j jid.JID, actor muc.Affiliation) ([]*mucd.Presence, error) {
	if actor != muc.AffiliationOwner && actor != muc.AffiliationAdmin {
		return nil, mucd.Error{Kind: mucd.Forbidden}
	}
	return r.setRole(j, muc.RoleModerator)
}

// AddParticipant satisfies mucd.Room.
func (r *Room) AddParticipant(j jid.JID, reason string, actor muc.Affiliation, actorRole muc.Role) ([]*mucd.Presence, error) {
	if actorRole != muc.RoleModerator {
		return nil, mucd.Error{Kind: mucd.Forbidden}
	}
	return r.setRole(j, muc.RoleParticipant)
}

// AddVisitor satisfies mucd.Room.
func (r *Room) AddVisitor(j jid.JID, actor muc.Affiliation, actorRole muc.Role) ([]*mucd.Presence, error) {
	if actorRole != muc.RoleModerator {
		return nil, mucd.Error{Kind: mucd.Forbidden}
	}
	return r.setRole(j, muc.RoleVisitor)
}

// HandleOwnerIQ satisfies mucd.Room.
func (r *Room) HandleOwnerIQ(iq *mucd.IQ, sender *mucd.Occupant) error {
	if r.OwnerErr != nil {
		return r.OwnerErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownerIQs = append(r.ownerIQs, iq)
	return nil
}

// setAffiliation records the affiliation for the bare address and applies it
// to any present occupants. Removing the last owner is refused.
func (r *Room) setAffiliation(j jid.JID, aff muc.Affiliation, role muc.Role) ([]*mucd.Presence, error) {
	bare := j.Bare().String()
	r.mu.Lock()
	if r.affiliations[bare] == muc.AffiliationOwner && aff != muc.AffiliationOwner {
		owners := 0
		for _, a := range r.affiliations {
			if a == muc.AffiliationOwner {
				owners++
			}
		}
		if owners <= 1 {
			r.mu.Unlock()
			return nil, mucd.Error{Kind: mucd.Conflict, Text: "room cannot be left without owners"}
		}
	}
	occupants := r.occupantsOfLocked(j)
	r.mu.Unlock()

	var updates []*mucd.Presence
	for _, o := range occupants {
		if err := o.SetAffiliation(aff); err != nil {
			return updates, err
		}
		if err := o.SetRole(role); err != nil {
			return updates, err
		}
		if p := o.Presence(); p != nil {
			updates = append(updates, p)
		}
	}

	r.mu.Lock()
	if aff == muc.AffiliationNone {
		delete(r.affiliations, bare)
	} else {
		r.affiliations[bare] = aff
	}
	r.mu.Unlock()
	return updates, nil
}

func (r *Room) setRole(j jid.JID, role muc.Role) ([]*mucd.Presence, error) {
	r.mu.Lock()
	occupants := r.occupantsOfLocked(j)
	r.mu.Unlock()
	var updates []*mucd.Presence
	for _, o := range occupants {
		if err := o.SetRole(role); err != nil {
			return updates, err
		}
		if p := o.Presence(); p != nil {
			updates = append(updates, p)
		}
	}
	return updates, nil
}

// occupantsOfLocked returns the occupants whose real bare address matches j.
// Callers must hold r.mu.
func (r *Room) occupantsOfLocked(j jid.JID) []*mucd.Occupant {
	var out []*mucd.Occupant
	for _, o := range r.occupantList() {
		if o.RealAddr().Bare().Equal(j.Bare()) {
			out = append(out, o)
		}
	}
	return out
}

// occupantList returns the occupants in map order. Callers must hold r.mu.
func (r *Room) occupantList() []*mucd.Occupant {
	out := make([]*mucd.Occupant, 0, len(r.occupants))
	for _, o := range r.occupants {
		out = append(out, o)
	}
	return out
}

func (r *Room) evict(j jid.JID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for nick, o := range r.occupants {
		if o.RealAddr().Bare().Equal(j.Bare()) {
			delete(r.occupants, nick)
			r.left = append(r.left, o)
		}
	}
}

// Sent returns the stanzas the room recorded through Send, Broadcast, and
// presence processing.
func (r *Room) Sent() []mucd.Stanza {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mucd.Stanza(nil), r.sent...)
}

// Invitations returns the recorded invitations.
func (r *Room) Invitations() []Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invitation(nil), r.invitations...)
}

// Rejections returns the recorded invitation rejections.
func (r *Room) Rejections() []Rejection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rejection(nil), r.rejections...)
}

// Privates returns the recorded private deliveries.
func (r *Room) Privates() []Private {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Private(nil), r.privates...)
}

// Left returns the occupants that left or were removed.
func (r *Room) Left() []*mucd.Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mucd.Occupant(nil), r.left...)
}

// OwnerIQs returns the owner administration queries the room received.
func (r *Room) OwnerIQs() []*mucd.IQ {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mucd.IQ(nil), r.ownerIQs...)
}
