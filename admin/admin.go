// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package admin implements the room administration protocol: listing and
// modifying the affiliations and roles of a room's occupants and affiliated
// users.
package admin // import "mellium.im/mucd/admin"

import (
	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"

	"mellium.im/mucd"
)

// Handler processes administration queries against a room and answers them
// through the router. Every query receives exactly one reply.
type Handler struct {
	Router mucd.Router
	Groups mucd.Groups
	Config mucd.Config
	Logger zerolog.Logger
}

// Handle processes an administration query sent by an occupant of the room.
//
// A query whose items carry a target address or nickname is a modification,
// anything else is a list request. For modifications, one item's failure does
// not block the remaining items: the first failure becomes the reply, but
// every item is attempted, and the presence updates of all successful items
// are broadcast together once the whole query has been processed. Items whose
// target cannot be resolved are skipped without being reported.
func (h *Handler) Handle(iq *mucd.IQ, sender *mucd.Occupant, room mucd.Room) {
	if iq.Admin == nil || len(iq.Admin.Items) == 0 {
		h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "no items in query"})))
		return
	}
	modify := false
	for _, item := range iq.Admin.Items {
		if !item.JID.Equal(jid.JID{}) || item.Nick != "" {
			modify = true
			break
		}
	}
	if modify {
		h.handleModify(iq, sender, room)
		return
	}
	h.handleList(iq, sender, room)
}

// handleList answers a request for the room's affiliation or role lists. The
// reply combines the lists of every requested category; the first category
// the sender may not see fails the whole request.
func (h *Handler) handleList(iq *mucd.IQ, sender *mucd.Occupant, room mucd.Room) {
	senderAff := sender.Affiliation()
	senderRole := sender.Role()
	adminOrOwner := senderAff == muc.AffiliationAdmin || senderAff == muc.AffiliationOwner

	var out []mucd.Item
	for _, item := range iq.Admin.Items {
		switch {
		case item.Affiliation != nil:
			switch *item.Affiliation {
			case muc.AffiliationOutcast:
				if !adminOrOwner {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "only admins and owners may see the ban list"})))
					return
				}
				out = append(out, h.affiliationItems(room.Outcasts(), muc.AffiliationOutcast)...)
			case muc.AffiliationMember:
				// In a members-only room members can get the list of members.
				if room.MembersOnly() && !adminOrOwner && senderAff != muc.AffiliationMember {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "not allowed to see the member list"})))
					return
				}
				out = append(out, h.affiliationItems(room.Members(), muc.AffiliationMember)...)
			case muc.AffiliationOwner:
				if !room.CanAnyoneDiscoverJID() && senderAff != muc.AffiliationOwner {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "not allowed to see the owner list"})))
					return
				}
				out = append(out, h.affiliationItems(room.Owners(), muc.AffiliationOwner)...)
			case muc.AffiliationAdmin:
				if !room.CanAnyoneDiscoverJID() && senderAff != muc.AffiliationOwner {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "not allowed to see the admin list"})))
					return
				}
				out = append(out, h.affiliationItems(room.Admins(), muc.AffiliationAdmin)...)
			default:
				h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "cannot list that affiliation"})))
				return
			}
		case item.Role != nil:
			switch *item.Role {
			case muc.RoleModerator:
				if !adminOrOwner {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "only admins and owners may see the moderator list"})))
					return
				}
				out = append(out, occupantItems(room.Moderators())...)
			case muc.RoleParticipant:
				if senderRole != muc.RoleModerator {
					h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Forbidden, Text: "only moderators may see the participant list"})))
					return
				}
				out = append(out, occupantItems(room.Participants())...)
			default:
				h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "cannot list that role"})))
				return
			}
		default:
			h.Router.Route(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "item names neither affiliation nor role"})))
			return
		}
	}
	h.Router.Route(iq.Result(&mucd.AdminQuery{Items: out}))
}

// affiliationItems renders an affiliation list, expanding every address that
// denotes a group into its member addresses.
func (h *Handler) affiliationItems(addrs []jid.JID, aff muc.Affiliation) []mucd.Item {
	var out []mucd.Item
	for _, a := range addrs {
		for _, expanded := range h.expand(a) {
			out = append(out, mucd.Item{
				Affiliation: mucd.AffiliationPtr(aff),
				JID:         expanded,
			})
		}
	}
	return out
}

func occupantItems(occupants []*mucd.Occupant) []mucd.Item {
	out := make([]mucd.Item, 0, len(occupants))
	for _, o := range occupants {
		out = append(out, mucd.Item{
			Affiliation: mucd.AffiliationPtr(o.Affiliation()),
			Role:        mucd.RolePtr(o.Role()),
			Nick:        o.Nick(),
			JID:         o.RealAddr(),
		})
	}
	return out
}

// expand resolves a group address to its members, or returns the address
// itself when it is not a group. Resolution failures are logged and the
// address skipped rather than reported, so that a lookup failure does not
// leak into the reply.
func (h *Handler) expand(a jid.JID) []jid.JID {
	if h.Groups == nil || !h.Groups.IsGroup(a) {
		return []jid.JID{a}
	}
	members, err := h.Groups.Members(a)
	if err != nil {
		h.Logger.Warn().Err(err).Str("group", a.String()).Msg("cannot expand group address")
		return nil
	}
	return members
}

func (h *Handler) handleModify(iq *mucd.IQ, sender *mucd.Occupant, room mucd.Room) {
	var (
		presences []*mucd.Presence
		firstErr  error
	)
	for _, item := range iq.Admin.Items {
		updates, err := h.applyItem(item, sender, room)
		presences = append(presences, updates...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Broadcast only after every item has been applied so that a request
	// with several items produces one consistent wave of updates.
	for _, p := range presences {
		room.Send(p, room.Self())
	}
	if firstErr != nil {
		h.Router.Route(iq.ErrorReply(mucd.WireError(firstErr)))
		return
	}
	h.Router.Route(iq.Result(nil))
}

// applyItem applies one modification item and returns the presence updates it
// produced.
func (h *Handler) applyItem(item mucd.Item, sender *mucd.Occupant, room mucd.Room) ([]*mucd.Presence, error) {
	targets := h.resolveTargets(item, room)
	if len(targets) == 0 {
		// An unresolvable target is skipped, not reported.
		return nil, nil
	}
	senderAff := sender.Affiliation()
	senderRole := sender.Role()

	var (
		presences []*mucd.Presence
		firstErr  error
	)
	for _, target := range targets {
		var (
			updates []*mucd.Presence
			err     error
		)
		switch {
		case item.Role != nil:
			switch *item.Role {
			case muc.RoleModerator:
				updates, err = room.AddModerator(target, senderAff)
			case muc.RoleParticipant:
				updates, err = room.AddParticipant(target, item.Reason, senderAff, senderRole)
			case muc.RoleVisitor:
				updates, err = room.AddVisitor(target, senderAff, senderRole)
			case muc.RoleNone:
				if senderRole != muc.RoleModerator {
					err = mucd.Error{Kind: mucd.Forbidden, Text: "only moderators may kick"}
					break
				}
				updates, err = room.Kick(target, senderAff, senderRole, sender.RealAddr(), item.Reason)
			default:
				err = mucd.Error{Kind: mucd.NotAcceptable, Text: "cannot grant that role"}
			}
		case item.Affiliation != nil:
			switch *item.Affiliation {
			case muc.AffiliationOwner:
				updates, err = room.AddOwner(target, senderAff)
			case muc.AffiliationAdmin:
				updates, err = room.AddAdmin(target, senderAff)
			case muc.AffiliationMember:
				updates, err = h.addMember(target, item, sender, room)
			case muc.AffiliationOutcast:
				updates, err = h.ban(target, item.Reason, sender, room)
			case muc.AffiliationNone:
				updates, err = room.AddNone(target, senderAff)
			}
		default:
			err = mucd.Error{Kind: mucd.NotAcceptable, Text: "item names neither affiliation nor role"}
		}
		presences = append(presences, updates...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return presences, firstErr
}

// resolveTargets resolves an item's target to real bare addresses, either
// directly or through the nickname's current occupants.
func (h *Handler) resolveTargets(item mucd.Item, room mucd.Room) []jid.JID {
	if !item.JID.Equal(jid.JID{}) {
		return []jid.JID{item.JID.Bare()}
	}
	occupants := room.OccupantsByNickname(item.Nick)
	out := make([]jid.JID, 0, len(occupants))
	for _, o := range occupants {
		out = append(out, o.RealAddr().Bare())
	}
	return out
}

// addMember grants membership and, in a members-only room, invites every
// newly affiliated user unless invitations are disabled. Group addresses are
// invited member by member.
func (h *Handler) addMember(target jid.JID, item mucd.Item, sender *mucd.Occupant, room mucd.Room) ([]*mucd.Presence, error) {
	hadAffiliation := room.Affiliation(target) != muc.AffiliationNone
	updates, err := room.AddMember(target, item.Nick, sender.Affiliation())
	if err != nil {
		return updates, err
	}
	if hadAffiliation || h.Config.SkipInvite || !room.MembersOnly() {
		return updates, nil
	}
	for _, invitee := range h.expand(target) {
		if err := room.SendInvitation(invitee, item.Reason, sender, nil); err != nil {
			h.Logger.Warn().Err(err).
				Str("room", room.Addr().String()).
				Str("invitee", invitee.String()).
				Msg("cannot invite new member")
		}
	}
	return updates, nil
}

// ban makes the target an outcast. Banning yourself is refused, as is an
// admin banning an owner.
func (h *Handler) ban(target jid.JID, reason string, sender *mucd.Occupant, room mucd.Room) ([]*mucd.Presence, error) {
	if target.Equal(sender.RealAddr().Bare()) {
		return nil, mucd.Error{Kind: mucd.Conflict, Text: "cannot ban yourself"}
	}
	if room.Affiliation(target) == muc.AffiliationOwner && sender.Affiliation() != muc.AffiliationOwner {
		return nil, mucd.Error{Kind: mucd.NotAllowed, Text: "cannot ban an owner"}
	}
	return room.AddOutcast(target, reason, sender.RealAddr(), sender.Affiliation(), sender.Role())
}
