// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package session

import (
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/mucd"
)

// processMessage classifies a message stanza into the subject change,
// broadcast, private delivery, invitation, or invitation rejection flow.
func (s *Session) processMessage(m *mucd.Message) {
	// Answering an error with an error would loop between servers.
	if m.Type == stanza.ErrorMessage {
		return
	}
	key := roomKey(m.To)
	nick := m.To.Resourcepart()
	occ, ok := s.occupant(key)
	if !ok {
		s.messageFromOutside(m, key)
		return
	}

	if !m.From.Equal(occ.RealAddr()) {
		s.reply(m.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Conflict, Text: "another user occupies this nickname"})))
		return
	}

	room := occ.Room()
	l := s.mgr.rooms.Lock(key)
	l.Lock()
	defer l.Unlock()
	defer s.mgr.rooms.Put(key, room)

	if room.IsSubjectChangeRequest(m) {
		if err := room.ChangeSubject(m, occ); err != nil {
			s.reply(m.ErrorReply(mucd.WireError(err)))
		}
		return
	}

	switch {
	case nick == "" && m.Type == stanza.GroupChatMessage:
		if err := room.Broadcast(m, occ); err != nil {
			s.reply(m.ErrorReply(mucd.WireError(err)))
		}
	case nick != "" && (m.Type == stanza.ChatMessage || isNormal(m.Type)):
		if err := room.SendPrivate(m, nick, occ); err != nil {
			s.reply(m.ErrorReply(mucd.WireError(err)))
		}
	case nick == "" && isNormal(m.Type) && m.User != nil && len(m.User.Invites) > 0:
		s.invite(m, occ, room)
	case nick == "" && isNormal(m.Type) && m.User != nil && m.User.Decline != nil:
		room.SendInvitationRejection(m.User.Decline.To, m.User.Decline.Reason, m.From)
	default:
		s.reply(m.ErrorReply(stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest}))
	}
}

// messageFromOutside handles a message from a user that is not in the room.
// The only acceptable shape is a declined invitation, which is forwarded to
// the inviter through the room.
func (s *Session) messageFromOutside(m *mucd.Message, key string) {
	room, ok := s.mgr.rooms.Get(key)
	if !ok {
		s.reply(m.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: stanza.RecipientUnavailable}))
		return
	}
	if m.User != nil && m.User.Decline != nil {
		room.SendInvitationRejection(m.User.Decline.To, m.User.Decline.Reason, m.From)
		return
	}
	s.reply(m.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "you are not in the room"})))
}

// invite sends a mediated invitation for every invitee in the message,
// expanding group addresses. In a members-only room each invitee is made a
// member first, so that the invitation is actually usable. One invitee's
// failure does not block the others; the first failure becomes the reply.
func (s *Session) invite(m *mucd.Message, occ *mucd.Occupant, room mucd.Room) {
	var firstErr error
	for _, inv := range m.User.Invites {
		for _, invitee := range s.expand(inv.To) {
			if room.MembersOnly() {
				updates, err := room.AddMember(invitee.Bare(), "", occ.Affiliation())
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				for _, p := range updates {
					room.Send(p, room.Self())
				}
			}
			if err := room.SendInvitation(invitee, inv.Reason, occ, m.Extra); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	if firstErr != nil {
		s.reply(m.ErrorReply(mucd.WireError(firstErr)))
	}
}

// expand resolves a group address to its members, or returns the address
// itself when it is not a group.
func (s *Session) expand(a jid.JID) []jid.JID {
	groups := s.mgr.groups
	if groups == nil || !groups.IsGroup(a) {
		return []jid.JID{a}
	}
	members, err := groups.Members(a)
	if err != nil {
		s.mgr.logger.Warn().Err(err).Str("group", a.String()).Msg("cannot expand group address")
		return nil
	}
	return members
}

func isNormal(t stanza.MessageType) bool {
	return t == stanza.NormalMessage || t == ""
}
