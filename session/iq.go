// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package session

import (
	"strings"

	"mellium.im/xmpp/stanza"

	"mellium.im/mucd"
)

// processIQ classifies an iq stanza into the owner administration, room
// administration, self-ping, or private delivery flow.
func (s *Session) processIQ(iq *mucd.IQ) {
	key := roomKey(iq.To)
	nick := iq.To.Resourcepart()
	occ, ok := s.occupant(key)
	if !ok {
		if iq.IsRequest() {
			s.reply(iq.ErrorReply(stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest}))
		}
		return
	}

	if !iq.IsRequest() {
		// A result or error answering an earlier occupant-to-occupant iq.
		// Without a target nickname there is nobody to forward it to, and a
		// reply to an undeliverable response would only bounce back and
		// forth.
		if nick == "" {
			return
		}
		if err := occ.Room().SendPrivate(iq, nick, occ); err != nil {
			s.mgr.logger.Debug().Err(err).
				Str("room", occ.Room().Addr().String()).
				Str("nick", nick).
				Msg("dropping undeliverable iq response")
		}
		return
	}

	if !iq.From.Equal(occ.RealAddr()) {
		s.reply(iq.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Conflict, Text: "another user occupies this nickname"})))
		return
	}

	room := occ.Room()
	l := s.mgr.rooms.Lock(key)
	l.Lock()
	defer l.Unlock()
	defer s.mgr.rooms.Put(key, room)

	switch {
	case iq.Owner != nil:
		if err := room.HandleOwnerIQ(iq, occ); err != nil {
			s.reply(iq.ErrorReply(mucd.WireError(err)))
		}
	case iq.Admin != nil:
		s.mgr.admin.Handle(iq, occ, room)
	case iq.Ping != nil && strings.EqualFold(nick, occ.Nick()) && s.mgr.config.SelfPingEnabled:
		// A ping to the occupant's own nickname probes room attachment; the
		// service can vouch for that itself.
		s.reply(iq.Result(nil))
	default:
		if nick == "" {
			s.reply(iq.ErrorReply(stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest}))
			return
		}
		if err := room.SendPrivate(iq, nick, occ); err != nil {
			s.reply(iq.ErrorReply(mucd.WireError(err)))
		}
	}
}
