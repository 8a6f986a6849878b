// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package session

import (
	"strings"

	"mellium.im/xmpp/stanza"

	"mellium.im/mucd"
)

// processPresence classifies a presence stanza into the join, nickname
// change, update, or leave flow.
func (s *Session) processPresence(p *mucd.Presence) {
	key := roomKey(p.To)
	nick := p.To.Resourcepart()
	occ, ok := s.occupant(key)

	// A presence from a user with no standing in the room, or one carrying
	// the join request element, is a join attempt. Re-joining while already
	// in the room is legal and lets a client resync after a disconnect.
	if !ok || p.Join != nil {
		s.join(p, key, nick)
		return
	}

	if !p.From.Equal(occ.RealAddr()) {
		s.reply(p.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Conflict, Text: "another user occupies this nickname"})))
		return
	}

	// Work against the same room is serialized by the room key's lock, and
	// the handle is published back so that the mutation is visible beyond
	// this node.
	room := occ.Room()
	l := s.mgr.rooms.Lock(key)
	l.Lock()
	defer l.Unlock()
	defer s.mgr.rooms.Put(key, room)

	if nick != "" && !strings.EqualFold(nick, occ.Nick()) && p.Type != stanza.UnavailablePresence {
		s.changeNickname(p, occ, nick)
		return
	}

	if p.Type == stanza.UnavailablePresence {
		occ.SetPresence(p)
		if err := room.Leave(occ); err != nil {
			s.mgr.logger.Warn().Err(err).
				Str("room", room.Addr().String()).
				Str("occupant", occ.Addr().String()).
				Msg("cannot process departure")
		}
		s.removeOccupant(key)
		return
	}
	occ.SetPresence(p)
	room.PresenceUpdated(occ, occ.Presence())
}

func (s *Session) join(p *mucd.Presence, key, nick string) {
	// An error-type presence reaching the join flow is a bounce of our own
	// traffic; answering it would loop.
	if nick == "" {
		if p.Type == stanza.ErrorPresence {
			return
		}
		s.reply(p.ErrorReply(stanza.Error{Type: stanza.Modify, Condition: stanza.JIDMalformed}))
		return
	}
	if p.Type != stanza.AvailablePresence {
		if p.Type == stanza.ErrorPresence {
			return
		}
		s.reply(p.ErrorReply(stanza.Error{Type: stanza.Wait, Condition: stanza.UnexpectedRequest}))
		return
	}

	m := s.mgr
	l := m.rooms.Lock(key)
	l.Lock()
	defer l.Unlock()

	room, ok := m.rooms.Get(key)
	if !ok {
		var err error
		room, err = m.roomMgr.CreateRoom(p.To.Localpart(), p.From)
		if err != nil {
			s.reply(p.ErrorReply(mucd.WireError(err)))
			return
		}
	}

	var (
		password string
		history  *mucd.HistoryRequest
	)
	if p.Join != nil {
		password = p.Join.Password
		history = p.Join.History
	}
	occ, err := room.Join(nick, password, history, p)
	if err != nil {
		s.reply(p.ErrorReply(mucd.WireError(err)))
		return
	}

	// The client did not send a join request element, so it does not know
	// about room configuration and would leave the room locked forever.
	// Unless the room was locked on purpose, open it right away.
	if p.Join == nil && room.Locked() && !room.ManuallyLocked() {
		if err := room.Unlock(occ); err != nil {
			m.logger.Warn().Err(err).
				Str("room", room.Addr().String()).
				Msg("cannot unlock instant room")
		}
	}

	m.rooms.Put(key, room)
	s.setOccupant(key, occ)
}

// changeNickname retires the old nickname with a forwarding notification and
// re-announces the occupant under the new one.
func (s *Session) changeNickname(p *mucd.Presence, occ *mucd.Occupant, nick string) {
	room := occ.Room()
	if !room.CanChangeNickname() {
		s.reply(p.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "room does not allow nickname changes"})))
		return
	}
	// A user joined from several clients shares the nickname between them;
	// moving one client would tear the others' identity apart.
	if len(room.OccupantsByBareJID(occ.RealAddr().Bare())) > 1 {
		s.reply(p.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.NotAcceptable, Text: "nickname is shared by several connections"})))
		return
	}
	if room.HasOccupant(nick) {
		s.reply(p.ErrorReply(mucd.WireError(mucd.Error{Kind: mucd.Conflict, Text: "nickname is already in use"})))
		return
	}

	oldNick := occ.Nick()
	farewell := occ.Presence()
	if farewell == nil {
		farewell = &mucd.Presence{}
		farewell.From = occ.Addr()
	}
	farewell.Type = stanza.UnavailablePresence
	farewell.User = &mucd.UserExtension{
		Item:   &mucd.Item{Nick: nick},
		Status: []mucd.Status{{Code: mucd.StatusNickChanged}},
	}
	room.Send(farewell, occ)

	occ.ChangeNickname(nick)
	occ.SetPresence(p)
	room.NicknameChanged(occ, occ.Presence(), oldNick, nick)
}
