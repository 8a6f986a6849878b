// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd_test

import (
	"testing"

	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"

	"mellium.im/mucd"
	"mellium.im/mucd/internal/mucdtest"
)

var (
	roomAddr = jid.MustParse("lounge@muc.example.net")
	aliceJID = jid.MustParse("alice@example.net/balcony")
)

func newTestOccupant(t *testing.T, aff muc.Affiliation, role muc.Role) (*mucd.Occupant, *mucdtest.Router) {
	t.Helper()
	router := &mucdtest.Router{}
	room := mucdtest.NewRoom(roomAddr, router)
	p := &mucd.Presence{Presence: stanza.Presence{From: aliceJID}}
	return mucd.NewOccupant(room, aliceJID, "alice", aff, role, p, router, zerolog.Nop()), router
}

func TestSetRoleGuards(t *testing.T) {
	tests := []struct {
		name string
		aff  muc.Affiliation
		role muc.Role
		next muc.Role
		kind mucd.Kind
	}{
		{name: "owner demoted", aff: muc.AffiliationOwner, role: muc.RoleModerator, next: muc.RoleParticipant, kind: mucd.NotAllowed},
		{name: "admin demoted", aff: muc.AffiliationAdmin, role: muc.RoleModerator, next: muc.RoleVisitor, kind: mucd.NotAllowed},
		{name: "owner stays moderator", aff: muc.AffiliationOwner, role: muc.RoleModerator, next: muc.RoleModerator},
		{name: "affiliated moderator kicked", aff: muc.AffiliationMember, role: muc.RoleModerator, next: muc.RoleNone, kind: mucd.NotAllowed},
		{name: "plain moderator kicked", aff: muc.AffiliationNone, role: muc.RoleModerator, next: muc.RoleNone},
		{name: "participant kicked", aff: muc.AffiliationNone, role: muc.RoleParticipant, next: muc.RoleNone},
		{name: "participant promoted", aff: muc.AffiliationNone, role: muc.RoleParticipant, next: muc.RoleModerator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o, _ := newTestOccupant(t, tc.aff, tc.role)
			err := o.SetRole(tc.next)
			if kind := mucd.ErrorKind(err); kind != tc.kind {
				t.Fatalf("wrong failure kind: want %d, got %d (err %v)", tc.kind, kind, err)
			}
			if tc.kind != mucd.KindNone {
				if got := o.Role(); got != tc.role {
					t.Errorf("role changed despite rejection: got %v", got)
				}
				return
			}
			if got := o.Role(); got != tc.next {
				t.Errorf("role not applied: want %v, got %v", tc.next, got)
			}
		})
	}
}

func TestSetRoleNoneMarksUnavailable(t *testing.T) {
	o, _ := newTestOccupant(t, muc.AffiliationNone, muc.RoleParticipant)
	p := &mucd.Presence{Presence: stanza.Presence{From: aliceJID}, Status: "around"}
	o.SetPresence(p)
	if err := o.SetRole(muc.RoleNone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := o.Presence()
	if got.Type != stanza.UnavailablePresence {
		t.Errorf("presence not marked unavailable: got %q", got.Type)
	}
	if got.Status != "" {
		t.Errorf("status text not cleared: got %q", got.Status)
	}
}

func TestSetAffiliationGuards(t *testing.T) {
	tests := []struct {
		name string
		aff  muc.Affiliation
		next muc.Affiliation
		kind mucd.Kind
	}{
		{name: "ban owner", aff: muc.AffiliationOwner, next: muc.AffiliationOutcast, kind: mucd.NotAllowed},
		{name: "ban admin", aff: muc.AffiliationAdmin, next: muc.AffiliationOutcast, kind: mucd.NotAllowed},
		{name: "ban member", aff: muc.AffiliationMember, next: muc.AffiliationOutcast},
		{name: "demote owner", aff: muc.AffiliationOwner, next: muc.AffiliationMember},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o, _ := newTestOccupant(t, tc.aff, muc.RoleModerator)
			err := o.SetAffiliation(tc.next)
			if kind := mucd.ErrorKind(err); kind != tc.kind {
				t.Fatalf("wrong failure kind: want %d, got %d (err %v)", tc.kind, kind, err)
			}
			if tc.kind == mucd.KindNone && o.Affiliation() != tc.next {
				t.Errorf("affiliation not applied: want %v, got %v", tc.next, o.Affiliation())
			}
		})
	}
}

func TestIdentityExtensionRebuilt(t *testing.T) {
	o, _ := newTestOccupant(t, muc.AffiliationNone, muc.RoleParticipant)
	if err := o.SetAffiliation(muc.AffiliationMember); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := o.Presence()
	if p.User == nil || p.User.Item == nil {
		t.Fatal("presence lacks identity extension")
	}
	if p.User.Item.Affiliation == nil || *p.User.Item.Affiliation != muc.AffiliationMember {
		t.Errorf("identity extension missing new affiliation: %+v", p.User.Item)
	}
	if p.User.Item.Role == nil || *p.User.Item.Role != muc.RoleParticipant {
		t.Errorf("identity extension missing role: %+v", p.User.Item)
	}
	// The room does not disclose real addresses, so the extension must not
	// leak one.
	if !p.User.Item.JID.Equal(jid.JID{}) {
		t.Errorf("real address leaked: %v", p.User.Item.JID)
	}
}

func TestIdentityExtensionDisclosesJID(t *testing.T) {
	router := &mucdtest.Router{}
	room := mucdtest.NewRoom(roomAddr, router)
	room.DiscoverJID = true
	p := &mucd.Presence{Presence: stanza.Presence{From: aliceJID}}
	o := mucd.NewOccupant(room, aliceJID, "alice", muc.AffiliationMember, muc.RoleParticipant, p, router, zerolog.Nop())
	got := o.Presence()
	if got.User == nil || got.User.Item == nil || !got.User.Item.JID.Equal(aliceJID) {
		t.Fatalf("real address not disclosed: %+v", got.User)
	}
}

func TestSetPresenceStripsJoinRequest(t *testing.T) {
	o, _ := newTestOccupant(t, muc.AffiliationNone, muc.RoleParticipant)
	p := &mucd.Presence{
		Presence: stanza.Presence{From: aliceJID},
		Join:     &mucd.JoinRequest{Password: "hunter2"},
	}
	o.SetPresence(p)
	got := o.Presence()
	if got.Join != nil {
		t.Error("join request element not stripped")
	}
	if !got.From.Equal(o.Addr()) {
		t.Errorf("sender not stamped with occupant address: got %v, want %v", got.From, o.Addr())
	}
}

func TestChangeNickname(t *testing.T) {
	o, _ := newTestOccupant(t, muc.AffiliationNone, muc.RoleParticipant)
	o.ChangeNickname("alicia")
	want := jid.MustParse("lounge@muc.example.net/alicia")
	if !o.Addr().Equal(want) {
		t.Errorf("occupant address not recomputed: got %v, want %v", o.Addr(), want)
	}
	if got := o.Presence(); !got.From.Equal(want) {
		t.Errorf("presence sender out of step with address: got %v", got.From)
	}
}

func TestVoiceOnlyDetected(t *testing.T) {
	router := &mucdtest.Router{}
	room := mucdtest.NewRoom(roomAddr, router)
	p := &mucd.Presence{
		Presence: stanza.Presence{From: aliceJID},
		Deaf:     &mucd.DeafRequest{DeafOccupant: &struct{}{}},
	}
	o := mucd.NewOccupant(room, aliceJID, "alice", muc.AffiliationNone, muc.RoleParticipant, p, router, zerolog.Nop())
	if !o.VoiceOnly() {
		t.Error("voice-only request not recorded")
	}

	// The x element alone, without the deaf-occupant child, requests nothing.
	p = &mucd.Presence{
		Presence: stanza.Presence{From: aliceJID},
		Deaf:     &mucd.DeafRequest{},
	}
	o = mucd.NewOccupant(room, aliceJID, "bob", muc.AffiliationNone, muc.RoleParticipant, p, router, zerolog.Nop())
	if o.VoiceOnly() {
		t.Error("bare extension treated as a voice-only request")
	}
}

func TestSendRewritesRecipient(t *testing.T) {
	o, router := newTestOccupant(t, muc.AffiliationNone, muc.RoleParticipant)
	o.Send(&mucd.Message{Message: stanza.Message{Type: stanza.GroupChatMessage}, Body: "hi"})
	msgs := router.Messages()
	if len(msgs) != 1 {
		t.Fatalf("wrong number of routed messages: %d", len(msgs))
	}
	if !msgs[0].To.Equal(aliceJID) {
		t.Errorf("recipient not rewritten to real address: got %v", msgs[0].To)
	}
}

func TestSendToRemoteOccupantStampsProvenance(t *testing.T) {
	router := &mucdtest.Router{}
	room := mucdtest.NewRoom(roomAddr, router)
	p := &mucd.Presence{
		Presence: stanza.Presence{From: aliceJID},
		FMUC:     &mucd.FMUC{From: "lobby@muc.remote.example"},
	}
	o := mucd.NewOccupant(room, aliceJID, "alice", muc.AffiliationNone, muc.RoleParticipant, p, router, zerolog.Nop())
	if !o.Remote() {
		t.Fatal("occupant not recognized as remote")
	}
	o.Send(&mucd.Message{Body: "hi"})
	msgs := router.Messages()
	if len(msgs) != 1 {
		t.Fatalf("wrong number of routed messages: %d", len(msgs))
	}
	if msgs[0].FMUC == nil || msgs[0].FMUC.From != "lobby@muc.remote.example" {
		t.Errorf("stanza not stamped with provenance: %+v", msgs[0].FMUC)
	}

	o.Send(&mucd.IQ{IQ: stanza.IQ{Type: stanza.GetIQ, ID: "i1"}})
	iqs := router.IQs()
	if len(iqs) != 1 {
		t.Fatalf("wrong number of routed iqs: %d", len(iqs))
	}
	if iqs[0].FMUC == nil || iqs[0].FMUC.From != "lobby@muc.remote.example" {
		t.Errorf("iq not stamped with provenance: %+v", iqs[0].FMUC)
	}
}
