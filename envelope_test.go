// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd_test

import (
	"encoding/xml"
	"testing"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"

	"mellium.im/mucd"
)

func TestItemMarshal(t *testing.T) {
	tests := []struct {
		name string
		item mucd.Item
		want string
	}{
		{
			name: "affiliation with reason",
			item: mucd.Item{
				Affiliation: mucd.AffiliationPtr(muc.AffiliationOutcast),
				JID:         jid.MustParse("bob@example.net"),
				Reason:      "spam",
			},
			want: `<item affiliation="outcast" jid="bob@example.net"><reason>spam</reason></item>`,
		},
		{
			// A kick carries only the role attribute: no affiliation means
			// the affiliation is untouched.
			name: "kick",
			item: mucd.Item{Role: mucd.RolePtr(muc.RoleNone), Nick: "bob"},
			want: `<item role="none" nick="bob"></item>`,
		},
		{
			name: "clear affiliation",
			item: mucd.Item{Affiliation: mucd.AffiliationPtr(muc.AffiliationNone), JID: jid.MustParse("bob@example.net")},
			want: `<item affiliation="none" jid="bob@example.net"></item>`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := xml.Marshal(tc.item)
			if err != nil {
				t.Fatalf("marshal error: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("wrong output:\nwant %s\ngot  %s", tc.want, got)
			}
		})
	}
}

func TestUserExtensionMarshal(t *testing.T) {
	u := mucd.UserExtension{
		Item: &mucd.Item{
			Affiliation: mucd.AffiliationPtr(muc.AffiliationOwner),
			Role:        mucd.RolePtr(muc.RoleModerator),
		},
		Status: []mucd.Status{{Code: mucd.StatusSelf}, {Code: mucd.StatusCreated}},
	}
	want := `<x xmlns="http://jabber.org/protocol/muc#user">` +
		`<item affiliation="owner" role="moderator"></item>` +
		`<status code="110"></status><status code="201"></status></x>`
	got, err := xml.Marshal(u)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(got) != want {
		t.Fatalf("wrong output:\nwant %s\ngot  %s", want, got)
	}
}

func TestAdminQueryMarshal(t *testing.T) {
	q := mucd.AdminQuery{Items: []mucd.Item{
		{Affiliation: mucd.AffiliationPtr(muc.AffiliationMember), JID: jid.MustParse("carol@example.net")},
	}}
	want := `<query xmlns="http://jabber.org/protocol/muc#admin">` +
		`<item affiliation="member" jid="carol@example.net"></item></query>`
	got, err := xml.Marshal(q)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(got) != want {
		t.Fatalf("wrong output:\nwant %s\ngot  %s", want, got)
	}
}

func TestPresenceUnmarshal(t *testing.T) {
	const wire = `<presence id="p1" from="alice@example.net/pda" to="lounge@muc.example.net/alice">` +
		`<x xmlns="http://jabber.org/protocol/muc">` +
		`<password>hunter2</password>` +
		`<history maxstanzas="20" seconds="3600"></history>` +
		`</x>` +
		`<fmuc xmlns="http://isode.com/protocol/fmuc" from="lobby@muc.remote.example"></fmuc>` +
		`</presence>`
	var p mucd.Presence
	if err := xml.Unmarshal([]byte(wire), &p); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("id: got %q", p.ID)
	}
	if p.Join == nil {
		t.Fatal("join request element not decoded")
	}
	if p.Join.Password != "hunter2" {
		t.Errorf("password: got %q", p.Join.Password)
	}
	if p.Join.History == nil || p.Join.History.MaxStanzas == nil || *p.Join.History.MaxStanzas != 20 {
		t.Errorf("history maxstanzas: got %+v", p.Join.History)
	}
	if p.Join.History.Seconds == nil || *p.Join.History.Seconds != 3600 {
		t.Errorf("history seconds: got %+v", p.Join.History)
	}
	if p.Join.History.MaxChars != nil {
		t.Error("absent maxchars decoded as present")
	}
	if p.FMUC == nil || p.FMUC.From != "lobby@muc.remote.example" {
		t.Errorf("fmuc: got %+v", p.FMUC)
	}
}

func TestPresenceUnmarshalDeafOccupant(t *testing.T) {
	const wire = `<presence from="alice@example.net/pda" to="lounge@muc.example.net/alice">` +
		`<x xmlns="http://jabber.org/protocol/muc"></x>` +
		`<x xmlns="http://jivesoftware.org/protocol/muc"><deaf-occupant></deaf-occupant></x>` +
		`</presence>`
	var p mucd.Presence
	if err := xml.Unmarshal([]byte(wire), &p); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if p.Join == nil {
		t.Error("join request element not decoded alongside the extension")
	}
	if !p.Deaf.VoiceOnly() {
		t.Errorf("deaf-occupant request not decoded: %+v", p.Deaf)
	}

	const bare = `<presence from="alice@example.net/pda" to="lounge@muc.example.net/alice">` +
		`<x xmlns="http://jivesoftware.org/protocol/muc"></x>` +
		`</presence>`
	p = mucd.Presence{}
	if err := xml.Unmarshal([]byte(bare), &p); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if p.Deaf.VoiceOnly() {
		t.Error("extension without the deaf-occupant child treated as a request")
	}
}

func TestMessageUnmarshalInvite(t *testing.T) {
	const wire = `<message from="alice@example.net/pda" to="lounge@muc.example.net">` +
		`<x xmlns="http://jabber.org/protocol/muc#user">` +
		`<invite to="carol@example.net"><reason>join us</reason></invite>` +
		`</x>` +
		`</message>`
	var m mucd.Message
	if err := xml.Unmarshal([]byte(wire), &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if m.User == nil || len(m.User.Invites) != 1 {
		t.Fatalf("invite not decoded: %+v", m.User)
	}
	inv := m.User.Invites[0]
	if !inv.To.Equal(jid.MustParse("carol@example.net")) || inv.Reason != "join us" {
		t.Errorf("invite fields: %+v", inv)
	}
}

func TestIQUnmarshalAdminKick(t *testing.T) {
	const wire = `<iq type="set" id="k1" from="alice@example.net/pda" to="lounge@muc.example.net">` +
		`<query xmlns="http://jabber.org/protocol/muc#admin">` +
		`<item nick="bob" role="none"><reason>bye</reason></item>` +
		`</query>` +
		`</iq>`
	var iq mucd.IQ
	if err := xml.Unmarshal([]byte(wire), &iq); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if iq.Type != stanza.SetIQ || !iq.IsRequest() {
		t.Errorf("type: got %q", iq.Type)
	}
	if iq.Admin == nil || len(iq.Admin.Items) != 1 {
		t.Fatalf("admin query not decoded: %+v", iq.Admin)
	}
	item := iq.Admin.Items[0]
	if item.Role == nil || *item.Role != muc.RoleNone {
		t.Errorf("role: got %+v", item.Role)
	}
	// The affiliation attribute is absent: this is a kick, not an
	// affiliation change.
	if item.Affiliation != nil {
		t.Errorf("absent affiliation decoded as present: %v", *item.Affiliation)
	}
	if item.Nick != "bob" || item.Reason != "bye" {
		t.Errorf("item fields: %+v", item)
	}
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		kind mucd.Kind
		cond stanza.Condition
	}{
		{mucd.Forbidden, stanza.Forbidden},
		{mucd.Conflict, stanza.Conflict},
		{mucd.NotAllowed, stanza.NotAllowed},
		{mucd.CannotBeInvited, stanza.NotAcceptable},
		{mucd.NotFound, stanza.RecipientUnavailable},
		{mucd.Unauthorized, stanza.NotAuthorized},
		{mucd.ServiceUnavailable, stanza.ServiceUnavailable},
		{mucd.RoomLocked, stanza.ItemNotFound},
		{mucd.RegistrationRequired, stanza.RegistrationRequired},
		{mucd.NotAcceptable, stanza.NotAcceptable},
	}
	for _, tc := range tests {
		t.Run(string(tc.cond), func(t *testing.T) {
			if got := tc.kind.Condition(); got != tc.cond {
				t.Errorf("condition: want %v, got %v", tc.cond, got)
			}
		})
	}
	// Errors from outside the taxonomy must never leak their details.
	se := mucd.WireError(xml.UnmarshalError("boom"))
	if se.Condition != stanza.InternalServerError {
		t.Errorf("unanticipated error mapped to %v", se.Condition)
	}
}
