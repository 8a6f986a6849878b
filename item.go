// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
)

// Status codes broadcast with occupant presence, as registered for the
// http://jabber.org/protocol/muc#user namespace.
const (
	// StatusSelf marks a presence as describing the receiving occupant itself.
	StatusSelf = 110

	// StatusCreated marks the presence confirming creation of a new room.
	StatusCreated = 201

	// StatusBanned is sent with the unavailable presence of a banned occupant.
	StatusBanned = 301

	// StatusNickChanged is sent with the unavailable presence under the old
	// nickname when an occupant changes its nickname.
	StatusNickChanged = 303

	// StatusKicked is sent with the unavailable presence of a kicked occupant.
	StatusKicked = 307
)

// Status is a numeric status code in an occupant presence or admin payload.
type Status struct {
	Code int `xml:"code,attr"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (s Status) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Local: "status"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "code"}, Value: strconv.Itoa(s.Code)}},
	})
}

// Item describes a user in an occupant presence or in a muc#admin query: an
// affiliation or role, the real JID (where it may be revealed), and the
// nickname.
//
// A nil Affiliation or Role pointer means the attribute was absent from the
// wire, which is significant: a "none" role item without an affiliation
// attribute is a kick, while one with affiliation="none" merely clears the
// affiliation.
type Item struct {
	Affiliation *muc.Affiliation `xml:"affiliation,attr,omitempty"`
	Role        *muc.Role        `xml:"role,attr,omitempty"`
	JID         jid.JID          `xml:"jid,attr,omitempty"`
	Nick        string           `xml:"nick,attr,omitempty"`
	Reason      string           `xml:"reason,omitempty"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (i Item) TokenReader() xml.TokenReader {
	var attr []xml.Attr
	if i.Affiliation != nil {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "affiliation"}, Value: i.Affiliation.String()})
	}
	if i.Role != nil {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "role"}, Value: i.Role.String()})
	}
	if !i.JID.Equal(jid.JID{}) {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "jid"}, Value: i.JID.String()})
	}
	if i.Nick != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "nick"}, Value: i.Nick})
	}
	var reason xml.TokenReader
	if i.Reason != "" {
		reason = xmlstream.Wrap(
			xmlstream.Token(xml.CharData(i.Reason)),
			xml.StartElement{Name: xml.Name{Local: "reason"}},
		)
	}
	return xmlstream.Wrap(reason, xml.StartElement{
		Name: xml.Name{Local: "item"},
		Attr: attr,
	})
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (i Item) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, i.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (i Item) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := i.WriteXML(e)
	return err
}

// AffiliationPtr is a convenience for building items whose affiliation
// attribute is present.
func AffiliationPtr(a muc.Affiliation) *muc.Affiliation { return &a }

// RolePtr is a convenience for building items whose role attribute is
// present.
func RolePtr(r muc.Role) *muc.Role { return &r }

// Invite is a single mediated invitation inside a muc#user extension.
type Invite struct {
	To     jid.JID `xml:"to,attr"`
	Reason string  `xml:"reason"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (i Invite) TokenReader() xml.TokenReader {
	var reason xml.TokenReader
	if i.Reason != "" {
		reason = xmlstream.Wrap(
			xmlstream.Token(xml.CharData(i.Reason)),
			xml.StartElement{Name: xml.Name{Local: "reason"}},
		)
	}
	return xmlstream.Wrap(reason, xml.StartElement{
		Name: xml.Name{Local: "invite"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "to"}, Value: i.To.String()}},
	})
}

// Decline is the rejection of a mediated invitation inside a muc#user
// extension. The To attribute names the original inviter.
type Decline struct {
	To     jid.JID `xml:"to,attr"`
	Reason string  `xml:"reason"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (d Decline) TokenReader() xml.TokenReader {
	var reason xml.TokenReader
	if d.Reason != "" {
		reason = xmlstream.Wrap(
			xmlstream.Token(xml.CharData(d.Reason)),
			xml.StartElement{Name: xml.Name{Local: "reason"}},
		)
	}
	return xmlstream.Wrap(reason, xml.StartElement{
		Name: xml.Name{Local: "decline"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "to"}, Value: d.To.String()}},
	})
}

// UserExtension is the http://jabber.org/protocol/muc#user element carried by
// occupant presence and by invitation messages.
type UserExtension struct {
	XMLName  xml.Name `xml:"http://jabber.org/protocol/muc#user x"`
	Item     *Item    `xml:"item"`
	Status   []Status `xml:"status"`
	Invites  []Invite `xml:"invite"`
	Decline  *Decline `xml:"decline"`
	Password string   `xml:"password"`
}

// HasStatus reports whether the extension carries the given status code.
func (u *UserExtension) HasStatus(code int) bool {
	if u == nil {
		return false
	}
	for _, s := range u.Status {
		if s.Code == code {
			return true
		}
	}
	return false
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (u UserExtension) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, 2+len(u.Status)+len(u.Invites))
	if u.Item != nil {
		inner = append(inner, u.Item.TokenReader())
	}
	for _, s := range u.Status {
		inner = append(inner, s.TokenReader())
	}
	for _, i := range u.Invites {
		inner = append(inner, i.TokenReader())
	}
	if u.Decline != nil {
		inner = append(inner, u.Decline.TokenReader())
	}
	if u.Password != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(u.Password)),
			xml.StartElement{Name: xml.Name{Local: "password"}},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: muc.NSUser, Local: "x"}},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (u UserExtension) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, u.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (u UserExtension) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := u.WriteXML(e)
	return err
}

// FMUC is the federation metadata element stamped on stanzas that cross a
// federation link (XEP-0289).
type FMUC struct {
	XMLName xml.Name `xml:"http://isode.com/protocol/fmuc fmuc"`
	From    string   `xml:"from,attr,omitempty"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (f FMUC) TokenReader() xml.TokenReader {
	var attr []xml.Attr
	if f.From != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: f.From})
	}
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: NSFMUC, Local: "fmuc"},
		Attr: attr,
	})
}
