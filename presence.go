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
	"mellium.im/xmpp/stanza"
)

// HistoryRequest is the history management element of a join request. Nil
// numeric fields mean the attribute was absent.
type HistoryRequest struct {
	MaxChars   *uint64 `xml:"maxchars,attr"`
	MaxStanzas *uint64 `xml:"maxstanzas,attr"`
	Seconds    *uint64 `xml:"seconds,attr"`
	Since      string  `xml:"since,attr"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (h HistoryRequest) TokenReader() xml.TokenReader {
	attrs := make([]xml.Attr, 0, 4)
	if h.MaxChars != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "maxchars"},
			Value: strconv.FormatUint(*h.MaxChars, 10),
		})
	}
	if h.MaxStanzas != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "maxstanzas"},
			Value: strconv.FormatUint(*h.MaxStanzas, 10),
		})
	}
	if h.Seconds != nil {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "seconds"},
			Value: strconv.FormatUint(*h.Seconds, 10),
		})
	}
	if h.Since != "" {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Local: "since"},
			Value: h.Since,
		})
	}
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Local: "history"},
		Attr: attrs,
	})
}

// JoinRequest is the http://jabber.org/protocol/muc element that a
// MUC-capable client attaches to the presence entering a room. Its presence
// on a stanza is itself significant: clients that omit it are joining without
// knowing about MUC, and a room they create is unlocked immediately.
type JoinRequest struct {
	XMLName  xml.Name        `xml:"http://jabber.org/protocol/muc x"`
	Password string          `xml:"password"`
	History  *HistoryRequest `xml:"history"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (j JoinRequest) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if j.History != nil {
		inner = append(inner, j.History.TokenReader())
	}
	if j.Password != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(j.Password)),
			xml.StartElement{Name: xml.Name{Local: "password"}},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: muc.NS, Local: "x"}},
	)
}

// DeafRequest is the non-standard extension by which a joining occupant asks
// to not receive broadcast traffic:
//
//	<x xmlns='http://jivesoftware.org/protocol/muc'><deaf-occupant/></x>
//
// The request is only effective when the deaf-occupant child is present.
type DeafRequest struct {
	XMLName      xml.Name  `xml:"http://jivesoftware.org/protocol/muc x"`
	DeafOccupant *struct{} `xml:"deaf-occupant"`
}

// VoiceOnly reports whether the extension carries the deaf-occupant child.
func (d *DeafRequest) VoiceOnly() bool {
	return d != nil && d.DeafOccupant != nil
}

// Presence is a presence stanza together with the MUC payloads the engine
// interprets.
type Presence struct {
	stanza.Presence

	Show   string
	Status string
	Join   *JoinRequest
	User   *UserExtension
	Deaf   *DeafRequest
	FMUC   *FMUC
	Error  *stanza.Error
}

// Copy returns a deep copy of the presence.
func (p *Presence) Copy() *Presence {
	c := *p
	if p.Join != nil {
		j := *p.Join
		if p.Join.History != nil {
			h := *p.Join.History
			j.History = &h
		}
		c.Join = &j
	}
	if p.User != nil {
		u := *p.User
		if p.User.Item != nil {
			i := *p.User.Item
			u.Item = &i
		}
		u.Status = append([]Status(nil), p.User.Status...)
		u.Invites = append([]Invite(nil), p.User.Invites...)
		if p.User.Decline != nil {
			d := *p.User.Decline
			u.Decline = &d
		}
		c.User = &u
	}
	if p.Deaf != nil {
		d := *p.Deaf
		c.Deaf = &d
	}
	if p.FMUC != nil {
		f := *p.FMUC
		c.FMUC = &f
	}
	if p.Error != nil {
		e := *p.Error
		c.Error = &e
	}
	return &c
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (p *Presence) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if p.Show != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(p.Show)),
			xml.StartElement{Name: xml.Name{Local: "show"}},
		))
	}
	if p.Status != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(p.Status)),
			xml.StartElement{Name: xml.Name{Local: "status"}},
		))
	}
	if p.Join != nil {
		inner = append(inner, p.Join.TokenReader())
	}
	if p.User != nil {
		inner = append(inner, p.User.TokenReader())
	}
	if p.FMUC != nil {
		inner = append(inner, p.FMUC.TokenReader())
	}
	if p.Error != nil {
		inner = append(inner, p.Error.TokenReader())
	}
	return p.Presence.Wrap(xmlstream.MultiReader(inner...))
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (p *Presence) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, p.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (p *Presence) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := p.WriteXML(e)
	return err
}

// ErrorReply builds the error presence that is routed back to the sender.
func (p *Presence) ErrorReply(se stanza.Error) *Presence {
	return &Presence{
		Presence: stanza.Presence{
			ID:   p.ID,
			To:   p.From,
			From: p.To,
			Type: stanza.ErrorPresence,
		},
		Error: &se,
	}
}

// UnmarshalXML implements xml.Unmarshaler.
//
// The stanza.Presence embedded in this type defines its own element name, so
// decoding is spelled out by hand rather than left to struct tags.
func (p *Presence) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		ID     string              `xml:"id,attr"`
		To     jid.JID             `xml:"to,attr"`
		From   jid.JID             `xml:"from,attr"`
		Lang   string              `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
		Type   stanza.PresenceType `xml:"type,attr"`
		Show   string              `xml:"show"`
		Status string              `xml:"status"`
		Join   *JoinRequest        `xml:"http://jabber.org/protocol/muc x"`
		User   *UserExtension      `xml:"http://jabber.org/protocol/muc#user x"`
		Deaf   *DeafRequest        `xml:"http://jivesoftware.org/protocol/muc x"`
		FMUC   *FMUC               `xml:"http://isode.com/protocol/fmuc fmuc"`
		Error  *stanza.Error       `xml:"error"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	p.Presence = stanza.Presence{
		ID:   raw.ID,
		To:   raw.To,
		From: raw.From,
		Lang: raw.Lang,
		Type: raw.Type,
	}
	p.Show = raw.Show
	p.Status = raw.Status
	p.Join = raw.Join
	p.User = raw.User
	p.Deaf = raw.Deaf
	p.FMUC = raw.FMUC
	p.Error = raw.Error
	return nil
}
