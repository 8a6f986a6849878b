// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Message is a message stanza together with the MUC payloads the engine
// interprets. Children that the engine does not interpret are preserved in
// Extra so that invitations and private messages can carry them through
// unchanged.
type Message struct {
	stanza.Message

	Subject *string
	Body    string
	Thread  string
	User    *UserExtension
	FMUC    *FMUC
	Error   *stanza.Error
	Extra   []RawXML
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	c := *m
	if m.Subject != nil {
		s := *m.Subject
		c.Subject = &s
	}
	if m.User != nil {
		u := *m.User
		if m.User.Item != nil {
			i := *m.User.Item
			u.Item = &i
		}
		u.Status = append([]Status(nil), m.User.Status...)
		u.Invites = append([]Invite(nil), m.User.Invites...)
		if m.User.Decline != nil {
			d := *m.User.Decline
			u.Decline = &d
		}
		c.User = &u
	}
	if m.FMUC != nil {
		f := *m.FMUC
		c.FMUC = &f
	}
	if m.Error != nil {
		e := *m.Error
		c.Error = &e
	}
	c.Extra = append([]RawXML(nil), m.Extra...)
	return &c
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (m *Message) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if m.Subject != nil {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(*m.Subject)),
			xml.StartElement{Name: xml.Name{Local: "subject"}},
		))
	}
	if m.Body != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(m.Body)),
			xml.StartElement{Name: xml.Name{Local: "body"}},
		))
	}
	if m.Thread != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(m.Thread)),
			xml.StartElement{Name: xml.Name{Local: "thread"}},
		))
	}
	if m.User != nil {
		inner = append(inner, m.User.TokenReader())
	}
	if extra := rawReader(m.Extra); extra != nil {
		inner = append(inner, extra)
	}
	if m.FMUC != nil {
		inner = append(inner, m.FMUC.TokenReader())
	}
	if m.Error != nil {
		inner = append(inner, m.Error.TokenReader())
	}
	return m.Message.Wrap(xmlstream.MultiReader(inner...))
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (m *Message) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, m.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (m *Message) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := m.WriteXML(e)
	return err
}

// ErrorReply builds the error message that is routed back to the sender.
func (m *Message) ErrorReply(se stanza.Error) *Message {
	return &Message{
		Message: stanza.Message{
			ID:   m.ID,
			To:   m.From,
			From: m.To,
			Type: stanza.ErrorMessage,
		},
		Error: &se,
	}
}

// UnmarshalXML implements xml.Unmarshaler.
func (m *Message) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		ID      string             `xml:"id,attr"`
		To      jid.JID            `xml:"to,attr"`
		From    jid.JID            `xml:"from,attr"`
		Lang    string             `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
		Type    stanza.MessageType `xml:"type,attr"`
		Subject *string            `xml:"subject"`
		Body    string             `xml:"body"`
		Thread  string             `xml:"thread"`
		User    *UserExtension     `xml:"http://jabber.org/protocol/muc#user x"`
		FMUC    *FMUC              `xml:"http://isode.com/protocol/fmuc fmuc"`
		Error   *stanza.Error      `xml:"error"`
		Extra   []RawXML           `xml:",any"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	m.Message = stanza.Message{
		ID:   raw.ID,
		To:   raw.To,
		From: raw.From,
		Lang: raw.Lang,
		Type: raw.Type,
	}
	m.Subject = raw.Subject
	m.Body = raw.Body
	m.Thread = raw.Thread
	m.User = raw.User
	m.FMUC = raw.FMUC
	m.Error = raw.Error
	m.Extra = raw.Extra
	return nil
}
