// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"encoding/xml"
	"strings"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"
)

// AdminQuery is the http://jabber.org/protocol/muc#admin query payload.
type AdminQuery struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#admin query"`
	Items   []Item   `xml:"item"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (q AdminQuery) TokenReader() xml.TokenReader {
	items := make([]xml.TokenReader, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, item.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(items...),
		xml.StartElement{Name: xml.Name{Space: muc.NSAdmin, Local: "query"}},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (q AdminQuery) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, q.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (q AdminQuery) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := q.WriteXML(e)
	return err
}

// OwnerQuery is the http://jabber.org/protocol/muc#owner query payload. The
// engine does not interpret it; it is handed to the room's owner
// administration handler verbatim.
type OwnerQuery struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#owner query"`
	Inner   string   `xml:",innerxml"`
}

// Ping is the urn:xmpp:ping payload of a liveness check (XEP-0199).
type Ping struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

// IQ is an info/query stanza together with the payloads the engine
// interprets. Payloads other than muc#admin, muc#owner, and ping are kept raw
// for private delivery to another occupant.
type IQ struct {
	stanza.IQ

	Admin   *AdminQuery
	Owner   *OwnerQuery
	Ping    *Ping
	FMUC    *FMUC
	Error   *stanza.Error
	Payload []RawXML
}

// IsRequest reports whether the IQ is of type get or set.
func (iq *IQ) IsRequest() bool {
	return iq.Type == stanza.GetIQ || iq.Type == stanza.SetIQ
}

// Copy returns a deep copy of the iq.
func (iq *IQ) Copy() *IQ {
	c := *iq
	if iq.Admin != nil {
		a := *iq.Admin
		a.Items = append([]Item(nil), iq.Admin.Items...)
		c.Admin = &a
	}
	if iq.Owner != nil {
		o := *iq.Owner
		c.Owner = &o
	}
	if iq.Ping != nil {
		p := *iq.Ping
		c.Ping = &p
	}
	if iq.FMUC != nil {
		f := *iq.FMUC
		c.FMUC = &f
	}
	if iq.Error != nil {
		e := *iq.Error
		c.Error = &e
	}
	c.Payload = append([]RawXML(nil), iq.Payload...)
	return &c
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (iq *IQ) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if iq.Admin != nil {
		inner = append(inner, iq.Admin.TokenReader())
	}
	if iq.Owner != nil {
		inner = append(inner, xmlstream.Wrap(
			xml.NewDecoder(strings.NewReader(iq.Owner.Inner)),
			xml.StartElement{Name: xml.Name{Space: muc.NSOwner, Local: "query"}},
		))
	}
	if iq.Ping != nil {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{
			Name: xml.Name{Space: "urn:xmpp:ping", Local: "ping"},
		}))
	}
	if iq.FMUC != nil {
		inner = append(inner, iq.FMUC.TokenReader())
	}
	if payload := rawReader(iq.Payload); payload != nil {
		inner = append(inner, payload)
	}
	if iq.Error != nil {
		inner = append(inner, iq.Error.TokenReader())
	}
	return iq.IQ.Wrap(xmlstream.MultiReader(inner...))
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (iq *IQ) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, iq.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (iq *IQ) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := iq.WriteXML(e)
	return err
}

// Result builds the result IQ answering this request. The payload may be
// nil.
func (iq *IQ) Result(admin *AdminQuery) *IQ {
	return &IQ{
		IQ: stanza.IQ{
			ID:   iq.ID,
			To:   iq.From,
			From: iq.To,
			Type: stanza.ResultIQ,
		},
		Admin: admin,
	}
}

// ErrorReply builds the error IQ that is routed back to the sender. The
// original payload is echoed back as required for IQ errors.
func (iq *IQ) ErrorReply(se stanza.Error) *IQ {
	return &IQ{
		IQ: stanza.IQ{
			ID:   iq.ID,
			To:   iq.From,
			From: iq.To,
			Type: stanza.ErrorIQ,
		},
		Admin:   iq.Admin,
		Owner:   iq.Owner,
		Ping:    iq.Ping,
		Payload: iq.Payload,
		Error:   &se,
	}
}

// UnmarshalXML implements xml.Unmarshaler.
func (iq *IQ) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		ID      string        `xml:"id,attr"`
		To      jid.JID       `xml:"to,attr"`
		From    jid.JID       `xml:"from,attr"`
		Lang    string        `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
		Type    stanza.IQType `xml:"type,attr"`
		Admin   *AdminQuery   `xml:"http://jabber.org/protocol/muc#admin query"`
		Owner   *OwnerQuery   `xml:"http://jabber.org/protocol/muc#owner query"`
		Ping    *Ping         `xml:"urn:xmpp:ping ping"`
		FMUC    *FMUC         `xml:"http://isode.com/protocol/fmuc fmuc"`
		Error   *stanza.Error `xml:"error"`
		Payload []RawXML      `xml:",any"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	iq.IQ = stanza.IQ{
		ID:   raw.ID,
		To:   raw.To,
		From: raw.From,
		Lang: raw.Lang,
		Type: raw.Type,
	}
	iq.Admin = raw.Admin
	iq.Owner = raw.Owner
	iq.Ping = raw.Ping
	iq.FMUC = raw.FMUC
	iq.Error = raw.Error
	iq.Payload = raw.Payload
	return nil
}
