// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"encoding/xml"
	"strings"

	"mellium.im/xmlstream"
)

// RawXML is a child element that the engine does not interpret but must carry
// through unchanged, such as the extra extensions attached to an invitation
// message or the payload of a private IQ exchanged between two occupants.
type RawXML struct {
	XMLName xml.Name
	XML     string
}

// UnmarshalXML implements xml.Unmarshaler by re-encoding the element,
// including the start tag and any attributes, into the XML field.
func (r *RawXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	r.XMLName = start.Name
	var buf strings.Builder
	e := xml.NewEncoder(&buf)
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
		if err := e.EncodeToken(tok); err != nil {
			return err
		}
	}
	if err := e.Flush(); err != nil {
		return err
	}
	r.XML = buf.String()
	return nil
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (r RawXML) TokenReader() xml.TokenReader {
	return xml.NewDecoder(strings.NewReader(r.XML))
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (r RawXML) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, r.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (r RawXML) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := r.WriteXML(e)
	return err
}

func rawReader(raw []RawXML) xml.TokenReader {
	if len(raw) == 0 {
		return nil
	}
	rs := make([]xml.TokenReader, 0, len(raw))
	for _, r := range raw {
		rs = append(rs, r.TokenReader())
	}
	return xmlstream.MultiReader(rs...)
}
