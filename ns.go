// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

// Namespaces used by this package that are not already provided by
// mellium.im/xmpp/muc.
const (
	// NSFMUC is the namespace of federated MUC (XEP-0289).
	NSFMUC = `http://isode.com/protocol/fmuc`

	// NSDeaf is the namespace of the non-standard extension by which a joining
	// occupant requests to not receive broadcast traffic.
	NSDeaf = `http://jivesoftware.org/protocol/muc`
)
