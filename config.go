// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

// Config holds the service level options of the engine. The zero value is a
// usable default.
type Config struct {
	// SkipInvite suppresses the invitation that is normally sent to a user
	// when it is added to the member list of a members-only room.
	SkipInvite bool

	// SelfPingEnabled makes the engine answer pings that an occupant sends to
	// its own occupant address, so that clients can probe whether they are
	// still joined. When disabled such pings are routed to the client behind
	// the occupant like any other private iq.
	SelfPingEnabled bool
}
