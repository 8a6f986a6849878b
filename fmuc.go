// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

// FederationMode is the policy of a federated room toward the remote nodes
// that mirror it.
type FederationMode uint8

const (
	// MasterMaster lets every joined node accept stanzas for the room on its
	// own authority.
	MasterMaster FederationMode = iota

	// MasterSlave requires joined nodes to defer to this room before a stanza
	// takes effect.
	MasterSlave
)

// String satisfies fmt.Stringer.
func (m FederationMode) String() string {
	switch m {
	case MasterMaster:
		return "master-master"
	case MasterSlave:
		return "master-slave"
	}
	return "unknown"
}
