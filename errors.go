// Copyright 2023 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mucd

import (
	"errors"

	"mellium.im/xmpp/stanza"
)

// Kind is the closed set of failure kinds that a room operation may report.
//
// Handlers match on the kind to pick a wire condition; they never inspect the
// concrete error type of the room implementation.
type Kind uint8

// A list of failure kinds.
const (
	// KindNone is the zero value and does not describe a failure.
	KindNone Kind = iota

	// Forbidden indicates that the acting user lacks the privilege required
	// for the operation.
	Forbidden

	// Conflict indicates a nickname collision, or that the operation would
	// leave the room in an invalid state (such as a room without owners).
	Conflict

	// NotAllowed indicates an attempt to ban, or demote the role of, an owner
	// or administrator in a way the protocol forbids.
	NotAllowed

	// CannotBeInvited indicates that the user being invited does not have
	// access to the room.
	CannotBeInvited

	// NotFound indicates that the addressed occupant (for example the
	// recipient of a private message) is not in the room.
	NotFound

	// Unauthorized indicates that the user is not authorized to create or
	// join the room.
	Unauthorized

	// ServiceUnavailable indicates that the maximum number of users of the
	// room has been reached.
	ServiceUnavailable

	// RoomLocked indicates that the room is locked awaiting its initial
	// configuration and cannot be entered.
	RoomLocked

	// RegistrationRequired indicates a members-only room being entered by a
	// user that is not a member.
	RegistrationRequired

	// NotAcceptable indicates a request that is understood but cannot be
	// honored, such as joining with a nickname different from the reserved
	// one.
	NotAcceptable
)

// Condition returns the stanza error condition that is reported on the wire
// for failures of this kind.
func (k Kind) Condition() stanza.Condition {
	switch k {
	case Forbidden:
		return stanza.Forbidden
	case Conflict:
		return stanza.Conflict
	case NotAllowed:
		return stanza.NotAllowed
	case CannotBeInvited, NotAcceptable:
		return stanza.NotAcceptable
	case NotFound:
		return stanza.RecipientUnavailable
	case Unauthorized:
		return stanza.NotAuthorized
	case ServiceUnavailable:
		return stanza.ServiceUnavailable
	case RoomLocked:
		return stanza.ItemNotFound
	case RegistrationRequired:
		return stanza.RegistrationRequired
	}
	return stanza.InternalServerError
}

// ErrorType returns the stanza error type that accompanies the condition.
func (k Kind) ErrorType() stanza.ErrorType {
	switch k {
	case Forbidden, Unauthorized, RegistrationRequired:
		return stanza.Auth
	case CannotBeInvited, NotAcceptable:
		return stanza.Modify
	case NotFound, ServiceUnavailable:
		return stanza.Wait
	}
	return stanza.Cancel
}

// Error is the error reported by room operations and by the guarded mutations
// of Occupant.
type Error struct {
	Kind Kind
	Text string
}

// Error satisfies the error interface.
func (e Error) Error() string {
	if e.Text != "" {
		return e.Text
	}
	return string(e.Kind.Condition())
}

// StanzaError converts the error into the stanza error that is attached to
// the reply.
func (e Error) StanzaError() stanza.Error {
	se := stanza.Error{
		Type:      e.Kind.ErrorType(),
		Condition: e.Kind.Condition(),
	}
	if e.Text != "" {
		se.Text = map[string]string{"": e.Text}
	}
	return se
}

// Is makes errors of the same kind match for the purpose of errors.Is.
func (e Error) Is(target error) bool {
	var mucErr Error
	if errors.As(target, &mucErr) {
		return mucErr.Kind == KindNone || mucErr.Kind == e.Kind
	}
	return false
}

// ErrorKind reports the failure kind carried by err, or KindNone if err does
// not carry one.
func ErrorKind(err error) Kind {
	var mucErr Error
	if errors.As(err, &mucErr) {
		return mucErr.Kind
	}
	return KindNone
}

// WireError builds the stanza error for an arbitrary error returned by a room
// operation. Errors that do not carry a Kind map to internal-server-error so
// that no failure ever crosses back to the transport layer as a crash.
func WireError(err error) stanza.Error {
	var mucErr Error
	if errors.As(err, &mucErr) {
		return mucErr.StanzaError()
	}
	return stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.InternalServerError,
	}
}
