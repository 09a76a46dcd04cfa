// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"errors"
)

// ErrorKind is the coarse classification of a terminal import failure.
// Detailed diagnostic text is a caller concern; the state stream only ever
// carries one of these kinds.
type ErrorKind int

const (
	ErrorGeneric ErrorKind = iota
	ErrorChatAdminRequired
	ErrorInvalidChatType
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorGeneric:
		return "generic"
	case ErrorChatAdminRequired:
		return "chat-admin-required"
	case ErrorInvalidChatType:
		return "invalid-chat-type"
	default:
		return "unknown"
	}
}

// Errors returned by the remote import API.
var (
	ErrChatAdminRequired = errors.New("admin rights in the target chat are required for import")
	ErrInvalidChatType   = errors.New("target chat type does not support history import")
)

// Miscellaneous errors
var (
	ErrSessionNotInitialized = errors.New("import session was never initialized")
	ErrManagerClosed         = errors.New("import manager is closed")
	ErrAlreadyStarted        = errors.New("import is already started")
	ErrNoClient              = errors.New("no session client provided")
	ErrNoExtractor           = errors.New("no archive extractor provided")
)

// KindOf maps an error from the remote service or the extraction step to the
// coarse kind published in the error state. Anything unrecognized is generic.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrChatAdminRequired):
		return ErrorChatAdminRequired
	case errors.Is(err, ErrInvalidChatType):
		return ErrorInvalidChatType
	default:
		return ErrorGeneric
	}
}
