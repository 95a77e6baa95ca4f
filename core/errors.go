package core

import "errors"

// Protocol misuse errors
var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrInvalidID   = errors.New("invalid requester id")
	ErrDuplicateID = errors.New("requester id already registered")
)
