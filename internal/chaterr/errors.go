package chaterr

import "errors"

var (
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrUnknownRoom         = errors.New("unknown room")
	ErrValidation          = errors.New("validation failed")
	ErrDisconnected        = errors.New("transport disconnected")
	ErrNotFound            = errors.New("not found")
	ErrInternal            = errors.New("internal error")
)
