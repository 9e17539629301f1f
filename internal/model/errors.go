package model

import "errors"

var (
	ErrInvalidClipRange        = errors.New("clip range is invalid")
	ErrInvalidStatusTransition = errors.New("invalid job status transition")
	ErrUnknownStatus           = errors.New("unknown job status")
	ErrInvalidJobRequest       = errors.New("job request is invalid")
)
