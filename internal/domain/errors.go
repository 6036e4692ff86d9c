package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks rejected input; nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState is returned when an operation does not apply to the
	// entity's current lifecycle state. Callers should re-fetch rather than
	// retry.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyAnswered is returned when the caller's side of a question is
	// already finished.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrPoolExhausted indicates no eligible bank question remains for the
	// requesting round.
	ErrPoolExhausted = errors.New("question pool exhausted")
	// ErrNotParticipant is returned when the caller is not part of the match
	// being played.
	ErrNotParticipant = errors.New("caller is not a match participant")
)
