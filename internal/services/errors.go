package services

import "errors"

var (
	errParticipantInactive = errors.New("participant is no longer active")
	// errThreadNotVisible marks an ensure that lost an insert race before the
	// winner committed. Callers retry.
	errThreadNotVisible = errors.New("chat thread not visible yet")
)
