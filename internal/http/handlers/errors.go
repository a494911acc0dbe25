package handlers

import "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"

var (
	errMissingOpen = apierr.BadRequest("missing_open", "open must be true or false")
	errInvalidID   = apierr.BadRequest("invalid_id", "id must be a UUID")
)
