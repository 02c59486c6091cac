package handler

import (
	"errors"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/identity"
)

// isValidationError distinguishes a bad request from an internal failure.
func isValidationError(err error) bool {
	return errors.Is(err, identity.ErrInvalidIdentity) ||
		errors.Is(err, event.ErrMissingEventType)
}
