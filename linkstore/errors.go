package linkstore

import "errors"

var (
	// ErrLinkNotFound is returned when the link store has no record for an id.
	ErrLinkNotFound = errors.New("link not found")

	// ErrUnexpectedStatus is returned for any other non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected link store status")
)
