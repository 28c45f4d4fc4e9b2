package world

import "errors"

// Precondition errors. Tool handlers fold these into error-shaped results;
// only storage faults propagate as task failures.
var (
	ErrAvatarNotFound  = errors.New("avatar not found")
	ErrLocationUnknown = errors.New("location unknown")
	ErrItemNotFound    = errors.New("item not found")
	ErrItemHeld        = errors.New("item is already held")
	ErrItemNotHere     = errors.New("item is not at this location")
	ErrItemNotHeld     = errors.New("item is not held by this avatar")
)
