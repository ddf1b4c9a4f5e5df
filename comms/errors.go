package comms

import "errors"

// Send errors
var (
	ErrNoTarget       = errors.New("no target given and no previous contact")
	ErrTargetNotFound = errors.New("no target could be found")
	ErrNoRecipients   = errors.New("envelope has no recipients")
	ErrNoSender       = errors.New("envelope has no sender")
)

// Query errors
var (
	ErrInvalidLimit  = errors.New("limit must be a positive number")
	ErrInvalidFilter = errors.New("unknown history filter")
)

// ReasonNotAllowed is the block reason reported when a recipient refuses the sender.
const ReasonNotAllowed = "not allowed to receive messages from sender"
