package service

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrUnknownOffer indicates the postback token did not resolve to an
	// active offer. Unknown and inactive tokens are indistinguishable to
	// the caller so probing cannot map valid tokens.
	ErrUnknownOffer = errors.New("unknown offer token")

	// ErrUnattributable indicates the event's link code does not exist.
	// The event is audited but produces no commission.
	ErrUnattributable = errors.New("event cannot be attributed to an affiliate link")

	// ErrDuplicateEvent indicates the event was already processed. Callers
	// treat this as success with no new side effect.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameTaken indicates a unique name is already in use.
	ErrNameTaken = errors.New("name already in use")

	// ErrLinkInactive indicates a click was attempted on a deactivated link.
	ErrLinkInactive = errors.New("link is not active")
)

// MalformedEventError describes a postback missing or mangling a required
// field. It maps to a 400: final, not retriable, because the house cannot
// fix the request by resending it.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s %s", e.Field, e.Reason)
}

// IsMalformed reports whether err is a MalformedEventError.
func IsMalformed(err error) bool {
	var me *MalformedEventError
	return errors.As(err, &me)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
