// Package apierr defines the error kinds surfaced by the core engine
// (spec.md §7) so callers can branch with errors.Is instead of string
// matching.
package apierr

import "errors"

var (
	// ErrMalformedFrame is returned when a frame fails JSON parse or schema validation.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrRecipientNotFound is returned when a message names an unknown printer UUID.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrRecipientNotConnected indicates the recipient is offline; not an error to the sender.
	ErrRecipientNotConnected = errors.New("recipient not connected")
	// ErrSendFailed indicates a write to a socket failed (timeout or broken pipe).
	ErrSendFailed = errors.New("send failed")
	// ErrInvalidBitmap indicates a bitmap frame failed validation.
	ErrInvalidBitmap = errors.New("invalid bitmap")
	// ErrFirmwareUnavailable indicates no binary exists for (version, platform).
	ErrFirmwareUnavailable = errors.New("firmware unavailable")
	// ErrStoreUnavailable indicates a persistence error.
	ErrStoreUnavailable = errors.New("store unavailable")
)
