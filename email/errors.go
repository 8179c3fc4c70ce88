package email

import (
	"errors"
	"fmt"
)

// ErrAttachmentTooLarge is wrapped by an AttachmentReadError when an
// attachment stream holds more bytes than the Mailer allows.
var ErrAttachmentTooLarge = errors.New("attachment exceeds the maximum size")

// ErrStartTLSUnsupported is wrapped by a DeliveryError when STARTTLS is
// required but the relay doesn't advertise it.
var ErrStartTLSUnsupported = errors.New("the relay doesn't support STARTTLS")

// ErrNoTransport is wrapped by a DeliveryError when a Mailer was built
// without a Transport.
var ErrNoTransport = errors.New("the mailer has no transport")

// InvalidAddressError means a sender or recipient string could not be parsed
// as a single mailbox. It is always returned before any part assembly takes
// place, so the transport never sees the message.
type InvalidAddressError struct {
	Field string // "from" or "to"
	Value string
	Err   error
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid %v address %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidAddressError) Unwrap() error { return e.Err }

// AttachmentReadError means an attachment stream could not be read in full.
// The send is aborted and nothing is handed to the transport.
type AttachmentReadError struct {
	FileName string
	Err      error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("can't read attachment %q: %v", e.FileName, e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

// DeliveryError carries the transport's diagnostic for a message that was
// composed and attempted but not accepted. Code is the SMTP reply code when
// the relay sent one, and 0 otherwise (e.g., the connection was refused).
type DeliveryError struct {
	Relay string
	Code  int
	Err   error
}

func (e *DeliveryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("delivery to %v failed with code %v: %v", e.Relay, e.Code, e.Err)
	}
	return fmt.Sprintf("delivery to %v failed: %v", e.Relay, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
