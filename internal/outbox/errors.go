package outbox

import "errors"

// PermanentError marks a delivery failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the dispatcher fails the row without consuming further attempts.
// Transports use it for rejections that will never succeed (e.g. a malformed address).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

var errMissingRecipient = errors.New("missing recipient: customer has no email address")

// errStaleReminder marks a reminder whose booking was cancelled after the row was claimed
var errStaleReminder = errors.New("booking is no longer confirmed")
