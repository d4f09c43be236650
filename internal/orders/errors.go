package orders

import "github.com/go-faster/errors"

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid status")
	ErrCreateFailed  = errors.New("failed to create order")
)

// ValidationError reports a create request whose items cannot be accepted.
type ValidationError struct {
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
