package customer

import "github.com/kiranshivaraju/memberbase/internal/validate"

// ConflictError is a uniqueness violation the user can act on, such as a
// phone number already held by another customer of the tenant.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Details returns the conflict in the same shape as validation errors.
func (e *ConflictError) Details() validate.Errors {
	return validate.Single(e.Field, e.Message)
}
