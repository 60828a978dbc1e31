package app

import "fmt"

// DomainError is the error type every operation in this package returns for
// expected failures: invalid dates, unknown catalog kinds, missing children.
// Status is the HTTP status the transport layer should answer with; Code is
// the stable machine-readable discriminator clients switch on; Details is
// optional structured context (for example the conflicting free-day ranges).
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// domainError is the one constructor; operations never build the struct
// literal themselves so every error carries a status and a code.
func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
