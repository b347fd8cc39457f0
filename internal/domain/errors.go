package domain

import "errors"

// Domain errors - these are business logic errors that should be translated
// to appropriate HTTP status codes by the handler layer

var (
	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	// Problem errors
	ErrProblemNotFound   = errors.New("problem not found")
	ErrInvalidDifficulty = errors.New("invalid difficulty level")
	ErrEmptyUpdate       = errors.New("update contains no fields")

	// Import errors
	ErrImportRejected    = errors.New("import rejected: upload contains invalid rows")
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .json")
	ErrNothingToImport   = errors.New("upload contains no problems")

	// Progress errors
	ErrInvalidAction = errors.New("invalid progress action")

	// Batch errors
	ErrPartialBatch = errors.New("some items in the batch failed")

	// General errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with the given error and message
func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{
		Err:     err,
		Message: message,
	}
}
