package booking

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories. Every error leaving this package matches one of them
// under errors.Is.
var (
	ErrValidation              = errors.New("validation error")
	ErrUnavailable             = errors.New("seats not available")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrReconciliationFailed    = errors.New("reconciliation failed")
	ErrStorage                 = errors.New("storage error")
	ErrNotFound                = errors.New("not found")
)

// BookingError carries a client-safe message next to the detailed one that
// only goes to the logs.
type BookingError struct {
	Category      error
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *BookingError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s: %v", e.InternalError, e.OriginalErr)
	}
	return e.InternalError
}

func (e *BookingError) Unwrap() []error {
	if e.OriginalErr != nil {
		return []error{e.Category, e.OriginalErr}
	}
	return []error{e.Category}
}

func validationError(public string, err error) *BookingError {
	return &BookingError{
		Category:      ErrValidation,
		StatusCode:    http.StatusBadRequest,
		PublicError:   public,
		InternalError: "invalid booking draft: " + public,
		OriginalErr:   err,
	}
}

func unavailableError(eventID string, seats int) *BookingError {
	return &BookingError{
		Category:      ErrUnavailable,
		StatusCode:    http.StatusConflict,
		PublicError:   "seats not available",
		InternalError: fmt.Sprintf("event %s cannot take %d more seats", eventID, seats),
	}
}

func paymentInitiationError(internal string, err error) *BookingError {
	return &BookingError{
		Category:      ErrPaymentInitiationFailed,
		StatusCode:    http.StatusBadGateway,
		PublicError:   "payment could not be started, please try again",
		InternalError: internal,
		OriginalErr:   err,
	}
}

func reconciliationError(internal string, err error) *BookingError {
	return &BookingError{
		Category:      ErrReconciliationFailed,
		StatusCode:    http.StatusUnprocessableEntity,
		PublicError:   "we could not record your payment, please contact the club",
		InternalError: internal,
		OriginalErr:   err,
	}
}

func storageError(internal string, err error) *BookingError {
	return &BookingError{
		Category:      ErrStorage,
		StatusCode:    http.StatusServiceUnavailable,
		PublicError:   "temporary storage error, please retry",
		InternalError: internal,
		OriginalErr:   err,
	}
}

func notFoundError(what, id string, err error) *BookingError {
	return &BookingError{
		Category:      ErrNotFound,
		StatusCode:    http.StatusNotFound,
		PublicError:   what + " not found",
		InternalError: fmt.Sprintf("%s %s not found", what, id),
		OriginalErr:   err,
	}
}

// StatusCode returns the HTTP status for err, 500 for unknown errors.
func StatusCode(err error) int {
	var be *BookingError
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var be *BookingError
	if errors.As(err, &be) {
		return be.PublicError
	}
	return "internal error"
}
