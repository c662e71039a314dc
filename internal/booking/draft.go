package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"ms-booking/internal/models"

	"github.com/go-playground/validator/v10"
)

// DraftVersion is the current version of the redirect envelope.
const DraftVersion = 1

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

type draftEnvelope struct {
	Version int `json:"v"`
	models.BookingDraft
}

// ValidateDraft checks the draft fields and returns an ErrValidation error
// naming the first offending field.
func ValidateDraft(d models.BookingDraft) error {
	return validateStruct(d)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return validationError(fieldMessage(fe), err)
	}
	return validationError("invalid booking data", err)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Field() {
	case "UserName":
		field = "user_name"
	case "UserEmail":
		field = "user_email"
	case "UserPhone":
		field = "user_phone"
	case "EventID":
		field = "event_id"
	case "TotalAmount":
		field = "total_amount"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "phone":
		return field + " must contain at least 10 digits"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return field + " is invalid"
}

// EncodeDraft serialises a draft into the query-parameter form carried
// through the payment redirect.
func EncodeDraft(d models.BookingDraft) (string, error) {
	raw, err := json.Marshal(draftEnvelope{Version: DraftVersion, BookingDraft: d})
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(raw)), nil
}

// DecodeDraft reverses EncodeDraft and validates the result. Unknown fields
// and unknown versions are rejected.
func DecodeDraft(encoded string) (models.BookingDraft, error) {
	if encoded == "" {
		return models.BookingDraft{}, validationError("booking data is missing", nil)
	}
	// A value that already looks like JSON was unescaped by query parsing;
	// unescaping it again would turn "+" into a space.
	raw := encoded
	if !strings.HasPrefix(strings.TrimSpace(encoded), "{") {
		var err error
		if raw, err = url.QueryUnescape(encoded); err != nil {
			return models.BookingDraft{}, validationError("booking data is not url encoded", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var env draftEnvelope
	if err := dec.Decode(&env); err != nil {
		return models.BookingDraft{}, validationError("booking data is malformed", err)
	}
	if dec.More() {
		return models.BookingDraft{}, validationError("booking data has trailing content", nil)
	}
	if env.Version != DraftVersion {
		return models.BookingDraft{}, validationError(fmt.Sprintf("unsupported booking data version %d", env.Version), nil)
	}
	if err := ValidateDraft(env.BookingDraft); err != nil {
		return models.BookingDraft{}, err
	}
	return env.BookingDraft, nil
}
