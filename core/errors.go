package core

import (
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput           = "SERVICE_BAD_INPUT"
	ServiceErrorProvider           = "SERVICE_PROVIDER_ERROR"
	ServiceErrorStateMismatch      = "SERVICE_OAUTH_STATE_MISMATCH"
	ServiceErrorCredentialsMissing = "SERVICE_CREDENTIALS_MISSING"
	ServiceErrorMalformedTimestamp = "SERVICE_MALFORMED_TIMESTAMP"
	ServiceErrorNotFound           = "SERVICE_NOT_FOUND"
	ServiceErrorInternal           = "SERVICE_INTERNAL_ERROR"
)

// ProviderError reports an OAuth error or a non-success upstream status.
// The HTTP code carries the upstream status.
func ProviderError(status int, message string) *goerrors.Error {
	if status <= 0 {
		status = http.StatusBadGateway
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "provider request failed"
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(ServiceErrorProvider).
		WithMetadata(map[string]any{"provider_status": status})
}

func StateMismatchError() *goerrors.Error {
	return goerrors.New("State does not match.", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorStateMismatch)
}

func CredentialsMissingError(message string) *goerrors.Error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "No credentials found."
	}
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorCredentialsMissing)
}

func MalformedTimestampError(field string, value string, cause error) *goerrors.Error {
	err := goerrors.New("malformed timestamp in field "+field, goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ServiceErrorMalformedTimestamp).
		WithMetadata(map[string]any{"field": field, "value": value})
	if cause != nil {
		err.Source = cause
	}
	return err
}

func BadInputError(message string) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryBadInput, ServiceErrorBadInput)
}

func IsProviderError(err error) bool {
	return hasTextCode(err, ServiceErrorProvider)
}

func IsStateMismatch(err error) bool {
	return hasTextCode(err, ServiceErrorStateMismatch)
}

func IsCredentialsMissing(err error) bool {
	return hasTextCode(err, ServiceErrorCredentialsMissing)
}

func IsMalformedTimestamp(err error) bool {
	return hasTextCode(err, ServiceErrorMalformedTimestamp)
}

// ProviderStatus returns the upstream status carried by a provider error.
func ProviderStatus(err error) (int, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ServiceErrorProvider {
		return 0, false
	}
	return richErr.Code, true
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "state") && (strings.Contains(msg, "mismatch") || strings.Contains(msg, "does not match")):
		return StateMismatchError()
	case strings.Contains(msg, "no credentials"), strings.Contains(msg, "access token is required"):
		return CredentialsMissingError(err.Error())
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && !strings.HasPrefix(err.TextCode, "SERVICE_") {
		err.TextCode = ServiceErrorInternal
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryExternal:
		return ServiceErrorProvider
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DependencyError reports a handler built without the service it drives.
func DependencyError(scope string, dependency string) *goerrors.Error {
	return goerrors.New(scope+": "+dependency+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorInternal)
}

// IdentityValidationError lists every missing or malformed identity field,
// or returns nil when both are usable as key segments.
func IdentityValidationError(scope string, id IdentityRef) error {
	var fields []goerrors.FieldError
	fields = appendIdentityField(fields, "user_id", id.UserID)
	fields = appendIdentityField(fields, "org_id", id.OrgID)
	if len(fields) == 0 {
		return nil
	}
	return FieldValidationError(scope, fields...)
}

func appendIdentityField(fields []goerrors.FieldError, name string, value string) []goerrors.FieldError {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return append(fields, goerrors.FieldError{Field: name, Message: name + " is required"})
	case strings.Contains(value, transientKeySep):
		return append(fields, goerrors.FieldError{Field: name, Message: name + " must not contain " + strconv.Quote(transientKeySep)})
	}
	return fields
}

func FieldValidationError(scope string, fields ...goerrors.FieldError) *goerrors.Error {
	return goerrors.NewValidation(scope+": validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
