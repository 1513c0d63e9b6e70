package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-connect/core"
)

func internalError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal)
}

func badRequestError(message string, cause error) error {
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryBadInput, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryBadInput)
	}
	return err.WithCode(http.StatusBadRequest).WithTextCode(core.ServiceErrorBadInput)
}

// unreachableError reports a request that never produced a usable response.
// It shares the provider text code with upstream status failures.
func unreachableError(method, target string, cause error) error {
	err := core.ProviderError(http.StatusBadGateway, "provider request failed: "+method+" "+target+": "+cause.Error())
	err.Source = cause
	return err
}
