package utils

import (
	"fmt"
	"net/http"
)

var (
	ErrInvalidLaunch     = fmt.Errorf("Invalid launch request")
	ErrLaunchRejected    = fmt.Errorf("Launch rejected by containerizer")
	ErrIllegalTransition = fmt.Errorf("Illegal task state transition")
	ErrNotFound          = fmt.Errorf("Not found")
)

// Convert errors to HTTP status codes for the introspection endpoint.
func HTTPStatus(err error) int {
	switch err {
	case nil:
		return http.StatusOK
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidLaunch, ErrLaunchRejected:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
