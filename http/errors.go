package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"attendance/entity"
)

// httpError maps domain errors to status codes. Anything unknown is left to
// the echo error handler, which answers 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrCheckInClosed),
		errors.Is(err, entity.ErrNoCredentials),
		errors.Is(err, entity.ErrAlreadyCheckedIn):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, entity.ErrCredentialNotActive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, entity.ErrSourceUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return err
}
