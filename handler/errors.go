package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ticket-queue/repository"

	"github.com/labstack/echo/v4"
)

// UserIDHeader carries the caller's id, set by the gateway after auth.
const UserIDHeader = "X-User-Id"

func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrAlreadyQueued),
		errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrExpired),
		errors.Is(err, repository.ErrMatchClosed):
		return http.StatusGone
	case errors.Is(err, repository.ErrNotQueued),
		errors.Is(err, repository.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidCapacity),
		errors.Is(err, repository.ErrInvalidSeat):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func userID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Request().Header.Get(UserIDHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
