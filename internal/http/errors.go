package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

const internalErrorMsg = "internal server error"

var (
	errInvalidBody  = v1.Invalid("invalid request body")
	errItemNotFound = v1.NotFound("Item not found")
)

// handleError renders err as {"error": msg}. Only messages that are safe for
// clients are rendered; anything unclassified becomes a logged 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(err))
	}
}

func errorStatus(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			return he.Code, msg
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, internalErrorMsg
		}
		return he.Code, http.StatusText(he.Code)
	}

	msg, ok := v1.Message(err)
	if !ok {
		return http.StatusInternalServerError, internalErrorMsg
	}
	switch {
	case errors.Is(err, v1.ErrUnauthorized):
		return http.StatusUnauthorized, msg
	case errors.Is(err, v1.ErrInvalidRequest):
		return http.StatusBadRequest, msg
	case errors.Is(err, v1.ErrNotFound):
		return http.StatusNotFound, msg
	case errors.Is(err, v1.ErrConflict):
		return http.StatusConflict, msg
	}
	return http.StatusInternalServerError, internalErrorMsg
}

// itemError replaces any not-found error with the generic item message so
// responses never distinguish a missing item from someone else's.
func itemError(err error) error {
	if errors.Is(err, v1.ErrNotFound) {
		return errItemNotFound
	}
	return err
}

func bindError(err error) error {
	return fmt.Errorf("%w: %v", errInvalidBody, err)
}
