package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// errorHandler renders every error as {"detail": "..."}. Missing boards and
// tasks become 404; unexpected errors are logged and hidden behind a 500.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, detail := errorStatus(err)
		if status >= http.StatusInternalServerError && logger != nil {
			logger.WithError(err).WithField("http.route", c.Path()).Error("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, detailResponse{Detail: detail})
		}
		if werr != nil && logger != nil {
			logger.WithError(werr).Warn("write error response")
		}
	}
}

func errorStatus(err error) (int, string) {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound, err.Error()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, fmt.Sprint(he.Message)
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
