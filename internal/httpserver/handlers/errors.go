package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// StatusOf maps an error to the status code the edge answers with.
func StatusOf(err error) int {
	switch {
	case domain.IsValidation(err), domain.IsResolution(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNameExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownSession):
		return "Linkup was unable to determine the session origin of the request. " +
			"Ensure that your request includes a valid session identifier in the referer or tracestate headers."
	case errors.Is(err, domain.ErrUnknownDomain):
		return "The request belonged to a session, but there was no target for the request. " +
			"Check that the routing rules in your linkup config have a match for this request."
	case errors.Is(err, domain.ErrBackend):
		return "session storage is unavailable"
	default:
		return err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, d deps.Deps, err error) {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError {
		d.Logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", code),
			logger.Error(err))
	} else {
		d.Logger.Debug("request rejected",
			logger.String("host", r.Host),
			logger.String("path", r.URL.Path),
			logger.Int("status", code),
			logger.Error(err))
	}
	http.Error(w, message(err), code)
}
