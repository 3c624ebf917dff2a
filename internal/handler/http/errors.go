package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/middleware"
	"github.com/windfall/ielts_service/pkg/response"
)

func handleError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if appErr, ok := errors.As(err); ok {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("code", string(appErr.Code)).Msg("Request failed")
		}
		response.Error(w, status, appErr)
		return
	}
	log.Error().Err(err).Msg("Unhandled error")
	response.Error(w, http.StatusInternalServerError, errors.Internal("internal server error"))
}

// requireUser returns the authenticated user, writing 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "authentication required")
		return "", false
	}
	return userID, true
}
