package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"dispatch/pkg/apperror"
	"dispatch/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("httpapi: failed to encode response", "error", err)
	}
}

// writeError maps err onto the standard error envelope per the error
// handling design's HTTP status table. Errors that are not an
// *apperror.Error are treated as Internal.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		if appErr.Severity == apperror.SeverityCritical {
			logger.Error("httpapi: request failed", "code", appErr.Code, "error", appErr)
		}
		writeJSON(w, appErr.HTTPStatus(), appErr.HTTPBody())
		return
	}
	logger.Error("httpapi: unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, apperror.Body{
		ErrorKind: apperror.CodeInternal,
		Message:   err.Error(),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.NewWithField(apperror.CodeInvalidInput, "malformed request body: "+err.Error(), "body")
	}
	return nil
}
