package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"finboard/internal/analytics"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/statements"
)

// maxJSONBody bounds every JSON request body except statement imports.
const maxJSONBody = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// errBadRequest marks client input that could not be decoded at all.
var errBadRequest = errors.New("bad request")

// statusFor maps domain errors to HTTP status codes. Malformed input is 400,
// well-formed but invalid input is 422, everything else is an upstream
// failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, errInvalidInput),
		errors.Is(err, core.ErrInvalidBudget),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, analytics.ErrInvalidTier),
		errors.Is(err, statements.ErrInvalidCSV),
		errors.Is(err, statements.ErrNoHeader),
		errors.Is(err, statements.ErrNoRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analytics.ErrUnknownChart):
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).JSON(v).Write(w)
}

// writeError answers with a JSON error. Upstream failures are logged with
// the full error and answered with msg only.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	logger := applog.FromContext(r.Context())
	if status >= 500 {
		applog.NewStructuredLogger(logger).LogError(r.Context(), msg, err, applog.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		ErrorResponse(status, msg).Write(w)
		return
	}
	logger.WarnContext(r.Context(), "Rejected request", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	ErrorResponse(status, err.Error()).Write(w)
}

// decodeJSON reads one JSON value from the body into dst. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	if limit <= 0 {
		limit = maxJSONBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// allowMethods writes 405 unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	MethodNotAllowedError(strings.Join(methods, ", ")).Write(w)
	return false
}

// sanitizeInput trims and removes control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
