package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/observability/middleware"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindClientInput, domain.KindConflict:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": {code, message}}. Authentication
// failures always carry the sentinel message so causes stay indistinguishable;
// internal failures are logged and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		slog.Error("request failed", append([]any{"method", r.Method, "path", r.URL.Path, "error", err}, middleware.LogAttrs(r.Context())...)...)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: dto.ErrorBody{
			Code:    "internal_error",
			Message: "internal server error",
		}})
		return
	}

	msg := de.Message
	switch de.Kind {
	case domain.KindClientInput, domain.KindConflict:
		msg = err.Error()
	case domain.KindUpstream:
		slog.Warn("upstream failure", append([]any{"path", r.URL.Path, "error", err}, middleware.LogAttrs(r.Context())...)...)
	}
	writeJSON(w, statusFor(de.Kind), dto.ErrorResponse{Error: dto.ErrorBody{Code: de.Code, Message: msg}})
}
