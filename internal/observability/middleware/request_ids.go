package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderTraceID     = "X-Trace-ID"
	headerTraceparent = "traceparent"
)

type requestIDKey struct{}
type traceIDKey struct{}

// WithRequestAndTrace resolves the request and trace ids, echoes them on the
// response and stores them in the request context.
//
// Request id: X-Request-ID, then the id chi's RequestID middleware assigned,
// then a fresh uuid. Trace id: X-Trace-ID, then the trace-id field of a W3C
// traceparent header, then a fresh 32-hex id.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = chimw.GetReqID(r.Context())
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}

		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = traceIDFromParent(r.Header.Get(headerTraceparent))
		}
		if traceID == "" {
			traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		w.Header().Set(HeaderRequestID, reqID)
		w.Header().Set(HeaderTraceID, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithIDs(r.Context(), reqID, traceID)))
	})
}

// traceIDFromParent extracts the trace-id of "00-<32 hex>-<16 hex>-<2 hex>".
func traceIDFromParent(tp string) string {
	parts := strings.Split(strings.TrimSpace(tp), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	id := strings.ToLower(parts[1])
	if strings.Trim(id, "0") == "" {
		return ""
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return ""
		}
	}
	return id
}

func ContextWithIDs(ctx context.Context, requestID, traceID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey{}).(string)
	return v
}

// LogAttrs returns the request/trace id pair for slog calls.
func LogAttrs(ctx context.Context) []any {
	return []any{"request_id", RequestIDFromContext(ctx), "trace_id", TraceIDFromContext(ctx)}
}
