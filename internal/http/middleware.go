package http

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/fjod/grocery-cart/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const SessionHeader = "X-Session-ID"

type ctxKey int

const sessionKey ctxKey = iota

var validSessionID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// SessionMiddleware resolves the storage origin for the request from the
// X-Session-ID header, minting a new id when the client has none yet. The id
// is echoed back so the client can keep it.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			sessionID = uuid.NewString()
		} else if !validSessionID.MatchString(sessionID) {
			respondError(w, http.StatusBadRequest, "invalid_session", "X-Session-ID must be 1-128 characters of [A-Za-z0-9._-]")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sessionID)
		w.Header().Set(SessionHeader, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionKey).(string); ok {
		return sessionID
	}
	return ""
}

// RequestIDHeader echoes chi's request id so clients can quote it.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog writes one line per request.
func AccessLog(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			tl := logger.WithTrace(r.Context(), l)
			evt := tl.Info()
			if status >= http.StatusInternalServerError {
				evt = tl.Error()
			}
			evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("session", ww.Header().Get(SessionHeader)).
				Msg("request")
		})
	}
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
