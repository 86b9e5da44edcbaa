package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
)

// Recovery logs a handler panic with its stack and answers 500, unless the
// handler already started the response. http.ErrAbortHandler passes through.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newStatusRecorder(w)
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprint(rec)).
					Bool("response_started", rw.wroteHeader).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if rw.wroteHeader {
					return
				}
				models.NewInternalError(requestID, "an unexpected error occurred").
					WithInstance(r.URL.Path).
					Write(rw)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
