// Package recovery is the outermost fault boundary: a panic anywhere below
// becomes a 500 with a correlation id instead of a dropped connection.
package recovery

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	resp "aquasense/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

func New(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				body, id := resp.Fault("Internal server error")

				log.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("uuid", id),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, body)
			}()

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}
