package activate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"aquasense/internal/auth"
	resp "aquasense/internal/lib/api/response"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/tokens"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Activator interface {
	Activate(ctx context.Context, rawToken string) (string, error)
}

// New returns the activation handler. The three rejection modes are kept
// apart: a replayed link, an expired link and a forged link each get their
// own message, and a vanished pending record is reported as a server fault
// rather than blamed on the user.
func New(log *slog.Logger, service Activator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.activate.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing activation token"))

			return
		}

		id, err := service.Activate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenUsed):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Activation link already used"))
			case errors.Is(err, tokens.ErrExpired):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Activation link expired, please sign up again"))
			case errors.Is(err, tokens.ErrInvalid):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Failed to authenticate token"))
			default:
				// Includes auth.ErrPendingVanished: the token was good, the
				// state is not, and that is on us.
				body, uuid := resp.Fault("Internal server error")
				log.Error("activation failed", sl.Err(err), slog.String("uuid", uuid))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, body)
			}

			return
		}

		log.Info("account activated", slog.String("id", id))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp.OKMessage("Account activated"))
	}
}
