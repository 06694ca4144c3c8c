package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aquasense/internal/auth"
	"aquasense/internal/http_server/middleware/guards"
	resp "aquasense/internal/lib/api/response"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/users"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	User users.SafeAccount `json:"user"`
}

type LoggerIn interface {
	Login(ctx context.Context, email, password string) (string, models.Account, error)
	SessionTTL() time.Duration
}

func New(log *slog.Logger, validate *validator.Validate, service LoggerIn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid request body"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErrs validator.ValidationErrors
			if errors.As(err, &validateErrs) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ValidationError(validateErrs))

				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid request"))

			return
		}

		token, acc, err := service.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrAccountNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User does not exist"))
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid email or password"))
			default:
				body, id := resp.Fault("Internal server error")
				log.Error("login failed", sl.Err(err), slog.String("uuid", id))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, body)
			}

			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     guards.SessionCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int(service.SessionTTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     users.StripSensitive(acc),
		})
	}
}
