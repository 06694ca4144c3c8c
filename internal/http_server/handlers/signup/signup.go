package signup

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

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name     string `json:"name" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpass"`
}

type SignerUp interface {
	Signup(ctx context.Context, name, email, password string) (string, error)
	SessionTTL() time.Duration
}

// New returns the signup handler. A successful signup only stages the
// account: it lives in the cache until the emailed link is used.
func New(log *slog.Logger, validate *validator.Validate, service SignerUp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

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

		token, err := service.Signup(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrAccountExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User already exists"))
			case errors.Is(err, auth.ErrEmailAlreadySent):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Verification email already sent, check your inbox"))
			default:
				fault(w, r, log, "signup failed", err)
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

		render.JSON(w, r, resp.OKMessage("Check your inbox for a validation email"))
	}
}

func fault(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	body, id := resp.Fault("Internal server error")

	log.Error(msg, sl.Err(err), slog.String("uuid", id))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, body)
}
