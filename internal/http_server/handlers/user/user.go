// Package user holds the account handlers. All of them sit behind the
// session and permission guards, so the route id is already known to name
// an account the caller owns.
package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"aquasense/internal/auth"
	resp "aquasense/internal/lib/api/response"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/users"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Service interface {
	Get(ctx context.Context, id string) (models.Account, []string, error)
	ChangeCredentials(ctx context.Context, id string, upd users.Update, currentPassword string) (old, updated models.Account, err error)
	Deactivate(ctx context.Context, id string) error
}

type GetResponse struct {
	resp.Response
	User    users.SafeAccount `json:"user"`
	Devices []string          `json:"devices"`
}

func NewGet(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.NewGet"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "userId")

		acc, deviceIDs, err := service.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrAccountNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User does not exist"))
				return
			}

			fault(w, r, log, "failed to fetch account", err)
			return
		}

		if deviceIDs == nil {
			deviceIDs = []string{}
		}

		render.JSON(w, r, GetResponse{
			Response: resp.OK(),
			User:     users.StripSensitive(acc),
			Devices:  deviceIDs,
		})
	}
}

type UpdateRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=64"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Password        *string `json:"password" validate:"omitempty,strongpass"`
	CurrentPassword string  `json:"currentPassword" validate:"required"`
}

type UpdateResponse struct {
	resp.Response
	Old     users.SafeAccount `json:"old"`
	Updated users.SafeAccount `json:"updated"`
}

func NewUpdate(log *slog.Logger, validate *validator.Validate, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.NewUpdate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "userId")

		var req UpdateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid request body"))

			return
		}

		if req.Name == nil && req.Email == nil && req.Password == nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Nothing to update"))

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

		upd := users.Update{Name: req.Name, Email: req.Email, Password: req.Password}

		old, updated, err := service.ChangeCredentials(r.Context(), id, upd, req.CurrentPassword)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid password"))
			case errors.Is(err, users.ErrSameValue):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("New value matches the current value"))
			case errors.Is(err, storage.ErrAccountExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Email already in use"))
			case errors.Is(err, storage.ErrAccountNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User does not exist"))
			default:
				fault(w, r, log, "failed to update account", err)
			}

			return
		}

		render.JSON(w, r, UpdateResponse{
			Response: resp.OK(),
			Old:      users.StripSensitive(old),
			Updated:  users.StripSensitive(updated),
		})
	}
}

// NewDelete soft-deletes the account. The data survives through the grace
// window; the reaper removes it for good afterwards.
func NewDelete(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.NewDelete"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "userId")

		if err := service.Deactivate(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrAccountNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User does not exist"))
				return
			}

			fault(w, r, log, "failed to deactivate account", err)
			return
		}

		render.JSON(w, r, resp.OKMessage("Account scheduled for deletion"))
	}
}

func fault(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	body, id := resp.Fault("Internal server error")

	log.Error(msg, sl.Err(err), slog.String("uuid", id))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, body)
}
