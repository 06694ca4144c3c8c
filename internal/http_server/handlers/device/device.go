// Package device holds the fleet handlers: the public measurement feed, the
// owner-facing device management routes and the access-key guarded ingest.
package device

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"aquasense/internal/devices"
	"aquasense/internal/http_server/middleware/guards"
	resp "aquasense/internal/lib/api/response"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/models"
	"aquasense/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Service interface {
	ByID(ctx context.Context, id string) (models.Device, error)
	IDs(ctx context.Context) ([]string, error)
	PublicAll(ctx context.Context) ([]devices.PublicDevice, error)
	Measurements(ctx context.Context, id string) (models.Measurements, error)
	ChangeMeta(ctx context.Context, id string, upd devices.Update) (old, updated models.Device, err error)
	Ingest(ctx context.Context, id string, ph, turbidity, waterTemperature *float64) (models.Measurements, error)
	RotateKey(ctx context.Context, id string) (string, error)
}

type ListResponse struct {
	resp.Response
	Devices []string `json:"devices"`
}

// NewList returns the public device id listing.
func NewList(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewList"

		ids, err := service.IDs(r.Context())
		if err != nil {
			fault(w, r, log, op, "failed to list devices", err)
			return
		}

		if ids == nil {
			ids = []string{}
		}

		render.JSON(w, r, ListResponse{Response: resp.OK(), Devices: ids})
	}
}

type GetResponse struct {
	resp.Response
	Device devices.SafeDevice `json:"device"`
}

func NewGet(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewGet"

		id := chi.URLParam(r, "deviceId")

		dev, err := service.ByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Device does not exist"))
				return
			}

			fault(w, r, log, op, "failed to fetch device", err)
			return
		}

		render.JSON(w, r, GetResponse{Response: resp.OK(), Device: devices.StripSensitive(dev)})
	}
}

type UpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=32"`
	Emoji *string `json:"emoji"`
}

type UpdateResponse struct {
	resp.Response
	Old     devices.SafeDevice `json:"old"`
	Updated devices.SafeDevice `json:"updated"`
}

func NewUpdate(log *slog.Logger, validate *validator.Validate, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewUpdate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "deviceId")

		var req UpdateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid request body"))

			return
		}

		if req.Name == nil && req.Emoji == nil {
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

		if req.Emoji != nil && !devices.IsEmoji(*req.Emoji) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("field emoji must be a single emoji"))

			return
		}

		old, updated, err := service.ChangeMeta(r.Context(), id, devices.Update{Name: req.Name, Emoji: req.Emoji})
		if err != nil {
			switch {
			case errors.Is(err, devices.ErrNoNewValues):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("No new values provided"))
			case errors.Is(err, storage.ErrDeviceNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Device does not exist"))
			default:
				body, uuid := resp.Fault("Internal server error")
				log.Error("failed to update device", sl.Err(err), slog.String("uuid", uuid))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, body)
			}

			return
		}

		render.JSON(w, r, UpdateResponse{
			Response: resp.OK(),
			Old:      devices.StripSensitive(old),
			Updated:  devices.StripSensitive(updated),
		})
	}
}

type RotateKeyResponse struct {
	resp.Response
	AccessKey string `json:"accessKey"`
}

// NewRotateKey mints and stores a fresh access key. The key is shown exactly
// once, in this response.
func NewRotateKey(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewRotateKey"

		id := chi.URLParam(r, "deviceId")

		key, err := service.RotateKey(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Device does not exist"))
				return
			}

			fault(w, r, log, op, "failed to rotate access key", err)
			return
		}

		render.JSON(w, r, RotateKeyResponse{Response: resp.OK(), AccessKey: key})
	}
}

type PublicDataResponse struct {
	resp.Response
	Devices []devices.PublicDevice `json:"devices"`
}

// NewPublicData returns the measurement feed for the whole fleet.
func NewPublicData(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewPublicData"

		devs, err := service.PublicAll(r.Context())
		if err != nil {
			fault(w, r, log, op, "failed to list device data", err)
			return
		}

		if devs == nil {
			devs = []devices.PublicDevice{}
		}

		render.JSON(w, r, PublicDataResponse{Response: resp.OK(), Devices: devs})
	}
}

type DataResponse struct {
	resp.Response
	Measurements models.Measurements `json:"measurements"`
}

// NewDeviceData returns the measurements of one device.
func NewDeviceData(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewDeviceData"

		id := chi.URLParam(r, "deviceId")

		m, err := service.Measurements(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Device does not exist"))
				return
			}

			fault(w, r, log, op, "failed to fetch device data", err)
			return
		}

		render.JSON(w, r, DataResponse{Response: resp.OK(), Measurements: m})
	}
}

type IngestRequest struct {
	Ph               *float64 `json:"ph" validate:"omitempty,gte=0,lte=14"`
	Turbidity        *float64 `json:"turbidity" validate:"omitempty,gte=0"`
	WaterTemperature *float64 `json:"waterTemperature" validate:"omitempty,gte=-50,lte=100"`
}

// NewIngest records a measurement push. The device id comes from the access
// key guard, not the URL, so a device can only ever write to itself.
func NewIngest(log *slog.Logger, validate *validator.Validate, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.device.NewIngest"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := guards.DeviceIDFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Failed to authenticate token"))

			return
		}

		// The key authorizes exactly one device; a push addressed to any
		// other id is rejected rather than silently redirected.
		if routeID := chi.URLParam(r, "deviceId"); routeID != "" && routeID != id {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid access key provided"))

			return
		}

		var req IngestRequest
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

		m, err := service.Ingest(r.Context(), id, req.Ph, req.Turbidity, req.WaterTemperature)
		if err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Device does not exist"))
				return
			}

			body, uuid := resp.Fault("Internal server error")
			log.Error("failed to record measurements", sl.Err(err), slog.String("uuid", uuid))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, body)
			return
		}

		render.JSON(w, r, DataResponse{Response: resp.OK(), Measurements: m})
	}
}

func fault(w http.ResponseWriter, r *http.Request, log *slog.Logger, op, msg string, err error) {
	body, id := resp.Fault("Internal server error")

	log.Error(msg, slog.String("op", op), sl.Err(err),
		slog.String("uuid", id),
		slog.String("request_id", middleware.GetReqID(r.Context())))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, body)
}
