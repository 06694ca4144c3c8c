// Package router wires handlers, guards and rate limits into the HTTP surface.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"aquasense/internal/auth"
	"aquasense/internal/devices"
	"aquasense/internal/http_server/handlers/activate"
	"aquasense/internal/http_server/handlers/device"
	"aquasense/internal/http_server/handlers/login"
	"aquasense/internal/http_server/handlers/logout"
	"aquasense/internal/http_server/handlers/signup"
	"aquasense/internal/http_server/handlers/user"
	"aquasense/internal/http_server/middleware/guards"
	"aquasense/internal/http_server/middleware/recovery"
	"aquasense/internal/users"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
)

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	userService *users.Users,
	deviceService *devices.Devices,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(recovery.New(log))
	r.Use(middleware.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.LimitByIP(5, time.Hour)).
				Post("/signup", signup.New(log, validate, authService))
			r.With(httprate.LimitByIP(10, 5*time.Minute)).
				Post("/login", login.New(log, validate, authService))
			r.With(httprate.LimitByIP(10, 10*time.Minute)).
				Get("/activate", activate.New(log, authService))
			r.With(httprate.LimitByIP(20, 10*time.Minute)).
				Post("/logout", logout.New())
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(guards.Session(log, authService))
			r.Use(guards.UserPermission(log, userService))

			r.Get("/{userId}", user.NewGet(log, userService))

			// mutations additionally require a verified email
			r.Group(func(r chi.Router) {
				r.Use(guards.Activated(log, userService))

				r.Patch("/{userId}", user.NewUpdate(log, validate, userService))
				r.Delete("/{userId}", user.NewDelete(log, userService))
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", device.NewList(log, deviceService))
			r.Get("/data", device.NewPublicData(log, deviceService))
			r.Get("/data/{deviceId}", device.NewDeviceData(log, deviceService))

			r.With(
				httprate.LimitByIP(120, time.Minute),
				guards.AccessKey(log, authService),
			).Post("/data/{deviceId}", device.NewIngest(log, validate, deviceService))

			// owner-facing management
			r.Group(func(r chi.Router) {
				r.Use(guards.Session(log, authService))
				r.Use(guards.DevicePermission(log, deviceService))

				r.Get("/{deviceId}", device.NewGet(log, deviceService))
				r.Patch("/{deviceId}", device.NewUpdate(log, validate, deviceService))
				r.Post("/{deviceId}/key", device.NewRotateKey(log, deviceService))
			})
		})
	})

	return r
}
