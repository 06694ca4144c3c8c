// Package guards holds the route protection middlewares. Each guard is pure:
// it either passes the request along (possibly enriching the context) or
// terminates it, never mutating state.
package guards

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
	"aquasense/internal/tokens"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "jwt"

type ctxKey int

const (
	sessionKey ctxKey = iota
	deviceIDKey
)

// SessionFromContext returns the verified session claims placed by Session.
func SessionFromContext(ctx context.Context) (*tokens.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionKey).(*tokens.SessionClaims)
	return claims, ok
}

// DeviceIDFromContext returns the device id authorized by AccessKey.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}

// WithDeviceID marks ctx as authorized for the device, the way AccessKey does.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

type SessionVerifier interface {
	VerifySession(raw string) (*tokens.SessionClaims, error)
}

type AccountResolver interface {
	ByID(ctx context.Context, id string) (models.Account, error)
}

type DeviceResolver interface {
	ByID(ctx context.Context, id string) (models.Device, error)
}

type DeviceAuthorizer interface {
	CheckDeviceKey(ctx context.Context, rawKey string) (string, error)
}

// Session authenticates the request from the session cookie. The signature is
// verified before any claim is trusted; verified claims go into the context.
func Session(log *slog.Logger, verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("You are not logged in"))
				return
			}

			claims, err := verifier.VerifySession(cookie.Value)
			if err != nil {
				if errors.Is(err, tokens.ErrExpired) {
					render.Status(r, http.StatusForbidden)
					render.JSON(w, r, resp.Error("Session expired, please log in again"))
					return
				}

				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

// UserPermission lets a request through only when the session belongs to the
// account named in the route. Absent route id or absent claims pass through,
// leaving the decision to stricter guards or the handler.
func UserPermission(log *slog.Logger, accounts AccountResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			userID := chi.URLParam(r, "userId")
			claims, ok := SessionFromContext(r.Context())
			if userID == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := accounts.ByID(r.Context(), userID); err != nil {
				if errors.Is(err, storage.ErrAccountNotFound) {
					render.Status(r, http.StatusBadRequest)
					render.JSON(w, r, resp.Error("User does not exist"))
					return
				}

				fault(w, r, log, "failed to resolve account", err)
				return
			}

			if claims.UserID != userID {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

// DevicePermission checks that the session owns the device named in the route.
func DevicePermission(log *slog.Logger, devices DeviceResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			deviceID := chi.URLParam(r, "deviceId")
			claims, ok := SessionFromContext(r.Context())
			if deviceID == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			dev, err := devices.ByID(r.Context(), deviceID)
			if err != nil {
				if errors.Is(err, storage.ErrDeviceNotFound) {
					render.Status(r, http.StatusBadRequest)
					render.JSON(w, r, resp.Error("Device does not exist"))
					return
				}

				fault(w, r, log, "failed to resolve device", err)
				return
			}

			if dev.UserID != claims.UserID {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

// Activated blocks account mutations until the email address is verified.
func Activated(log *slog.Logger, accounts AccountResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("You are not logged in"))
				return
			}

			acc, err := accounts.ByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, storage.ErrAccountNotFound) {
					render.Status(r, http.StatusForbidden)
					render.JSON(w, r, resp.Error("Forbidden"))
					return
				}

				fault(w, r, log, "failed to resolve account", err)
				return
			}

			if !acc.Activated {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Please verify your email address"))
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

// AccessKey authorizes a device push from the accessKey query parameter.
// A well-formed signature is not enough: the key must match the one stored
// for the device, so rotated keys stop working immediately.
func AccessKey(log *slog.Logger, authorizer DeviceAuthorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.URL.Query().Get("accessKey")
			if rawKey == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Failed to authenticate token"))
				return
			}

			deviceID, err := authorizer.CheckDeviceKey(r.Context(), rawKey)
			if err != nil {
				switch {
				case errors.Is(err, tokens.ErrInvalid), errors.Is(err, tokens.ErrExpired):
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Failed to authenticate token"))
				case errors.Is(err, storage.ErrDeviceNotFound):
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Device does not exist"))
				case errors.Is(err, auth.ErrKeyMismatch):
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Invalid access key provided"))
				default:
					fault(w, r, log, "failed to authorize device key", err)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), deviceID)))
		}

		return http.HandlerFunc(fn)
	}
}

func fault(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	body, id := resp.Fault("Internal server error")

	log.Error(msg, sl.Err(err),
		slog.String("uuid", id),
		slog.String("request_id", middleware.GetReqID(r.Context())))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, body)
}
