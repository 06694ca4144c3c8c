package logout

import (
	"net/http"

	"aquasense/internal/http_server/middleware/guards"
	resp "aquasense/internal/lib/api/response"

	"github.com/go-chi/render"
)

// New returns the logout handler. Sessions are stateless, so logging out is
// nothing more than expiring the cookie on the client.
func New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     guards.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		render.JSON(w, r, resp.OKMessage("Logged out"))
	}
}
