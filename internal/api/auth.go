package api

import (
	"errors"
	"net/http"
	"strings"

	"cliptide/internal/auth"
	"cliptide/internal/models"
)

// extractAccessToken pulls the bearer token from the Authorization header,
// falling back to the accessToken cookie set at login.
func extractAccessToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// extractRefreshToken prefers the refreshToken cookie; non-browser clients
// send the token in the JSON body instead.
func extractRefreshToken(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &body); err == nil {
		return strings.TrimSpace(body.RefreshToken)
	}
	return ""
}

// requireUser authenticates the request and loads the user record. On
// failure it writes the 401 response itself and returns ok=false.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := h.authenticatedUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return models.User{}, false
	}
	return user, true
}

// optionalUser resolves the viewer when credentials are present but treats
// their absence, or an invalid token, as an anonymous request.
func (h *Handler) optionalUser(r *http.Request) (models.User, bool) {
	user, err := h.authenticatedUser(r)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) authenticatedUser(r *http.Request) (models.User, error) {
	token := extractAccessToken(r)
	if token == "" {
		return models.User{}, auth.ErrTokenInvalid
	}
	userID, err := h.Sessions.Authenticate(token)
	if err != nil {
		return models.User{}, err
	}
	user, ok := h.Store.GetUser(userID)
	if !ok {
		// The account vanished after the token was minted.
		return models.User{}, errors.Join(auth.ErrTokenInvalid, errors.New("user no longer exists"))
	}
	return user, nil
}
