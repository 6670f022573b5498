package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"cliptide/internal/auth"
	"cliptide/internal/media"
	"cliptide/internal/models"
	"cliptide/internal/storage"
)

// Register creates an account from a multipart form: text fields plus a
// mandatory avatar image and an optional cover image.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		h.respondError(w, r, fmt.Errorf("parse multipart form: %w", storage.ErrValidation))
		return
	}

	avatarURL, err := h.storeFormImage(r, "avatar", "avatars")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if avatarURL == "" {
		h.respondError(w, r, fmt.Errorf("avatar file is required: %w", storage.ErrValidation))
		return
	}

	coverURL, err := h.storeFormImage(r, "coverImage", "covers")
	if err != nil {
		h.removeMedia(r, avatarURL)
		h.respondError(w, r, err)
		return
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		FullName:      r.FormValue("fullName"),
		Email:         r.FormValue("email"),
		Username:      r.FormValue("username"),
		Password:      r.FormValue("password"),
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		h.removeMedia(r, avatarURL)
		h.removeMedia(r, coverURL)
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, user, "user registered successfully")
}

// Login verifies a password against a username or email and opens a new
// session. The token pair travels both in the body and as HttpOnly cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, fmt.Errorf("invalid request body: %w", storage.ErrValidation))
		return
	}

	identifier := strings.TrimSpace(body.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(body.Email)
	}

	user, err := h.Store.AuthenticateUser(identifier, body.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	pair, err := h.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.setAuthCookies(w, r, pair)
	h.respond(w, http.StatusOK, map[string]any{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "user logged in successfully")
}

// Refresh exchanges a live refresh token for a new pair, rotating the
// underlying session.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := extractRefreshToken(r)
	if token == "" {
		h.respondError(w, r, fmt.Errorf("refresh token is required: %w", auth.ErrTokenInvalid))
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.setAuthCookies(w, r, pair)
	h.respond(w, http.StatusOK, map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "access token refreshed")
}

// Logout revokes every session the user holds and clears the cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.RevokeAll(r.Context(), user.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.clearAuthCookies(w, r)
	h.respond(w, http.StatusOK, nil, "user logged out")
}

// ChangePassword verifies the current password before setting a new one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, fmt.Errorf("invalid request body: %w", storage.ErrValidation))
		return
	}
	if err := h.Store.ChangeUserPassword(user.ID, body.OldPassword, body.NewPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil, "password changed successfully")
}

// Me returns the authenticated user's own record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, user, "current user fetched")
}

// UpdateProfile patches fullName and email. Omitted fields keep their
// current values.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		FullName *string `json:"fullName"`
		Email    *string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, fmt.Errorf("invalid request body: %w", storage.ErrValidation))
		return
	}
	updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
		FullName: body.FullName,
		Email:    body.Email,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, updated, "account details updated")
}

// UpdateAvatar replaces the avatar image. The superseded object is removed
// from the media store once the record points at the new one.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", "avatars", h.Store.SetUserAvatar, "avatar updated")
}

// UpdateCoverImage replaces the cover image.
func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", "covers", h.Store.SetUserCoverImage, "cover image updated")
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field, kind string, apply func(id, url string) (models.User, string, error), message string) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		h.respondError(w, r, fmt.Errorf("parse multipart form: %w", storage.ErrValidation))
		return
	}

	url, err := h.storeFormImage(r, field, kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if url == "" {
		h.respondError(w, r, fmt.Errorf("%s file is required: %w", field, storage.ErrValidation))
		return
	}

	updated, previous, err := apply(user.ID, url)
	if err != nil {
		h.removeMedia(r, url)
		h.respondError(w, r, err)
		return
	}
	h.removeMedia(r, previous)
	h.respond(w, http.StatusOK, updated, message)
}

// storeFormImage uploads the named form file to the media store and returns
// its URL. A missing file is not an error; the caller decides whether the
// field was mandatory.
func (h *Handler) storeFormImage(r *http.Request, field, kind string) (string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("read %s upload: %w", field, storage.ErrValidation)
	}
	defer file.Close()

	return h.Media.Upload(r.Context(), media.UploadParams{
		Reader:      file,
		Size:        header.Size,
		ContentType: formFileContentType(header),
		Kind:        kind,
	})
}

func formFileContentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}

// removeMedia drops a superseded or orphaned object. Failures are logged,
// never surfaced: the user-facing operation already succeeded or failed on
// its own terms.
func (h *Handler) removeMedia(r *http.Request, url string) {
	if url == "" {
		return
	}
	if err := h.Media.Remove(r.Context(), url); err != nil {
		h.Logger.Warn("remove media object", "url", url, "error", err)
	}
}
