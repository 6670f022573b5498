package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cliptide/internal/auth"
	"cliptide/internal/media"
	"cliptide/internal/storage"
)

const defaultMaxUploadBytes = 8 << 20

// Handler carries the dependencies shared by every HTTP handler.
type Handler struct {
	Store          storage.Repository
	Sessions       *auth.SessionManager
	Media          media.Store
	Logger         *slog.Logger
	CookiePolicy   AuthCookiePolicy
	MaxUploadBytes int64
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager, mediaStore media.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:          store,
		Sessions:       sessions,
		Media:          mediaStore,
		Logger:         logger,
		CookiePolicy:   DefaultAuthCookiePolicy(),
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

func (h *Handler) maxUpload() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// envelope is the uniform response shape. Success and error responses both
// use it; data is null on errors.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	})
}

// respondError maps domain errors onto the HTTP taxonomy. Anything
// unrecognized is an internal error: logged in full, returned opaque.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal server error"
	}
	writeJSON(w, status, envelope{
		StatusCode: status,
		Data:       nil,
		Message:    message,
		Success:    false,
	})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrValidation), errors.Is(err, media.ErrUnsupportedType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrSessionRevoked):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// Healthz reports liveness, including session-store reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Ping(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"}, "healthy")
}
