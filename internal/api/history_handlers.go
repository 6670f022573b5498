package api

import (
	"fmt"
	"net/http"

	"cliptide/internal/storage"
)

// WatchHistory returns the viewer's history, most recently watched first,
// with each video's owner identity attached.
func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	history, err := h.Store.WatchHistory(user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, history, "watch history fetched")
}

// CreateVideo registers a video reference owned by the authenticated user.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Title           string  `json:"title"`
		ThumbnailURL    string  `json:"thumbnail"`
		DurationSeconds float64 `json:"duration"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, fmt.Errorf("invalid request body: %w", storage.ErrValidation))
		return
	}
	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:      user.ID,
		Title:        body.Title,
		ThumbnailURL: body.ThumbnailURL,
		Duration:     body.DurationSeconds,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, video, "video created")
}

// RecordWatch moves the video to the front of the viewer's history.
func (h *Handler) RecordWatch(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID := r.PathValue("id")
	if err := h.Store.RecordWatch(user.ID, videoID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil, "watch recorded")
}
