package api

import (
	"fmt"
	"net/http"

	"cliptide/internal/storage"
)

// ChannelProfile returns the public view of a channel. Authentication is
// optional: with a valid access token the response says whether the viewer
// is subscribed, without one it reports counts for an anonymous viewer.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	viewerID := ""
	if viewer, ok := h.optionalUser(r); ok {
		viewerID = viewer.ID
	}

	profile, err := h.Store.ChannelProfile(username, viewerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, profile, "channel profile fetched")
}

// Subscribe adds the authenticated viewer as a subscriber of the channel.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.setSubscription(w, r, true)
}

// Unsubscribe removes the viewer's subscription if present.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.setSubscription(w, r, false)
}

func (h *Handler) setSubscription(w http.ResponseWriter, r *http.Request, subscribe bool) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	username := r.PathValue("username")
	channel, found := h.Store.FindUserByUsername(username)
	if !found {
		h.respondError(w, r, fmt.Errorf("channel %s: %w", username, storage.ErrNotFound))
		return
	}

	data := map[string]any{
		"channel":    channel.Username,
		"subscribed": subscribe,
	}
	var message string
	if subscribe {
		edge, err := h.Store.Subscribe(viewer.ID, channel.ID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		data["subscription"] = edge
		message = "subscribed"
	} else {
		if err := h.Store.Unsubscribe(viewer.ID, channel.ID); err != nil {
			h.respondError(w, r, err)
			return
		}
		message = "unsubscribed"
	}

	h.respond(w, http.StatusOK, data, message)
}
