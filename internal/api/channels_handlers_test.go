package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cliptide/internal/models"
)

func channelProfileRequest(username, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels/"+username, nil)
	req.SetPathValue("username", username)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func subscriptionRequest(method, username, token string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/channels/"+username+"/subscribe", nil)
	req.SetPathValue("username", username)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestChannelProfileViewerFlagAndCounts(t *testing.T) {
	h, _, _ := newTestHandler(t)
	registerAndLogin(t, h, "creator")
	fanAccess, _ := registerAndLogin(t, h, "fan")

	rec := httptest.NewRecorder()
	h.Subscribe(rec, subscriptionRequest(http.MethodPost, "creator", fanAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe: %d body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var subscribed struct {
		Channel      string              `json:"channel"`
		Subscription models.Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(env.Data, &subscribed); err != nil {
		t.Fatalf("decode subscribe data: %v", err)
	}
	if subscribed.Channel != "creator" || subscribed.Subscription.ChannelID == "" {
		t.Fatalf("unexpected subscribe data: %+v", subscribed)
	}

	rec = httptest.NewRecorder()
	h.ChannelProfile(rec, channelProfileRequest("creator", fanAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: %d", rec.Code)
	}
	env = decodeEnvelope(t, rec)
	var profile models.ChannelProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.SubscriberCount != 1 || !profile.ViewerIsSubscribed {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	// Anonymous request: counts identical, flag false.
	rec = httptest.NewRecorder()
	h.ChannelProfile(rec, channelProfileRequest("creator", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous profile: %d", rec.Code)
	}
	env = decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode anonymous profile: %v", err)
	}
	if profile.SubscriberCount != 1 || profile.ViewerIsSubscribed {
		t.Fatalf("unexpected anonymous profile: %+v", profile)
	}
}

func TestChannelProfileUnknownChannel404(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ChannelProfile(rec, channelProfileRequest("ghost", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	decodeEnvelope(t, rec)
}

func TestSubscribeEdgeCases(t *testing.T) {
	h, _, _ := newTestHandler(t)
	registerAndLogin(t, h, "creator")
	fanAccess, _ := registerAndLogin(t, h, "fan")

	// Unauthenticated.
	rec := httptest.NewRecorder()
	h.Subscribe(rec, subscriptionRequest(http.MethodPost, "creator", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous subscribe: expected 401, got %d", rec.Code)
	}

	// Unknown channel.
	rec = httptest.NewRecorder()
	h.Subscribe(rec, subscriptionRequest(http.MethodPost, "ghost", fanAccess))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown channel: expected 404, got %d", rec.Code)
	}

	// Self-subscription.
	rec = httptest.NewRecorder()
	h.Subscribe(rec, subscriptionRequest(http.MethodPost, "fan", fanAccess))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self-subscribe: expected 400, got %d", rec.Code)
	}

	// Repeat subscribe is idempotent.
	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		h.Subscribe(rec, subscriptionRequest(http.MethodPost, "creator", fanAccess))
		if rec.Code != http.StatusOK {
			t.Fatalf("subscribe attempt %d: %d", i, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	h.ChannelProfile(rec, channelProfileRequest("creator", ""))
	env := decodeEnvelope(t, rec)
	var profile models.ChannelProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.SubscriberCount != 1 {
		t.Fatalf("repeat subscribe double-counted: %d", profile.SubscriberCount)
	}

	rec = httptest.NewRecorder()
	h.Unsubscribe(rec, subscriptionRequest(http.MethodDelete, "creator", fanAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe: %d", rec.Code)
	}
}
