package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cliptide/internal/models"
)

func createTestVideo(t *testing.T, h *Handler, access, title string) models.Video {
	t.Helper()
	rec := httptest.NewRecorder()
	h.CreateVideo(rec, withBearer(jsonRequest(t, http.MethodPost, "/api/v1/videos", map[string]any{
		"title":     title,
		"thumbnail": "https://cdn.example.com/" + title + ".png",
		"duration":  42.5,
	}), access))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create video %s: %d body %s", title, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var video models.Video
	if err := json.Unmarshal(env.Data, &video); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	return video
}

func watchRequest(videoID, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/"+videoID+"/watch", nil)
	req.SetPathValue("id", videoID)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestWatchHistoryFlow(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ownerAccess, _ := registerAndLogin(t, h, "owner")
	viewerAccess, _ := registerAndLogin(t, h, "viewer")

	first := createTestVideo(t, h, ownerAccess, "first")
	second := createTestVideo(t, h, ownerAccess, "second")

	for _, id := range []string{first.ID, second.ID, first.ID} {
		rec := httptest.NewRecorder()
		h.RecordWatch(rec, watchRequest(id, viewerAccess))
		if rec.Code != http.StatusOK {
			t.Fatalf("record watch %s: %d", id, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.WatchHistory(rec, withBearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/history", nil), viewerAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var history []models.WatchHistoryEntry
	if err := json.Unmarshal(env.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 deduplicated entries, got %d", len(history))
	}
	if history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("expected most-recent-first order, got %v then %v", history[0].ID, history[1].ID)
	}
	if history[0].Owner.Username != "owner" {
		t.Fatalf("owner projection missing: %+v", history[0].Owner)
	}
}

func TestWatchHistoryEmptyIsArray(t *testing.T) {
	h, _, _ := newTestHandler(t)
	access, _ := registerAndLogin(t, h, "fresh")

	rec := httptest.NewRecorder()
	h.WatchHistory(rec, withBearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/history", nil), access))
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if string(env.Data) == "null" {
		t.Fatal("empty history must serialize as [], not null")
	}
	var history []models.WatchHistoryEntry
	if err := json.Unmarshal(env.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %v", history)
	}
}

func TestRecordWatchUnknownVideo404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	access, _ := registerAndLogin(t, h, "viewer")

	rec := httptest.NewRecorder()
	h.RecordWatch(rec, watchRequest("missing", access))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHistoryRequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.WatchHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/history", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
