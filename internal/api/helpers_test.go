package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cliptide/internal/auth"
	"cliptide/internal/media"
	"cliptide/internal/storage"
)

// stubMediaStore records uploads and removals without touching disk.
type stubMediaStore struct {
	mu       sync.Mutex
	uploads  int
	removed  []string
	uploaded []string
	failNext error
}

func (s *stubMediaStore) Upload(_ context.Context, params media.UploadParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return "", err
	}
	if !strings.HasPrefix(params.ContentType, "image/") {
		return "", fmt.Errorf("%s: %w", params.ContentType, media.ErrUnsupportedType)
	}
	s.uploads++
	url := fmt.Sprintf("/media/%s/object-%d.png", params.Kind, s.uploads)
	s.uploaded = append(s.uploaded, url)
	return url, nil
}

func (s *stubMediaStore) Remove(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, url)
	return nil
}

func (s *stubMediaStore) removedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func newTestHandler(t *testing.T) (*Handler, *storage.Storage, *stubMediaStore) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	tokens, err := auth.NewTokenService(
		[]byte("test-access-secret"),
		[]byte("test-refresh-secret"),
		15*time.Minute,
		24*time.Hour,
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	sessions := auth.NewSessionManager(tokens, auth.NewMemoryStore())
	mediaStore := &stubMediaStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(store, sessions, mediaStore, logger), store, mediaStore
}

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if env.StatusCode != rec.Code {
		t.Fatalf("envelope statusCode %d disagrees with HTTP status %d", env.StatusCode, rec.Code)
	}
	if env.Success != (rec.Code < 400) {
		t.Fatalf("envelope success %v disagrees with status %d", env.Success, rec.Code)
	}
	return env
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type registrationForm struct {
	fullName     string
	email        string
	username     string
	password     string
	avatarType   string
	includeCover bool
	omitAvatar   bool
}

func multipartRegistration(t *testing.T, form registrationForm) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"fullName": form.fullName,
		"email":    form.email,
		"username": form.username,
		"password": form.password,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if !form.omitAvatar {
		contentType := form.avatarType
		if contentType == "" {
			contentType = "image/png"
		}
		writeFilePart(t, writer, "avatar", "avatar.png", contentType, "avatar-bytes")
	}
	if form.includeCover {
		writeFilePart(t, writer, "coverImage", "cover.jpg", "image/jpeg", "cover-bytes")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// multipartImageUpdate builds a PATCH request carrying a single image file
// under the given form field.
func multipartImageUpdate(t *testing.T, target, field string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writeFilePart(t, writer, field, field+".png", "image/png", "replacement-bytes")
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPatch, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func writeFilePart(t *testing.T, writer *multipart.Writer, field, filename, contentType, content string) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part %s: %v", field, err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write part %s: %v", field, err)
	}
}

// registerAndLogin provisions a user through the HTTP surface and returns
// the access and refresh tokens from the login response.
func registerAndLogin(t *testing.T, h *Handler, username string) (access, refresh string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Register(rec, multipartRegistration(t, registrationForm{
		fullName: "Test " + username,
		email:    username + "@example.com",
		username: username,
		password: "hunter2hunter2",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": username,
		"password": "hunter2hunter2",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	return data.AccessToken, data.RefreshToken
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
