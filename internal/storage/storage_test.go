package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"cliptide/internal/models"
)

// CreatedUser pairs a stored user with the plaintext password used to
// register it, for credential assertions.
type CreatedUser struct {
	User     models.User
	Password string
}

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func registerTestUser(t *testing.T, store *Storage, username string) CreatedUser {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		FullName:  "Test " + username,
		Email:     username + "@example.com",
		Username:  username,
		Password:  "correct horse battery",
		AvatarURL: "https://cdn.example.com/avatars/" + username + ".png",
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
	return CreatedUser{User: user, Password: "correct horse battery"}
}

func TestCreateUserNormalizesAndRejectsDuplicates(t *testing.T) {
	store := newTestStore(t)

	user, err := store.CreateUser(CreateUserParams{
		FullName:  "Ada Lovelace",
		Email:     "  Ada@Example.COM ",
		Username:  " AdaL ",
		Password:  "analytical-engine",
		AvatarURL: "https://cdn.example.com/a.png",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "adal" {
		t.Fatalf("expected normalized username adal, got %q", user.Username)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "analytical-engine" {
		t.Fatalf("password must be stored hashed")
	}

	_, err = store.CreateUser(CreateUserParams{
		FullName:  "Impostor",
		Email:     "other@example.com",
		Username:  "ADAL",
		Password:  "pw",
		AvatarURL: "https://cdn.example.com/b.png",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	_, err = store.CreateUser(CreateUserParams{
		FullName:  "Impostor",
		Email:     "ada@example.com",
		Username:  "someoneelse",
		Password:  "pw",
		AvatarURL: "https://cdn.example.com/b.png",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestCreateUserValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		name   string
		params CreateUserParams
	}{
		{"missing fullName", CreateUserParams{Email: "a@b.c", Username: "a", Password: "p", AvatarURL: "x"}},
		{"missing email", CreateUserParams{FullName: "A", Username: "a", Password: "p", AvatarURL: "x"}},
		{"missing username", CreateUserParams{FullName: "A", Email: "a@b.c", Password: "p", AvatarURL: "x"}},
		{"missing password", CreateUserParams{FullName: "A", Email: "a@b.c", Username: "a", AvatarURL: "x"}},
		{"missing avatar", CreateUserParams{FullName: "A", Email: "a@b.c", Username: "a", Password: "p"}},
		{"blank username", CreateUserParams{FullName: "A", Email: "a@b.c", Username: "   ", Password: "p", AvatarURL: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateUser(tc.params); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateUserPersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)
	store.persistOverride = func(dataset) error { return errors.New("disk full") }

	_, err := store.CreateUser(CreateUserParams{
		FullName:  "Ghost",
		Email:     "ghost@example.com",
		Username:  "ghost",
		Password:  "pw",
		AvatarURL: "x",
	})
	if err == nil {
		t.Fatal("expected persist failure to surface")
	}

	store.persistOverride = nil
	if _, ok := store.FindUserByUsername("ghost"); ok {
		t.Fatal("failed registration must not leave a record behind")
	}
}

func TestUpdateUserPatchesOnlyProvidedFields(t *testing.T) {
	store := newTestStore(t)
	created := registerTestUser(t, store, "casey")

	name := "Casey Prime"
	updated, err := store.UpdateUser(created.User.ID, UserUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.FullName != "Casey Prime" {
		t.Fatalf("fullName not updated: %q", updated.FullName)
	}
	if updated.Email != created.User.Email {
		t.Fatalf("email must be untouched, got %q", updated.Email)
	}

	// Writing back the current values is a no-op.
	again, err := store.UpdateUser(created.User.ID, UserUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("idempotent UpdateUser: %v", err)
	}
	if again.UpdatedAt != updated.UpdatedAt {
		t.Fatal("no-op update must not bump updatedAt")
	}
}

func TestUpdateUserRejectsTakenEmail(t *testing.T) {
	store := newTestStore(t)
	first := registerTestUser(t, store, "first")
	second := registerTestUser(t, store, "second")

	email := first.User.Email
	if _, err := store.UpdateUser(second.User.ID, UserUpdate{Email: &email}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSetUserAvatarReturnsSupersededURL(t *testing.T) {
	store := newTestStore(t)
	created := registerTestUser(t, store, "pat")

	updated, previous, err := store.SetUserAvatar(created.User.ID, "https://cdn.example.com/new.png")
	if err != nil {
		t.Fatalf("SetUserAvatar: %v", err)
	}
	if previous != created.User.AvatarURL {
		t.Fatalf("expected superseded URL %q, got %q", created.User.AvatarURL, previous)
	}
	if updated.AvatarURL != "https://cdn.example.com/new.png" {
		t.Fatalf("avatar not replaced: %q", updated.AvatarURL)
	}
}

func TestSubscribeIsIdempotentAndRejectsSelf(t *testing.T) {
	store := newTestStore(t)
	viewer := registerTestUser(t, store, "viewer")
	channel := registerTestUser(t, store, "channel")

	edge, err := store.Subscribe(viewer.User.ID, channel.User.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if edge.SubscriberID != viewer.User.ID || edge.ChannelID != channel.User.ID {
		t.Fatalf("unexpected edge %+v", edge)
	}
	repeat, err := store.Subscribe(viewer.User.ID, channel.User.ID)
	if err != nil {
		t.Fatalf("repeat Subscribe: %v", err)
	}
	if !repeat.CreatedAt.Equal(edge.CreatedAt) {
		t.Fatal("repeat Subscribe must keep the original edge timestamp")
	}
	if !store.IsSubscribed(viewer.User.ID, channel.User.ID) {
		t.Fatal("edge missing after Subscribe")
	}

	profile, err := store.ChannelProfile(channel.User.Username, viewer.User.ID)
	if err != nil {
		t.Fatalf("ChannelProfile: %v", err)
	}
	if profile.SubscriberCount != 1 {
		t.Fatalf("duplicate Subscribe must not double-count, got %d", profile.SubscriberCount)
	}

	if _, err := store.Subscribe(viewer.User.ID, viewer.User.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected self-subscribe rejection, got %v", err)
	}

	if err := store.Unsubscribe(viewer.User.ID, channel.User.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := store.Unsubscribe(viewer.User.ID, channel.User.ID); err != nil {
		t.Fatalf("repeat Unsubscribe: %v", err)
	}
	if store.IsSubscribed(viewer.User.ID, channel.User.ID) {
		t.Fatal("edge still present after Unsubscribe")
	}
}

func TestRecordWatchOrdersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	owner := registerTestUser(t, store, "owner")
	viewer := registerTestUser(t, store, "viewer")

	first, err := store.CreateVideo(CreateVideoParams{OwnerID: owner.User.ID, Title: "First", Duration: 90})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	second, err := store.CreateVideo(CreateVideoParams{OwnerID: owner.User.ID, Title: "Second", Duration: 120})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}

	for _, id := range []string{first.ID, second.ID, first.ID} {
		if err := store.RecordWatch(viewer.User.ID, id); err != nil {
			t.Fatalf("RecordWatch %s: %v", id, err)
		}
	}

	user, ok := store.GetUser(viewer.User.ID)
	if !ok {
		t.Fatal("viewer missing")
	}
	if len(user.WatchHistory) != 2 {
		t.Fatalf("rewatching must deduplicate, got %v", user.WatchHistory)
	}
	if user.WatchHistory[0] != first.ID || user.WatchHistory[1] != second.ID {
		t.Fatalf("expected most-recent-first order, got %v", user.WatchHistory)
	}

	if err := store.RecordWatch(viewer.User.ID, "missing-video"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func TestStorageSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	created := registerTestUser(t, store, "durable")

	reopened, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen NewStorage: %v", err)
	}
	user, ok := reopened.FindUserByUsername("durable")
	if !ok {
		t.Fatal("user missing after reload")
	}
	if user.ID != created.User.ID {
		t.Fatalf("user identity changed across reload: %q vs %q", user.ID, created.User.ID)
	}
}
