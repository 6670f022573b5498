package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cliptide/internal/models"
)

var (
	// ErrValidation marks a request that failed required-field checks.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a uniqueness violation on username or email.
	ErrConflict = errors.New("already exists")
	// ErrNotFound marks a lookup that matched no record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials marks a failed password verification.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type dataset struct {
	Users  map[string]models.User  `json:"users"`
	Videos map[string]models.Video `json:"videos"`
	// Subscriptions maps subscriber ID to the set of channel IDs they
	// follow, with the time the edge was created.
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Subscriptions: make(map[string]map[string]time.Time),
	}
}

// Storage is a JSON-file backed account store. The file is the source of
// truth; every mutation rewrites it atomically via a temp-file rename. All
// uniqueness checks happen under the same lock as the insert, so the storage
// layer is the authoritative source of conflict errors.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]map[string]time.Time)
	}
	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		cloned := user
		if user.WatchHistory != nil {
			cloned.WatchHistory = append([]string(nil), user.WatchHistory...)
		}
		clone.Users[id] = cloned
	}
	for id, video := range src.Videos {
		clone.Videos[id] = video
	}
	for subscriberID, channels := range src.Subscriptions {
		if channels == nil {
			continue
		}
		cloned := make(map[string]time.Time, len(channels))
		for channelID, createdAt := range channels {
			cloned[channelID] = createdAt
		}
		clone.Subscriptions[subscriberID] = cloned
	}
	return clone
}

func (s *Storage) generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// User operations

// CreateUserParams captures the attributes required to register a user.
// Password arrives in plaintext and is hashed before the record is stored.
type CreateUserParams struct {
	FullName      string
	Email         string
	Username      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	fullName := strings.TrimSpace(params.FullName)
	email := strings.TrimSpace(strings.ToLower(params.Email))
	username := strings.TrimSpace(strings.ToLower(params.Username))
	avatarURL := strings.TrimSpace(params.AvatarURL)

	switch {
	case fullName == "":
		return models.User{}, fmt.Errorf("fullName is required: %w", ErrValidation)
	case email == "":
		return models.User{}, fmt.Errorf("email is required: %w", ErrValidation)
	case username == "":
		return models.User{}, fmt.Errorf("username is required: %w", ErrValidation)
	case params.Password == "":
		return models.User{}, fmt.Errorf("password is required: %w", ErrValidation)
	case avatarURL == "":
		return models.User{}, fmt.Errorf("avatar is required: %w", ErrValidation)
	}

	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The duplicate check and insert share the lock: no two registrations
	// can both pass the check.
	for _, user := range s.data.Users {
		if user.Username == username {
			return models.User{}, fmt.Errorf("username %s: %w", username, ErrConflict)
		}
		if user.Email == email {
			return models.User{}, fmt.Errorf("email %s: %w", email, ErrConflict)
		}
	}

	id, err := s.generateID()
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	user := models.User{
		ID:            id,
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  passwordHash,
		AvatarURL:     avatarURL,
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByUsername looks up a user by their normalized username.
func (s *Storage) FindUserByUsername(username string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByUsernameLocked(strings.TrimSpace(strings.ToLower(username)))
}

func (s *Storage) findByUsernameLocked(username string) (models.User, bool) {
	for _, user := range s.data.Users {
		if user.Username == username {
			return user, true
		}
	}
	return models.User{}, false
}

// FindUserByEmail looks up a user by their normalized email address.
func (s *Storage) FindUserByEmail(email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := strings.TrimSpace(strings.ToLower(email))
	for _, user := range s.data.Users {
		if user.Email == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

// UserUpdate represents the profile fields a user may change. Nil pointers
// leave the current value untouched.
type UserUpdate struct {
	FullName *string
	Email    *string
}

// UpdateUser patches profile metadata while enforcing email uniqueness.
// Writing the same values back is a no-op apart from the updatedAt bump.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	changed := false
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return models.User{}, fmt.Errorf("fullName cannot be empty: %w", ErrValidation)
		}
		if name != user.FullName {
			user.FullName = name
			changed = true
		}
	}
	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, fmt.Errorf("email cannot be empty: %w", ErrValidation)
		}
		if email != user.Email {
			for existingID, existing := range updatedData.Users {
				if existingID == user.ID {
					continue
				}
				if existing.Email == email {
					return models.User{}, fmt.Errorf("email %s: %w", email, ErrConflict)
				}
			}
			user.Email = email
			changed = true
		}
	}

	if !changed {
		return user, nil
	}

	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData
	return user, nil
}

// SetUserAvatar replaces the avatar reference and returns the URL it
// superseded so the caller can release the old object.
func (s *Storage) SetUserAvatar(id, avatarURL string) (models.User, string, error) {
	if strings.TrimSpace(avatarURL) == "" {
		return models.User{}, "", fmt.Errorf("avatar is required: %w", ErrValidation)
	}
	return s.setImageLocked(id, func(user *models.User) string {
		previous := user.AvatarURL
		user.AvatarURL = strings.TrimSpace(avatarURL)
		return previous
	})
}

// SetUserCoverImage replaces the cover image reference and returns the URL it
// superseded.
func (s *Storage) SetUserCoverImage(id, coverURL string) (models.User, string, error) {
	if strings.TrimSpace(coverURL) == "" {
		return models.User{}, "", fmt.Errorf("coverImage is required: %w", ErrValidation)
	}
	return s.setImageLocked(id, func(user *models.User) string {
		previous := user.CoverImageURL
		user.CoverImageURL = strings.TrimSpace(coverURL)
		return previous
	})
}

func (s *Storage) setImageLocked(id string, apply func(*models.User) string) (models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, "", fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	previous := apply(&user)
	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, "", err
	}
	s.data = updatedData
	return user, previous, nil
}

// Video operations

// CreateVideoParams captures the attributes of a video reference. Duration
// is in seconds.
type CreateVideoParams struct {
	OwnerID      string
	Title        string
	ThumbnailURL string
	Duration     float64
}

func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, fmt.Errorf("title is required: %w", ErrValidation)
	}
	if params.Duration < 0 {
		return models.Video{}, fmt.Errorf("duration cannot be negative: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, fmt.Errorf("owner %s: %w", params.OwnerID, ErrNotFound)
	}

	id, err := s.generateID()
	if err != nil {
		return models.Video{}, err
	}
	video := models.Video{
		ID:           id,
		OwnerID:      params.OwnerID,
		Title:        title,
		ThumbnailURL: strings.TrimSpace(params.ThumbnailURL),
		Duration:     params.Duration,
		CreatedAt:    time.Now().UTC(),
	}

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, id)
		return models.Video{}, err
	}
	return video, nil
}

func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok
}

// RecordWatch moves the video to the front of the user's watch history,
// deduplicating any earlier occurrence.
func (s *Storage) RecordWatch(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if _, ok := updatedData.Videos[videoID]; !ok {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	history := make([]string, 0, len(user.WatchHistory)+1)
	history = append(history, videoID)
	for _, existing := range user.WatchHistory {
		if existing != videoID {
			history = append(history, existing)
		}
	}
	user.WatchHistory = history
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// Subscription operations

// Subscribe records that subscriberID follows the channel and returns the
// resulting edge. The operation is idempotent: repeated calls return the
// original edge with its first-seen timestamp. Subscribing to yourself is
// rejected.
func (s *Storage) Subscribe(subscriberID, channelID string) (models.Subscription, error) {
	if subscriberID == channelID {
		return models.Subscription{}, fmt.Errorf("cannot subscribe to your own channel: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	if _, ok := updatedData.Users[subscriberID]; !ok {
		return models.Subscription{}, fmt.Errorf("user %s: %w", subscriberID, ErrNotFound)
	}
	if _, ok := updatedData.Users[channelID]; !ok {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}

	edges := updatedData.Subscriptions[subscriberID]
	if edges == nil {
		edges = make(map[string]time.Time)
	}
	if _, exists := edges[channelID]; !exists {
		edges[channelID] = time.Now().UTC()
	}
	updatedData.Subscriptions[subscriberID] = edges

	if err := s.persistDataset(updatedData); err != nil {
		return models.Subscription{}, err
	}
	s.data = updatedData
	return models.Subscription{
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    s.data.Subscriptions[subscriberID][channelID],
	}, nil
}

// Unsubscribe removes the edge if present. The operation is idempotent.
func (s *Storage) Unsubscribe(subscriberID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	if _, ok := updatedData.Users[subscriberID]; !ok {
		return fmt.Errorf("user %s: %w", subscriberID, ErrNotFound)
	}
	if _, ok := updatedData.Users[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}

	if edges, ok := updatedData.Subscriptions[subscriberID]; ok {
		delete(edges, channelID)
		if len(edges) == 0 {
			delete(updatedData.Subscriptions, subscriberID)
		}
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// IsSubscribed reports whether subscriberID follows the channel.
func (s *Storage) IsSubscribed(subscriberID, channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges, ok := s.data.Subscriptions[subscriberID]
	if !ok {
		return false
	}
	_, exists := edges[channelID]
	return exists
}
