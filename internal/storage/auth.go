package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"cliptide/internal/models"
)

const (
	passwordSaltLength = 16
	passwordKeyLength  = 32
	passwordIterations = 120000
)

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, passwordIterations, passwordKeyLength, sha256.New)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s",
		passwordIterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyPassword(stored, candidate string) error {
	parts := strings.Split(stored, "$")
	if len(parts) != 5 || parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return errors.New("unsupported password hash format")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return errors.New("invalid password hash iterations")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return errors.New("invalid password hash salt")
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return errors.New("invalid password hash key")
	}
	key := pbkdf2.Key([]byte(candidate), salt, iterations, len(expected), sha256.New)
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// AuthenticateUser resolves the identifier as a username first, then an
// email, and verifies the password against the stored hash. An unknown
// identifier yields ErrNotFound; a wrong password yields
// ErrInvalidCredentials.
func (s *Storage) AuthenticateUser(identifier, password string) (models.User, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || password == "" {
		return models.User{}, fmt.Errorf("username or email and password are required: %w", ErrValidation)
	}

	user, ok := s.FindUserByUsername(identifier)
	if !ok {
		user, ok = s.FindUserByEmail(identifier)
	}
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", identifier, ErrNotFound)
	}

	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("verify password: %w", err)
	}
	return user, nil
}

// ChangeUserPassword verifies the current password before replacing it.
func (s *Storage) ChangeUserPassword(id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password is required: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	if err := verifyPassword(user.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}
