package storage

import (
	"cliptide/internal/models"
)

// Repository is the persistence surface the HTTP layer depends on. Storage
// is the JSON-file implementation; alternative backends satisfy the same
// interface.
type Repository interface {
	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByUsername(username string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	SetUserAvatar(id, avatarURL string) (models.User, string, error)
	SetUserCoverImage(id, coverURL string) (models.User, string, error)

	AuthenticateUser(identifier, password string) (models.User, error)
	ChangeUserPassword(id, oldPassword, newPassword string) error

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	RecordWatch(userID, videoID string) error

	Subscribe(subscriberID, channelID string) (models.Subscription, error)
	Unsubscribe(subscriberID, channelID string) error
	IsSubscribed(subscriberID, channelID string) bool

	ChannelProfile(username, viewerID string) (models.ChannelProfile, error)
	WatchHistory(userID string) ([]models.WatchHistoryEntry, error)
}

var _ Repository = (*Storage)(nil)
