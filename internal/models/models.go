package models

import "time"

// User is an account on the platform. Every user doubles as a channel that
// other users can subscribe to. PasswordHash never leaves the process: it is
// excluded from JSON so no handler can leak it by accident.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	PasswordHash  string `json:"-"`
	AvatarURL     string `json:"avatar"`
	CoverImageURL string `json:"coverImage,omitempty"`
	// WatchHistory holds video IDs ordered most recently watched first.
	WatchHistory []string  `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Subscription is a directed edge: Subscriber follows Channel. Both ends
// reference User IDs.
type Subscription struct {
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Video is the minimal record the watch-history expansion needs. Full video
// management lives outside this service. Duration is in seconds.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail,omitempty"`
	Duration     float64   `json:"duration"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ChannelProfile is the fixed projection returned by the channel profile
// query. Only these fields are ever serialized; in particular no credential
// or raw subscription data can appear here.
type ChannelProfile struct {
	FullName           string `json:"fullName"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	AvatarURL          string `json:"avatar"`
	CoverImageURL      string `json:"coverImage,omitempty"`
	SubscriberCount    int    `json:"channelSubscriberCount"`
	SubscribedToCount  int    `json:"channelSubscribedToCount"`
	ViewerIsSubscribed bool   `json:"isSubscribed"`
}

// VideoOwner is the projected subset of the owning user embedded in watch
// history entries.
type VideoOwner struct {
	FullName  string `json:"fullName"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar"`
}

// WatchHistoryEntry is one expanded watch-history reference: the video plus
// a trimmed view of its owner.
type WatchHistoryEntry struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail,omitempty"`
	Duration     float64    `json:"duration"`
	Owner        VideoOwner `json:"owner"`
}
