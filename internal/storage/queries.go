package storage

import (
	"fmt"
	"strings"

	"cliptide/internal/models"
)

// ChannelProfile assembles the public view of a channel: identity fields,
// subscriber counts derived from the subscription edges, and whether the
// viewer follows the channel. viewerID may be empty for anonymous requests,
// in which case isSubscribed is always false.
func (s *Storage) ChannelProfile(username, viewerID string) (models.ChannelProfile, error) {
	normalized := strings.TrimSpace(strings.ToLower(username))
	if normalized == "" {
		return models.ChannelProfile{}, fmt.Errorf("channel username is empty: %w", ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.findByUsernameLocked(normalized)
	if !ok {
		return models.ChannelProfile{}, fmt.Errorf("channel %s: %w", normalized, ErrNotFound)
	}

	profile := models.ChannelProfile{
		FullName:      channel.FullName,
		Username:      channel.Username,
		Email:         channel.Email,
		AvatarURL:     channel.AvatarURL,
		CoverImageURL: channel.CoverImageURL,
	}

	for subscriberID, channels := range s.data.Subscriptions {
		if _, follows := channels[channel.ID]; follows {
			profile.SubscriberCount++
			if viewerID != "" && subscriberID == viewerID {
				profile.ViewerIsSubscribed = true
			}
		}
	}
	profile.SubscribedToCount = len(s.data.Subscriptions[channel.ID])

	return profile, nil
}

// WatchHistory expands the user's ordered video references into full entries
// with owner identity attached. Entries whose video or owner no longer
// exists are skipped. A user with no history gets an empty slice.
func (s *Storage) WatchHistory(userID string) ([]models.WatchHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	entries := make([]models.WatchHistoryEntry, 0, len(user.WatchHistory))
	for _, videoID := range user.WatchHistory {
		video, ok := s.data.Videos[videoID]
		if !ok {
			continue
		}
		owner, ok := s.data.Users[video.OwnerID]
		if !ok {
			continue
		}
		entries = append(entries, models.WatchHistoryEntry{
			ID:           video.ID,
			Title:        video.Title,
			ThumbnailURL: video.ThumbnailURL,
			Duration:     video.Duration,
			Owner: models.VideoOwner{
				FullName:  owner.FullName,
				Username:  owner.Username,
				AvatarURL: owner.AvatarURL,
			},
		})
	}
	return entries, nil
}
