package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postboard/internal/models"
	"postboard/internal/store"
)

// AvatarFetcher downloads avatar bytes for a URL.
type AvatarFetcher interface {
	Fetch(ctx context.Context, rawURL string) (models.Image, error)
}

// SubmissionService turns a complete form into a persisted post.
type SubmissionService struct {
	store   store.PostStore
	fetcher AvatarFetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmissionService constructs a submission service.
func NewSubmissionService(postStore store.PostStore, fetcher AvatarFetcher, logger *slog.Logger) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		store:   postStore,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit fetches the avatar and stores the post. The avatar download happens
// before any store call, so no connection is held across the network fetch.
// Fetch failures are returned unwrapped so callers can match *avatar.FetchError.
func (s *SubmissionService) Submit(ctx context.Context, form *models.SubmittedForm) (*models.Post, error) {
	if form == nil {
		return nil, internalError(fmt.Errorf("submission form is required"))
	}
	if s.fetcher == nil {
		return nil, internalError(fmt.Errorf("avatar fetcher is not configured"))
	}

	avatarImage, err := s.fetcher.Fetch(ctx, form.AvatarURL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched avatar", "url", form.AvatarURL, "bytes", avatarImage.Len())

	post := &models.Post{
		Body:        form.Body,
		Image:       form.Image,
		PublishDate: s.now().UnixMilli(),
		UserName:    form.UserName,
		Avatar:      avatarImage,
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, storeFailure(fmt.Errorf("insert post: %w", err))
	}

	s.logger.Info("post published", "post_id", post.ID, "user_name", post.UserName, "has_image", post.Image.Present(), "avatar_bytes", post.Avatar.Len())
	return post, nil
}
