package store

import (
	"context"

	"postboard/internal/models"
)

// PostStore abstracts post storage backends.
type PostStore interface {
	InsertPost(ctx context.Context, post *models.Post) error
	ListPosts(ctx context.Context) ([]models.Post, error)
	CountPosts(ctx context.Context) (int, error)
}

var _ PostStore = (*Store)(nil)
