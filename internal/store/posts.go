package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"postboard/internal/models"
)

const postColumns = "body, image, publish_date, user_name, avatar"

// InsertPost stores one post inside a single transaction.
// A zero PublishDate is set to now; ID is assigned by the database.
func (s *Store) InsertPost(ctx context.Context, post *models.Post) (err error) {
	if post == nil {
		return fmt.Errorf("post is required")
	}
	if post.PublishDate == 0 {
		post.PublishDate = time.Now().UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, err := insertPostTx(ctx, tx, s.dialect, post)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	post.ID = id
	return nil
}

func insertPostTx(ctx context.Context, tx *sql.Tx, d dialect, post *models.Post) (int64, error) {
	query := `INSERT INTO posts (` + postColumns + `) VALUES (?, ?, ?, ?, ?)`
	args := []any{
		post.Body,
		nullableImage(post.Image),
		post.PublishDate,
		post.UserName,
		nullableImage(post.Avatar),
	}

	if d.returning {
		var id int64
		if err := tx.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListPosts returns every committed post in insertion order.
func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	query := `SELECT ` + s.dialect.idColumn + `, ` + postColumns + ` FROM posts ORDER BY ` + s.dialect.idColumn + ` ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// CountPosts returns the number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		post   models.Post
		image  []byte
		avatar []byte
	)
	if err := row.Scan(&post.ID, &post.Body, &image, &post.PublishDate, &post.UserName, &avatar); err != nil {
		return models.Post{}, err
	}
	post.Image = models.NewImage(image)
	post.Avatar = models.NewImage(avatar)
	return post, nil
}

// nullableImage maps an absent image to SQL NULL.
func nullableImage(img models.Image) any {
	if !img.Present() {
		return nil
	}
	return img.Bytes()
}
