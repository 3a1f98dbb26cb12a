package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"postboard/internal/avatar"
	"postboard/internal/models"
)

const (
	fieldBody     = "body"
	fieldImage    = "image"
	fieldUserName = "user_name"
	fieldAvatar   = "avatar"
)

type fieldTooLargeError struct {
	field string
	limit int64
}

func (e fieldTooLargeError) Error() string {
	return fmt.Sprintf("field %q exceeds %d bytes", e.field, e.limit)
}

// parseSubmissionForm reads parts in arrival order. It returns (nil, nil) when a
// required field is missing or the avatar URL is not usable, and an error only
// when the multipart stream itself is broken or a field is oversized.
func parseSubmissionForm(mr *multipart.Reader, maxFieldBytes int64, logger *slog.Logger) (*models.SubmittedForm, error) {
	var (
		body, userName, avatarURL *string
		image                     models.Image
	)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		name := part.FormName()
		switch name {
		case fieldBody, fieldUserName, fieldAvatar, fieldImage:
		default:
			logger.Info("unknown form field, skipping", "field", name)
			_ = part.Close()
			continue
		}

		data, err := readPart(part, name, maxFieldBytes)
		_ = part.Close()
		if err != nil {
			return nil, err
		}

		// Later occurrences overwrite earlier ones.
		switch name {
		case fieldBody:
			text := string(data)
			body = &text
		case fieldUserName:
			text := string(data)
			userName = &text
		case fieldAvatar:
			text := string(data)
			avatarURL = &text
		case fieldImage:
			image = models.NewImage(data)
		}
	}

	if body == nil || userName == nil || avatarURL == nil {
		logger.Debug("incomplete submission",
			"has_body", body != nil,
			"has_user_name", userName != nil,
			"has_avatar", avatarURL != nil,
		)
		return nil, nil
	}
	if _, err := avatar.ParseURL(*avatarURL); err != nil {
		logger.Debug("incomplete submission: unusable avatar url", "avatar", *avatarURL, "error", err)
		return nil, nil
	}

	return &models.SubmittedForm{
		Body:      *body,
		Image:     image,
		UserName:  *userName,
		AvatarURL: *avatarURL,
	}, nil
}

func readPart(part *multipart.Part, name string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read field %q: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fieldTooLargeError{field: name, limit: limit}
	}
	return data, nil
}
