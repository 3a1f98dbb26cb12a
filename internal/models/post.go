package models

import "time"

// Post is one persisted blog entry.
type Post struct {
	ID          int64
	Body        string
	Image       Image
	PublishDate int64 // epoch milliseconds
	UserName    string
	Avatar      Image
}

// PublishedAt converts PublishDate to a UTC time.
func (p Post) PublishedAt() time.Time {
	return time.UnixMilli(p.PublishDate).UTC()
}

// SubmittedForm is a complete post submission decoded from a request.
// It is only constructed when every required field was supplied.
type SubmittedForm struct {
	Body      string
	Image     Image
	UserName  string
	AvatarURL string
}
