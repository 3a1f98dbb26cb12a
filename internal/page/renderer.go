// Package page renders the listing page from stored posts.
package page

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"postboard/internal/models"
)

const (
	// PostsPlaceholder is replaced by the rendered posts.
	PostsPlaceholder = "{{ BLOGS }}"
	// NoticePlaceholder is replaced by the notice banner, if the shell has one.
	NoticePlaceholder = "{{ NOTICE }}"

	timestampLayout = time.RFC1123
)

//go:embed assets/home.html
var defaultShell string

var postTemplate = template.Must(template.New("post").Parse(`<article class="post">
  <header>{{if .AvatarSrc}}<img class="avatar" src="{{.AvatarSrc}}" alt="avatar of {{.UserName}}"> {{end}}<strong class="user-name">{{.UserName}}</strong> <time datetime="{{.ISOTime}}">{{.Published}}</time></header>
  <p class="body">{{.Body}}</p>
  {{if .ImageSrc}}<img class="blog-image" src="{{.ImageSrc}}" alt="post image">{{end}}
</article>
`))

var noticeTemplate = template.Must(template.New("notice").Parse(`<p class="notice" role="alert">{{.}}</p>`))

type postView struct {
	UserName  string
	Body      string
	Published string
	ISOTime   string
	AvatarSrc template.URL
	ImageSrc  template.URL
}

// Renderer merges posts into a static page shell.
type Renderer struct {
	shell string
}

// DefaultShell returns the embedded page shell.
func DefaultShell() string {
	return defaultShell
}

// LoadShell reads a page shell from path, or returns the embedded shell when path is empty.
func LoadShell(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultShell, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page shell: %w", err)
	}
	return string(data), nil
}

// NewRenderer validates the shell and returns a renderer bound to it.
func NewRenderer(shell string) (*Renderer, error) {
	if !strings.Contains(shell, PostsPlaceholder) {
		return nil, fmt.Errorf("page shell is missing %s placeholder", PostsPlaceholder)
	}
	return &Renderer{shell: shell}, nil
}

// Render produces the full listing page. Posts appear in the given order.
func (r *Renderer) Render(posts []models.Post, notice string) (string, error) {
	var fragments bytes.Buffer
	for _, post := range posts {
		if err := renderPost(&fragments, post); err != nil {
			return "", err
		}
	}

	var noticeHTML bytes.Buffer
	if notice != "" {
		if err := noticeTemplate.Execute(&noticeHTML, notice); err != nil {
			return "", fmt.Errorf("render notice: %w", err)
		}
	}

	out := strings.Replace(r.shell, NoticePlaceholder, noticeHTML.String(), 1)
	return strings.Replace(out, PostsPlaceholder, fragments.String(), 1), nil
}

func renderPost(buf *bytes.Buffer, post models.Post) error {
	published := post.PublishedAt()
	view := postView{
		UserName:  post.UserName,
		Body:      post.Body,
		Published: published.Format(timestampLayout),
		ISOTime:   published.Format(time.RFC3339),
		AvatarSrc: dataURI(post.Avatar),
		ImageSrc:  dataURI(post.Image),
	}
	if err := postTemplate.Execute(buf, view); err != nil {
		return fmt.Errorf("render post %d: %w", post.ID, err)
	}
	return nil
}

// dataURI inlines an image as base64 data; absent images yield "".
func dataURI(img models.Image) template.URL {
	if !img.Present() {
		return ""
	}
	mediaType, _, _ := strings.Cut(img.MediaType(), ";")
	return template.URL("data:" + strings.TrimSpace(mediaType) + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes()))
}
