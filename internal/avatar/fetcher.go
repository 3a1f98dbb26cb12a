// Package avatar downloads avatar images from user-supplied URLs.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"postboard/internal/models"
)

// DefaultMaxBytes bounds the avatar body read from the remote server.
const DefaultMaxBytes int64 = 5 << 20

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind string

const (
	KindInvalidURL FetchErrorKind = "invalid_url"
	KindTransport  FetchErrorKind = "transport"
	KindStatus     FetchErrorKind = "status"
	KindBody       FetchErrorKind = "body"
)

// FetchError reports a failed avatar download.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("fetch avatar %s (%s)", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// Options tunes fetch behaviour.
type Options struct {
	// MaxBytes caps the body size; zero or negative uses DefaultMaxBytes.
	MaxBytes int64
	// RejectNonSuccessStatus turns non-2xx responses into FetchErrors.
	// By default the status is only logged.
	RejectNonSuccessStatus bool
}

// Fetcher performs one GET per avatar URL using a shared client.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

// NewFetcher builds a fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, opts: opts, logger: logger}
}

// Fetch downloads the avatar at rawURL. An empty body yields the absent image.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.Image, error) {
	target, err := ParseURL(rawURL)
	if err != nil {
		return models.Image{}, &FetchError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return models.Image{}, &FetchError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Image{}, &FetchError{Kind: KindTransport, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	f.logger.Debug("avatar response", "url", rawURL, "status", resp.StatusCode, "content_length", resp.ContentLength)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if f.opts.RejectNonSuccessStatus {
			return models.Image{}, &FetchError{Kind: KindStatus, URL: rawURL, Status: resp.StatusCode}
		}
		f.logger.Warn("avatar fetch returned non-success status", "url", rawURL, "status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return models.Image{}, &FetchError{Kind: KindBody, URL: rawURL, Status: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return models.Image{}, &FetchError{
			Kind:   KindBody,
			URL:    rawURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("body exceeds %d bytes", f.opts.MaxBytes),
		}
	}

	return models.NewImage(body), nil
}

// ParseURL accepts absolute http and https URLs with a host.
func ParseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url host is required")
	}
	return u, nil
}
