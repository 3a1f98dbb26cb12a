package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"postboard/internal/avatar"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "POSTBOARD_HTTP_TIMEOUT"

	errorCodeHeader        = "X-Error-Code"
	errorNumericCodeHeader = "X-Error-Numeric-Code"

	homePath = "/home"
)

// Client is a simple HTTP client for a postboard server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: httpTimeoutFromEnv(),
			// The submit endpoint answers with 303; the redirect target carries the outcome.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Ping checks whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "ok" {
		return &APIError{Status: resp.StatusCode, Message: "unexpected health response"}
	}
	return nil
}

// SubmitPost sends one post as a multipart form. A redirect carrying an
// error code is reported as an *APIError with that code.
func (c *Client) SubmitPost(ctx context.Context, post PostSubmission) (SubmitResult, error) {
	var result SubmitResult
	if err := post.Validate(); err != nil {
		return result, err
	}

	payload, contentType, err := encodeSubmission(post)
	if err != nil {
		return result, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+homePath, payload)
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return result, decodeError(resp)
	}
	if resp.StatusCode != http.StatusSeeOther {
		return result, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("unexpected response: %s", resp.Status)}
	}

	result.Status = resp.StatusCode
	result.Location = resp.Header.Get("Location")
	if code := redirectErrorCode(result.Location); code != "" {
		return result, &APIError{Status: resp.StatusCode, Code: code, Message: "post was not published"}
	}
	return result, nil
}

// Validate reports submissions the server would drop without storing.
func (p PostSubmission) Validate() error {
	if strings.TrimSpace(p.Body) == "" || strings.TrimSpace(p.UserName) == "" || strings.TrimSpace(p.AvatarURL) == "" {
		return ErrIncompleteSubmission
	}
	if _, err := avatar.ParseURL(p.AvatarURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAvatarURL, err)
	}
	return nil
}

func encodeSubmission(post PostSubmission) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	for _, field := range []struct{ name, value string }{
		{"user_name", post.UserName},
		{"avatar", post.AvatarURL},
		{"body", post.Body},
	} {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}

	if len(post.Image) > 0 {
		name := post.ImageName
		if name == "" {
			name = "image"
		}
		part, err := mw.CreateFormFile("image", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(post.Image); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func redirectErrorCode(location string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Query().Get("error")
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		Status: resp.StatusCode,
		Code:   resp.Header.Get(errorCodeHeader),
	}
	if raw := resp.Header.Get(errorNumericCodeHeader); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			apiErr.ErrorCode = n
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	}
	return apiErr
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
