package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"postboard/internal/avatar"
	"postboard/internal/models"
	"postboard/internal/page"
	"postboard/internal/store"
)

// stubFetcher returns a fixed result and records the URLs it was asked for.
type stubFetcher struct {
	mu    sync.Mutex
	image []byte
	err   error
	urls  []string
}

func (f *stubFetcher) Fetch(ctx context.Context, rawURL string) (models.Image, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()
	if f.err != nil {
		return models.Image{}, f.err
	}
	return models.NewImage(f.image), nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type failingStore struct{}

func (failingStore) InsertPost(ctx context.Context, post *models.Post) error {
	return errors.New("disk full")
}

func (failingStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	return nil, errors.New("no such table: posts")
}

func (failingStore) CountPosts(ctx context.Context) (int, error) {
	return 0, errors.New("no such table: posts")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, fetcher AvatarFetcher) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	renderer, err := page.NewRenderer(page.DefaultShell())
	require.NoError(t, err)

	return New("127.0.0.1:0", st, fetcher, renderer, quietLogger()), st
}

type formField struct {
	name     string
	value    []byte
	filename string
}

func textField(name, value string) formField {
	return formField{name: name, value: []byte(value)}
}

func fileField(name string, value []byte) formField {
	return formField{name: name, value: value, filename: "upload.bin"}
}

func multipartRequest(t *testing.T, fields ...formField) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range fields {
		var (
			part io.Writer
			err  error
		)
		if f.filename != "" {
			part, err = writer.CreateFormFile(f.name, f.filename)
		} else {
			part, err = writer.CreateFormField(f.name)
		}
		require.NoError(t, err)
		_, err = part.Write(f.value)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/home", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func countRows(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.CountPosts(context.Background())
	require.NoError(t, err)
	return n
}

func imgClasses(t *testing.T, doc string) []string {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var classes []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					classes = append(classes, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return classes
}

func TestSubmitMissingRequiredFieldRedirectsWithoutInsert(t *testing.T) {
	complete := []formField{
		textField("body", "hello"),
		textField("user_name", "alice"),
		textField("avatar", "http://example.com/x.png"),
	}

	for missing := range complete {
		name := complete[missing].name
		t.Run("missing "+name, func(t *testing.T) {
			fetcher := &stubFetcher{image: []byte("avatar")}
			srv, st := newTestServer(t, fetcher)

			fields := append([]formField{}, complete[:missing]...)
			fields = append(fields, complete[missing+1:]...)
			w := serve(srv, multipartRequest(t, fields...))

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/home", w.Header().Get("Location"))
			assert.Equal(t, 0, countRows(t, st))
			assert.Equal(t, 0, fetcher.calls())
		})
	}
}

func TestSubmitUnusableAvatarURLRedirectsWithoutFetch(t *testing.T) {
	fetcher := &stubFetcher{image: []byte("avatar")}
	srv, st := newTestServer(t, fetcher)

	w := serve(srv, multipartRequest(t,
		textField("body", "hello"),
		textField("user_name", "alice"),
		textField("avatar", "not a url"),
	))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))
	assert.Equal(t, 0, countRows(t, st))
	assert.Equal(t, 0, fetcher.calls())
}

func TestSubmitStoresExactBytes(t *testing.T) {
	avatarBytes := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01, 0xfe, 0xff, 0x7f, 0x80}
	imageBytes := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	fetcher := &stubFetcher{image: avatarBytes}
	srv, st := newTestServer(t, fetcher)

	w := serve(srv, multipartRequest(t,
		textField("body", "multi\nline body ✓"),
		fileField("image", imageBytes),
		textField("user_name", "alice"),
		textField("avatar", "http://example.com/x.png"),
	))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "multi\nline body ✓", posts[0].Body)
	assert.Equal(t, "alice", posts[0].UserName)
	assert.Equal(t, avatarBytes, posts[0].Avatar.Bytes())
	assert.Equal(t, imageBytes, posts[0].Image.Bytes())
	assert.NotZero(t, posts[0].PublishDate)
	assert.Equal(t, []string{"http://example.com/x.png"}, fetcher.urls)
}

func TestSubmitWithoutImageOmitsBlogImage(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("\x89PNG\r\n\x1a\n")})

	w := serve(srv, multipartRequest(t,
		textField("body", "no picture"),
		textField("user_name", "bob"),
		textField("avatar", "http://example.com/bob.png"),
	))
	require.Equal(t, http.StatusSeeOther, w.Code)

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.False(t, posts[0].Image.Present())

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/home", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"avatar"}, imgClasses(t, w.Body.String()))
}

func TestSubmitEmptyImageFieldIsAbsent(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})

	w := serve(srv, multipartRequest(t,
		textField("body", "b"),
		fileField("image", nil),
		textField("user_name", "u"),
		textField("avatar", "https://example.com/a.png"),
	))
	require.Equal(t, http.StatusSeeOther, w.Code)

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.False(t, posts[0].Image.Present())
}

func TestSubmitIgnoresUnknownFieldsAndLastOccurrenceWins(t *testing.T) {
	fetcher := &stubFetcher{image: []byte("a")}
	srv, st := newTestServer(t, fetcher)

	w := serve(srv, multipartRequest(t,
		textField("body", "first"),
		textField("csrf", "ignored"),
		textField("user_name", "alice"),
		textField("avatar", "http://example.com/one.png"),
		textField("body", "second"),
		textField("avatar", "http://example.com/two.png"),
		fileField("attachment", []byte("ignored")),
	))
	require.Equal(t, http.StatusSeeOther, w.Code)

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "second", posts[0].Body)
	assert.Equal(t, []string{"http://example.com/two.png"}, fetcher.urls)
}

func TestSubmitMalformedMultipartFails(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})

	body := "--XYZ\r\nContent-Disposition: form-data; name=\"body\"\r\n\r\nhello\r\n--XYZ\r\nContent-Disposition: form-data; name=\"user_name\"\r\n\r\nalice"
	req := httptest.NewRequest(http.MethodPost, "/home", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=XYZ")
	w := serve(srv, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_form", w.Header().Get(errorCodeHeader))
	assert.Equal(t, 0, countRows(t, st))
}

func TestSubmitNonMultipartFails(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})

	req := httptest.NewRequest(http.MethodPost, "/home", strings.NewReader("body=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(srv, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, countRows(t, st))
}

func TestSubmitOversizedFieldFails(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})
	srv.ConfigureFormOptions(FormOptions{MaxFieldBytes: 8})

	w := serve(srv, multipartRequest(t,
		textField("body", "this body is longer than eight bytes"),
		textField("user_name", "u"),
		textField("avatar", "http://example.com/a.png"),
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request_too_large", w.Header().Get(errorCodeHeader))
	assert.Equal(t, 0, countRows(t, st))
}

func TestSubmitOversizedBodyFails(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})
	srv.ConfigureFormOptions(FormOptions{MaxUploadBytes: 64})

	w := serve(srv, multipartRequest(t,
		textField("body", strings.Repeat("x", 512)),
		textField("user_name", "u"),
		textField("avatar", "http://example.com/a.png"),
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, countRows(t, st))
}

func TestSubmitFetchFailureRedirectsWithNotice(t *testing.T) {
	fetcher := &stubFetcher{err: &avatar.FetchError{Kind: avatar.KindTransport, URL: "http://example.invalid/x.png", Err: errors.New("no such host")}}
	srv, st := newTestServer(t, fetcher)

	w := serve(srv, multipartRequest(t,
		textField("body", "hello"),
		textField("user_name", "alice"),
		textField("avatar", "http://example.invalid/x.png"),
	))

	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	assert.Equal(t, "/home?error=avatar_fetch_failed", location)
	assert.Equal(t, 0, countRows(t, st))

	w = serve(srv, httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), notices[noticeAvatarFetchFailed])
}

func TestHomeIgnoresUnknownNoticeCodes(t *testing.T) {
	srv, _ := newTestServer(t, &stubFetcher{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/home?error=%3Cscript%3E", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `class="notice"`)
	assert.NotContains(t, w.Body.String(), "<script>")
}

func TestStoreFailuresSurfaceAsServerErrors(t *testing.T) {
	renderer, err := page.NewRenderer(page.DefaultShell())
	require.NoError(t, err)
	srv := New("127.0.0.1:0", failingStore{}, &stubFetcher{image: []byte("a")}, renderer, quietLogger())

	w := serve(srv, multipartRequest(t,
		textField("body", "hello"),
		textField("user_name", "alice"),
		textField("avatar", "http://example.com/x.png"),
	))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "store_failure", w.Header().Get(errorCodeHeader))
	assert.NotContains(t, w.Body.String(), "disk full")

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "store_failure", w.Header().Get(errorCodeHeader))
}

func TestEndToEndHelloAlice(t *testing.T) {
	avatarBytes := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x01}
	avatarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(avatarBytes)
	}))
	defer avatarServer.Close()

	fetcher := avatar.NewFetcher(avatarServer.Client(), avatar.Options{}, quietLogger())
	srv, st := newTestServer(t, fetcher)

	w := serve(srv, multipartRequest(t,
		textField("body", "hello"),
		textField("user_name", "alice"),
		textField("avatar", avatarServer.URL+"/x.png"),
	))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, avatarBytes, posts[0].Avatar.Bytes())

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/home", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	listing := w.Body.String()
	assert.Contains(t, listing, "hello")
	assert.Contains(t, listing, "alice")
	assert.Equal(t, []string{"avatar"}, imgClasses(t, listing))
}

func TestConcurrentSubmissions(t *testing.T) {
	srv, st := newTestServer(t, &stubFetcher{image: []byte("a")})
	handler := srv.Handler()

	const n = 50
	requests := make([]*http.Request, n)
	for i := range requests {
		requests[i] = multipartRequest(t,
			textField("body", fmt.Sprintf("post-%d", i)),
			textField("user_name", "racer"),
			textField("avatar", "http://example.com/a.png"),
		)
	}

	var g errgroup.Group
	for i, req := range requests {
		g.Go(func() error {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusSeeOther {
				return fmt.Errorf("post-%d: status %d", i, w.Code)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, n)
	seen := map[string]bool{}
	for _, p := range posts {
		assert.False(t, seen[p.Body], "duplicate %s", p.Body)
		seen[p.Body] = true
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, &stubFetcher{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = serve(srv, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRootRedirectsHome(t *testing.T) {
	srv, _ := newTestServer(t, &stubFetcher{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))
}
