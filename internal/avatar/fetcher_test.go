package avatar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchReturnsBody(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3, 4, 5, 6}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	f := NewFetcher(ts.Client(), Options{}, quietLogger())
	img, err := f.Fetch(context.Background(), ts.URL+"/x.png")
	require.NoError(t, err)
	require.True(t, img.Present())
	assert.True(t, bytes.Equal(payload, img.Bytes()))
}

func TestFetchEmptyBodyIsAbsentImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	img, err := NewFetcher(ts.Client(), Options{}, quietLogger()).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.False(t, img.Present())
}

func TestFetchNonSuccessStatusIsNotFailureByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer ts.Close()

	img, err := NewFetcher(ts.Client(), Options{}, quietLogger()).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("missing"), img.Bytes())
}

func TestFetchRejectsNonSuccessStatusWhenConfigured(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := NewFetcher(ts.Client(), Options{RejectNonSuccessStatus: true}, quietLogger())
	_, err := f.Fetch(context.Background(), ts.URL)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
}

func TestFetchTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewFetcher(nil, Options{}, quietLogger()).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, IsFetchError(err))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindTransport, fetchErr.Kind)
}

func TestFetchInvalidURL(t *testing.T) {
	f := NewFetcher(nil, Options{}, quietLogger())
	for _, raw := range []string{"", "not a url", "ftp://example.com/x.png", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr), "url %q", raw)
		assert.Equal(t, KindInvalidURL, fetchErr.Kind, "url %q", raw)
	}
}

func TestFetchBodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{'a'}, 64))
	}))
	defer ts.Close()

	f := NewFetcher(ts.Client(), Options{MaxBytes: 32}, quietLogger())
	_, err := f.Fetch(context.Background(), ts.URL)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindBody, fetchErr.Kind)

	f = NewFetcher(ts.Client(), Options{MaxBytes: 64}, quietLogger())
	img, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Len())
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(ts.Client(), Options{}, quietLogger()).Fetch(ctx, ts.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
