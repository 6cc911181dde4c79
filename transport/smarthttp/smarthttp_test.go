package smarthttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverRefs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info/refs", r.URL.Path)
		assert.Equal(t, "git-upload-pack", r.URL.Query().Get("service"))
		w.Header().Set("Content-Type", refsContentType)
		_, _ = io.WriteString(w, "0032# service=git-upload-pack\n0000")
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	body, err := c.DiscoverRefs(context.Background())
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "service=git-upload-pack")
}

func TestDiscoverRefsBadContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "nope")
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	_, err := c.DiscoverRefs(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedContentType)
}

func TestDiscoverRefsBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	_, err := c.DiscoverRefs(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestUploadPack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/git-upload-pack", r.URL.Path)
		assert.Equal(t, requestContentType, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "0009done\n", string(body))
		_, _ = io.WriteString(w, "0008NAK\nPACK")
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	resp, err := c.UploadPack(context.Background(), strings.NewReader("0009done\n"))
	require.NoError(t, err)
	defer resp.Close()

	data, err := io.ReadAll(resp)
	require.NoError(t, err)
	assert.Equal(t, "0008NAK\nPACK", string(data))
}
