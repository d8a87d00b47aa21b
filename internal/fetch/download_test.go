package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_OrderPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.jpg":
			// The first item finishes last; its slot must not move.
			time.Sleep(50 * time.Millisecond)
			w.Write([]byte("aaaa"))
		case "/b.jpg":
			w.Write([]byte("bbbb"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), "test-agent", testLogger())
	results := d.Download(context.Background(), []string{
		srv.URL + "/a.jpg",
		srv.URL + "/b.jpg",
		srv.URL + "/missing.jpg",
	}, DownloadOptions{Timeout: 5 * time.Second, FilesizeLimit: 1 << 20})

	require.Len(t, results, 3)
	assert.Equal(t, []byte("aaaa"), results[0].Blob)
	assert.Equal(t, []byte("bbbb"), results[1].Blob)
	assert.Nil(t, results[2].Blob, "failed item degrades to a bare link")
	assert.Equal(t, srv.URL+"/missing.jpg", results[2].SourceURL)
	assert.True(t, results[0].Downloaded())
	assert.False(t, results[2].Downloaded())
}

func TestDownload_FilesizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), "test-agent", testLogger())
	results := d.Download(context.Background(), []string{srv.URL + "/big.bin"},
		DownloadOptions{Timeout: 5 * time.Second, FilesizeLimit: 99})

	require.Len(t, results, 1)
	assert.Nil(t, results[0].Blob)
}

func TestDownload_ContentLengthPreCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write([]byte(strings.Repeat("x", 1000000)))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), "test-agent", testLogger())
	results := d.Download(context.Background(), []string{srv.URL + "/huge.bin"},
		DownloadOptions{Timeout: 5 * time.Second, FilesizeLimit: 1024})

	require.Len(t, results, 1)
	assert.Nil(t, results[0].Blob)
}

func TestDownload_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), "test-agent", testLogger())
	results := d.Download(context.Background(), []string{srv.URL + "/slow.bin"},
		DownloadOptions{Timeout: 30 * time.Millisecond, FilesizeLimit: 1 << 20})

	require.Len(t, results, 1)
	assert.Nil(t, results[0].Blob)
}

func TestDownload_SpoilerFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), "test-agent", testLogger())
	results := d.Download(context.Background(), []string{srv.URL + "/pic.png"},
		DownloadOptions{Timeout: 5 * time.Second, FilesizeLimit: 1 << 20, Spoiler: true})

	require.Len(t, results, 1)
	assert.True(t, results[0].Spoiler)
}

func TestMediaFilename(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		want        string
	}{
		{
			name:        "extension from content type wins",
			url:         "https://cdn.example/path/photo.bin",
			contentType: "image/jpeg",
			want:        "photo.jpeg",
		},
		{
			name:        "no content type keeps url name",
			url:         "https://cdn.example/clip.mp4",
			contentType: "",
			want:        "clip.mp4",
		},
		{
			name:        "bare path gets a stem",
			url:         "https://cdn.example/",
			contentType: "video/mp4",
			want:        "media.mp4",
		},
		{
			name:        "query string ignored",
			url:         "https://cdn.example/anim.gif?f=anim.gif",
			contentType: "image/gif",
			want:        "anim.gif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mediaFilename(tt.url, tt.contentType))
		})
	}
}
