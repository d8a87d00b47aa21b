package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// newTestClient spins up a local API server and returns a client plus the
// server's base URL and bare host for pointing the API fields at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return NewClient(srv.Client(), "test-agent", testLogger()), srv.URL, u.Host
}

func TestPixiv(t *testing.T) {
	var gotURI string
	c, baseURL, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(`{
			"tags": ["#fanart", "#R-18"],
			"image_proxy_urls": ["https://img.example/1.jpg", "https://img.example/2.jpg"],
			"description": "hello",
			"author_name": "artist",
			"author_id": "99"
		}`))
	})
	c.pixivAPI = baseURL + "/api/info"

	info, err := c.Pixiv(context.Background(), "https://pixiv.net/artworks/12345")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "/api/info?id=12345", gotURI)
	assert.Equal(t, []string{"https://img.example/1.jpg", "https://img.example/2.jpg"}, info.MediaURLs)
	assert.Equal(t, "hello", info.Content)
	assert.Equal(t, "[artist](https://www.pixiv.net/users/99)", info.AuthorMD)
	assert.Contains(t, info.Tags, "#R-18")
}

func TestPixiv_NoImagesMeansNoPost(t *testing.T) {
	c, baseURL, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tags": [], "image_proxy_urls": []}`))
	})
	c.pixivAPI = baseURL + "/api/info"

	info, err := c.Pixiv(context.Background(), "https://pixiv.net/artworks/1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestIsPostNSFW(t *testing.T) {
	c, baseURL, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tags": ["#R-18"], "image_proxy_urls": ["https://img.example/1.jpg"]}`))
	})
	c.pixivAPI = baseURL + "/api/info"

	assert.True(t, c.IsPostNSFW(context.Background(), "pixiv", "https://pixiv.net/artworks/1"))
	assert.False(t, c.IsPostNSFW(context.Background(), "twitter", "https://twitter.com/u/status/1"))
}

func TestIsPostNSFW_FailsOpen(t *testing.T) {
	c, baseURL, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.pixivAPI = baseURL + "/api/info"

	assert.False(t, c.IsPostNSFW(context.Background(), "pixiv", "https://pixiv.net/artworks/1"))
}

func TestTwitter(t *testing.T) {
	var gotPath string
	c, _, host := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"tweet": {
				"text": "tweet text",
				"author": {"name": "Someone", "screen_name": "someone"},
				"media": {"all": [
					{"type": "photo", "url": "https://pbs.example/a.jpg"},
					{"type": "video", "url": "https://video.example/b.mp4"}
				]}
			}
		}`))
	})
	c.twitterHost = host

	info, err := c.Twitter(context.Background(), "http://twitter.com/someone/status/123")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "/someone/status/123", gotPath)
	assert.Equal(t, []string{"https://pbs.example/a.jpg", "https://video.example/b.mp4"}, info.MediaURLs)
	assert.Equal(t, "tweet text", info.Content)
	assert.Equal(t, "Someone (@someone)", info.AuthorMD)
}

func TestTwitter_PhotoIndexNarrowsMedia(t *testing.T) {
	var gotPath string
	c, _, host := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"tweet": {
				"text": "t",
				"author": {"name": "A", "screen_name": "a"},
				"media": {"all": [
					{"type": "photo", "url": "https://pbs.example/1.jpg"},
					{"type": "photo", "url": "https://pbs.example/2.jpg"},
					{"type": "video", "url": "https://video.example/v.mp4"}
				]}
			}
		}`))
	})
	c.twitterHost = host

	info, err := c.Twitter(context.Background(), "http://x.com/a/status/123/photo/2")
	require.NoError(t, err)
	require.NotNil(t, info)

	// The /photo/2 suffix is stripped from the API path and selects the
	// second photo only.
	assert.Equal(t, "/a/status/123", gotPath)
	assert.Equal(t, []string{"https://pbs.example/2.jpg"}, info.MediaURLs)
}

func TestTwitter_NoMediaMeansNoPost(t *testing.T) {
	c, _, host := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tweet": {"text": "text only"}}`))
	})
	c.twitterHost = host

	info, err := c.Twitter(context.Background(), "http://twitter.com/u/status/1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestBluesky(t *testing.T) {
	var gotPath string
	c, _, host := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"posts": [{
				"text": "post text",
				"author": {"displayName": "Name", "handle": "name.bsky.social", "did": "did:plc:xyz"},
				"embed": {
					"cid": "bafy123",
					"images": [{"fullsize": "https://cdn.example/full.jpg"}],
					"external": {"uri": "https://media.tenor.com/x.gif"}
				}
			}]
		}`))
	})
	c.blueskyHost = host

	info, err := c.Bluesky(context.Background(), "http://bsky.app/profile/name.bsky.social/post/abc")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "/profile/name.bsky.social/post/abc/json", gotPath)
	assert.Equal(t, []string{
		"https://cdn.example/full.jpg",
		"https://bsky.social/xrpc/com.atproto.sync.getBlob?cid=bafy123&did=did:plc:xyz",
		"https://media.tenor.com/x.gif",
	}, info.MediaURLs)
	assert.Equal(t, "post text", info.Content)
	assert.Equal(t, "Name (@name.bsky.social)", info.AuthorMD)
}

func TestKemono(t *testing.T) {
	var gotPath string
	c, _, host := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"attachments": [
				{"name": "clip.mp4", "path": "/aa/bb/clip.mp4"},
				{"name": "pic.png", "path": "/cc/dd/pic.png"},
				{"name": "anim.gif", "path": "/ee/ff/anim.gif"},
				{"name": "notes.txt", "path": "/gg/hh/notes.txt"}
			]
		}`))
	})
	c.kemonoHost = host

	info, err := c.Kemono(context.Background(), "http://kemono.su/patreon/user/1/post/2")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "/api/v1/patreon/user/1/post/2", gotPath)
	assert.Equal(t, []string{
		"https://n1." + host + "/data/aa/bb/clip.mp4",
		"https://img." + host + "/thumbnail/data/cc/dd/pic.png",
		"https://n3." + host + "/data/ee/ff/anim.gif?f=anim.gif",
	}, info.MediaURLs, "unsupported attachment types are dropped")
}

func TestIwara(t *testing.T) {
	c := NewClient(http.DefaultClient, "test-agent", testLogger())

	info, err := c.Iwara(context.Background(), "https://iwara.tv/video/aBc123/some-title")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, []string{"https://fxiwara.seria.moe/dl/aBc123/360"}, info.MediaURLs)

	info, err = c.Iwara(context.Background(), "https://iwara.tv/profile/someone")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestGetJSON_NonOKStatus(t *testing.T) {
	c, baseURL, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c.pixivAPI = baseURL + "/api/info"

	_, err := c.Pixiv(context.Background(), "https://pixiv.net/artworks/1")
	assert.Error(t, err)
}
