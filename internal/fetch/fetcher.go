// Package fetch talks to the per-domain third-party metadata APIs and
// downloads media. Every upstream is treated as untrusted and unreliable:
// a failed fetch degrades to "no media, no text", never to a pipeline error.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"embedfix/internal/domain"
)

const pixivR18Tag = "#R-18"

var iwaraVideoID = regexp.MustCompile(`/video/([a-zA-Z0-9]+)`)

// FetchFunc fetches and normalizes the metadata of one post URL. A nil
// result with a nil error means the post has nothing usable.
type FetchFunc func(ctx context.Context, url string) (*domain.PostInfo, error)

// Client calls the domain metadata APIs. API hosts are fields so tests can
// point them at a local server.
type Client struct {
	http      *http.Client
	userAgent string
	log       logrus.FieldLogger

	pixivAPI    string
	twitterHost string
	blueskyHost string
	kemonoHost  string
	iwaraDLHost string
}

func NewClient(httpClient *http.Client, userAgent string, logger logrus.FieldLogger) *Client {
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		log:       logger.WithField("component", "fetcher"),

		pixivAPI:    "https://phixiv.net/api/info",
		twitterHost: "api.fxtwitter.com",
		blueskyHost: "bskx.app",
		kemonoHost:  "kemono.su",
		iwaraDLHost: "fxiwara.seria.moe",
	}
}

// Fetchers returns the capability table mapping domain id to its fetcher.
// New domains register an entry here; the resolver never branches on ids.
func (c *Client) Fetchers() map[string]FetchFunc {
	return map[string]FetchFunc{
		"pixiv":   c.Pixiv,
		"twitter": c.Twitter,
		"bluesky": c.Bluesky,
		"kemono":  c.Kemono,
		"iwara":   c.Iwara,
	}
}

// IsPostNSFW reports whether the post behind the URL is tagged adult. It
// fails open: any fetch error means "not adult", so legitimate content is
// never dropped by an upstream outage.
func (c *Client) IsPostNSFW(ctx context.Context, domainID, url string) bool {
	if domainID != "pixiv" {
		return false
	}
	info, err := c.Pixiv(ctx, url)
	if err != nil || info == nil {
		return false
	}
	for _, tag := range info.Tags {
		if tag == pixivR18Tag {
			return true
		}
	}
	return false
}

type pixivResponse struct {
	Tags           []string `json:"tags"`
	ImageProxyURLs []string `json:"image_proxy_urls"`
	Description    string   `json:"description"`
	AuthorName     string   `json:"author_name"`
	AuthorID       string   `json:"author_id"`
}

// Pixiv fetches artwork info through the phixiv API.
func (c *Client) Pixiv(ctx context.Context, url string) (*domain.PostInfo, error) {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	artworkID := parts[len(parts)-1]

	var data pixivResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s?id=%s", c.pixivAPI, artworkID), &data); err != nil {
		return nil, err
	}
	if len(data.ImageProxyURLs) == 0 {
		return nil, nil
	}

	authorMD := ""
	if data.AuthorName != "" {
		authorMD = fmt.Sprintf("[%s](https://www.pixiv.net/users/%s)", data.AuthorName, data.AuthorID)
	}

	return &domain.PostInfo{
		MediaURLs: data.ImageProxyURLs,
		Content:   data.Description,
		AuthorMD:  authorMD,
		Tags:      data.Tags,
	}, nil
}

type twitterResponse struct {
	Tweet struct {
		Text  string `json:"text"`
		Media *struct {
			All []struct {
				Type string `json:"type"`
				URL  string `json:"url"`
			} `json:"all"`
		} `json:"media"`
		Author *struct {
			Name       string `json:"name"`
			ScreenName string `json:"screen_name"`
		} `json:"author"`
	} `json:"tweet"`
}

// Twitter fetches tweet info through the fxtwitter API. A /photo/N or
// /video/N suffix on the URL narrows the result to that single media item.
func (c *Client) Twitter(ctx context.Context, url string) (*domain.PostInfo, error) {
	apiURL := domain.ReplaceHost(url, "twitter.com", c.twitterHost)
	apiURL = domain.ReplaceHost(apiURL, "x.com", c.twitterHost)

	allowedTypes := map[string]bool{"photo": true, "video": true, "gif": true}
	mediaIndex := -1

	if strings.Contains(apiURL, "/photo/") || strings.Contains(apiURL, "/video/") {
		parts := strings.Split(apiURL, "/")
		if idx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			allowedTypes = map[string]bool{parts[len(parts)-2]: true}
			mediaIndex = idx - 1
			apiURL = strings.Join(parts[:len(parts)-2], "/")
		}
	}

	var data twitterResponse
	if err := c.getJSON(ctx, apiURL, &data); err != nil {
		return nil, err
	}
	if data.Tweet.Media == nil || data.Tweet.Author == nil {
		return nil, nil
	}

	var urls []string
	for _, media := range data.Tweet.Media.All {
		if allowedTypes[media.Type] {
			urls = append(urls, media.URL)
		}
	}
	if mediaIndex >= 0 && mediaIndex < len(urls) {
		urls = urls[mediaIndex : mediaIndex+1]
	}

	return &domain.PostInfo{
		MediaURLs: urls,
		Content:   data.Tweet.Text,
		AuthorMD:  fmt.Sprintf("%s (@%s)", data.Tweet.Author.Name, data.Tweet.Author.ScreenName),
	}, nil
}

type blueskyResponse struct {
	Posts []struct {
		Text  string `json:"text"`
		Embed *struct {
			CID    string `json:"cid"`
			Images []struct {
				Fullsize string `json:"fullsize"`
			} `json:"images"`
			External *struct {
				URI string `json:"uri"`
			} `json:"external"`
		} `json:"embed"`
		Author *struct {
			DisplayName string `json:"displayName"`
			Handle      string `json:"handle"`
			DID         string `json:"did"`
		} `json:"author"`
	} `json:"posts"`
}

// Bluesky fetches post info through the VixBluesky JSON endpoint.
func (c *Client) Bluesky(ctx context.Context, url string) (*domain.PostInfo, error) {
	apiURL := domain.ReplaceHost(url, "bsky.app", c.blueskyHost) + "/json"

	var data blueskyResponse
	if err := c.getJSON(ctx, apiURL, &data); err != nil {
		return nil, err
	}
	if len(data.Posts) == 0 {
		return nil, nil
	}

	post := data.Posts[0]
	if post.Embed == nil || post.Author == nil {
		return nil, nil
	}

	var urls []string
	for _, image := range post.Embed.Images {
		urls = append(urls, image.Fullsize)
	}
	if post.Embed.CID != "" && post.Author.DID != "" {
		urls = append(urls, fmt.Sprintf(
			"https://bsky.social/xrpc/com.atproto.sync.getBlob?cid=%s&did=%s",
			post.Embed.CID, post.Author.DID,
		))
	}
	if post.Embed.External != nil && post.Embed.External.URI != "" {
		urls = append(urls, post.Embed.External.URI)
	}

	return &domain.PostInfo{
		MediaURLs: urls,
		Content:   post.Text,
		AuthorMD:  fmt.Sprintf("%s (@%s)", post.Author.DisplayName, post.Author.Handle),
	}, nil
}

type kemonoResponse struct {
	Attachments []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	} `json:"attachments"`
}

// Kemono maps post attachments to their per-type data hosts.
func (c *Client) Kemono(ctx context.Context, url string) (*domain.PostInfo, error) {
	apiURL := strings.Replace(url, "kemono.su", c.kemonoHost+"/api/v1", 1)

	var data kemonoResponse
	if err := c.getJSON(ctx, apiURL, &data); err != nil {
		return nil, err
	}

	var urls []string
	for _, a := range data.Attachments {
		switch {
		case strings.HasSuffix(a.Name, ".mp4"):
			urls = append(urls, fmt.Sprintf("https://n1.%s/data%s", c.kemonoHost, a.Path))
		case strings.HasSuffix(a.Name, ".jpg"), strings.HasSuffix(a.Name, ".jpeg"), strings.HasSuffix(a.Name, ".png"):
			urls = append(urls, fmt.Sprintf("https://img.%s/thumbnail/data%s", c.kemonoHost, a.Path))
		case strings.HasSuffix(a.Name, ".gif"):
			urls = append(urls, fmt.Sprintf("https://n3.%s/data%s?f=%s", c.kemonoHost, a.Path, a.Name))
		}
	}
	if len(urls) == 0 {
		return nil, nil
	}

	return &domain.PostInfo{MediaURLs: urls}, nil
}

// Iwara builds the fxiwara download URL directly; no metadata call needed.
func (c *Client) Iwara(_ context.Context, url string) (*domain.PostInfo, error) {
	m := iwaraVideoID.FindStringSubmatch(url)
	if m == nil {
		return nil, nil
	}
	return &domain.PostInfo{
		MediaURLs: []string{fmt.Sprintf("https://%s/dl/%s/360", c.iwaraDLHost, m[1])},
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
