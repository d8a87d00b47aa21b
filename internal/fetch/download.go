package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"embedfix/internal/domain"
)

// DownloadOptions bounds one batch of media downloads.
type DownloadOptions struct {
	// Timeout is the hard per-item ceiling. On expiry the download is
	// abandoned and treated as a failure; it is never retried.
	Timeout time.Duration

	// FilesizeLimit is the per-item byte ceiling.
	FilesizeLimit int64

	// Spoiler marks the resulting attachments as spoilered.
	Spoiler bool
}

// Downloader fetches media concurrently with independent per-item bounds.
type Downloader struct {
	http      *http.Client
	userAgent string
	log       logrus.FieldLogger
}

func NewDownloader(httpClient *http.Client, userAgent string, logger logrus.FieldLogger) *Downloader {
	return &Downloader{
		http:      httpClient,
		userAgent: userAgent,
		log:       logger.WithField("component", "downloader"),
	}
}

// Download fans out over mediaURLs and fans in by index, so the output order
// always equals the input order. Items that fail, time out, return non-200 or
// exceed the size ceiling come back with a nil Blob; the caller degrades them
// to bare links instead of attachments.
func (d *Downloader) Download(ctx context.Context, mediaURLs []string, opts DownloadOptions) []domain.DownloadedMedia {
	results := make([]domain.DownloadedMedia, len(mediaURLs))

	g, ctx := errgroup.WithContext(ctx)
	for i, mediaURL := range mediaURLs {
		results[i] = domain.DownloadedMedia{SourceURL: mediaURL, Spoiler: opts.Spoiler}

		g.Go(func() error {
			blob, filename, err := d.downloadOne(ctx, mediaURL, opts)
			if err != nil {
				d.log.WithError(err).WithField("url", mediaURL).Warn("Media download failed")
				return nil
			}
			results[i].Blob = blob
			results[i].Filename = filename
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Downloader) downloadOne(ctx context.Context, mediaURL string, opts DownloadOptions) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Abort before reading when the server declares an oversized body.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > opts.FilesizeLimit {
			return nil, "", fmt.Errorf("content length %d exceeds limit %d", size, opts.FilesizeLimit)
		}
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, opts.FilesizeLimit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(blob)) > opts.FilesizeLimit {
		return nil, "", fmt.Errorf("body exceeds limit %d", opts.FilesizeLimit)
	}

	return blob, mediaFilename(mediaURL, resp.Header.Get("Content-Type")), nil
}

// mediaFilename derives a filename from the URL's last path segment and the
// response content type.
func mediaFilename(mediaURL, contentType string) string {
	base := mediaURL
	if parsed, err := url.Parse(mediaURL); err == nil {
		base = parsed.Path
	}
	base = path.Base(base)
	if base == "." || base == "/" || base == "" {
		base = "media"
	}

	if contentType == "" {
		return base
	}

	stem := base
	if dot := strings.IndexByte(base, '.'); dot > 0 {
		stem = base[:dot]
	}
	ext := contentType
	if slash := strings.LastIndexByte(contentType, '/'); slash >= 0 {
		ext = contentType[slash+1:]
	}
	return stem + "." + ext
}
