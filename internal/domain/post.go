package domain

// ExtractedURL is one URL found in a message. Order within a message is
// significant: the first source URL becomes the canonical sauce link.
type ExtractedURL struct {
	Raw     string
	Spoiler bool
}

// PostInfo is the normalized result of a per-domain metadata fetch. MediaURLs
// ordering is preserved end to end into the final attachment order.
type PostInfo struct {
	MediaURLs []string
	Content   string
	AuthorMD  string
	Tags      []string
}

// DownloadedMedia is one fetched media item. Blob is nil when the download
// failed, timed out or exceeded the filesize ceiling; the pipeline then posts
// the bare URL instead of an attachment.
type DownloadedMedia struct {
	SourceURL string
	Blob      []byte
	Filename  string
	Spoiler   bool
}

// Downloaded reports whether the item carries usable bytes.
func (m *DownloadedMedia) Downloaded() bool {
	return len(m.Blob) > 0
}
