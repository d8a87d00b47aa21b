package domain

import "regexp"

// Registry is the static table of supported domains. It is read-only after
// startup; declaration order decides match priority, and only the first
// matching domain is ever applied to a URL.
//
// The URL patterns match original hosts only, never proxy hosts, so an
// already-fixed URL can never match again.
var Registry = []Domain{
	{
		ID:          "twitter",
		DisplayName: "Twitter / X",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://twitter\.com/[a-zA-Z0-9_]+/status/\d+`)},
			{Pattern: regexp.MustCompile(`^https?://x\.com/[a-zA-Z0-9_]+/status/\d+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:   "fxtwitter",
				Name: "FxTwitter",
				Rules: []TransformRule{
					ReplaceRule{OldDomain: "twitter.com", NewDomain: "fxtwitter.com"},
					ReplaceRule{OldDomain: "x.com", NewDomain: "fixupx.com"},
				},
				Default: true,
			},
			{
				ID:   "vxtwitter",
				Name: "vxTwitter",
				Rules: []TransformRule{
					ReplaceRule{OldDomain: "twitter.com", NewDomain: "vxtwitter.com"},
					ReplaceRule{OldDomain: "x.com", NewDomain: "fixvx.com"},
				},
			},
		},
		Extractable: true,
	},
	{
		ID:          "pixiv",
		DisplayName: "Pixiv",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://pixiv\.net(/[a-zA-Z]+)?/artworks/\d+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:      "phixiv",
				Name:    "Phixiv",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "pixiv.net", NewDomain: "phixiv.net"}},
				Default: true,
			},
		},
		NSFWCheck:   true,
		Extractable: true,
	},
	{
		ID:          "tiktok",
		DisplayName: "TikTok",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://tiktok\.com/@[\w.]+/video/\d+`)},
			// Short share links redirect server side; tnktok cannot resolve them.
			{
				Pattern:       regexp.MustCompile(`^https?://tiktok\.com/t/\w+`),
				SkipMethodIDs: map[string]bool{"tnktok": true},
			},
		},
		FixMethods: []FixMethod{
			{
				ID:      "tiktxk",
				Name:    "Tiktxk",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "tiktok.com", NewDomain: "tiktxk.com"}},
				Default: true,
			},
			{
				ID:    "tnktok",
				Name:  "fxTikTok",
				Rules: []TransformRule{ReplaceRule{OldDomain: "tiktok.com", NewDomain: "tnktok.com"}},
			},
		},
	},
	{
		ID:          "reddit",
		DisplayName: "Reddit",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://(old\.)?reddit\.com/r/\w+/comments/\w+`)},
			// /s/ share links are opaque redirects that vxreddit cannot follow.
			{
				Pattern:       regexp.MustCompile(`^https?://reddit\.com/r/\w+/s/\w+`),
				SkipMethodIDs: map[string]bool{"vxreddit": true},
			},
		},
		FixMethods: []FixMethod{
			{
				ID:      "rxddit",
				Name:    "rxddit",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "reddit.com", NewDomain: "rxddit.com"}},
				Default: true,
			},
			{
				ID:    "vxreddit",
				Name:  "vxReddit",
				Rules: []TransformRule{ReplaceRule{OldDomain: "reddit.com", NewDomain: "vxreddit.com"}},
			},
		},
	},
	{
		ID:          "instagram",
		DisplayName: "Instagram",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://instagram\.com/(p|reels?)/[\w-]+`)},
			{Pattern: regexp.MustCompile(`^https?://instagram\.com/share/(reel/)?[\w-]+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:      "kkinstagram",
				Name:    "KKInstagram",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "instagram.com", NewDomain: "kkinstagram.com"}},
				Default: true,
			},
			{
				ID:     "ddinstagram",
				Name:   "InstaFix",
				Rules:  []TransformRule{ReplaceRule{OldDomain: "instagram.com", NewDomain: "ddinstagram.com"}},
				HasAds: true,
			},
			{
				ID:    "embedez",
				Name:  "EmbedEZ",
				Rules: []TransformRule{AppendRule{ProxyDomain: "embedez.com"}},
			},
		},
	},
	{
		ID:          "furaffinity",
		DisplayName: "Fur Affinity",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://furaffinity\.net/view/\d+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:      "xfuraffinity",
				Name:    "xfuraffinity",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "furaffinity.net", NewDomain: "xfuraffinity.net"}},
				Default: true,
			},
		},
	},
	{
		ID:          "bluesky",
		DisplayName: "Bluesky",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://bsky\.app/profile/[^/\s]+/post/[\w-]+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:      "bskyx",
				Name:    "VixBluesky",
				Rules:   []TransformRule{ReplaceRule{OldDomain: "bsky.app", NewDomain: "bskyx.app"}},
				Default: true,
			},
			{
				ID:    "fxbsky",
				Name:  "fxbsky",
				Rules: []TransformRule{ReplaceRule{OldDomain: "bsky.app", NewDomain: "fxbsky.app"}},
			},
		},
		Extractable: true,
	},
	{
		ID:          "threads",
		DisplayName: "Threads",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://threads\.(net|com)/@[^/\s]+/post/[\w-]+`)},
		},
		FixMethods: []FixMethod{
			{
				ID:   "fixthreads",
				Name: "fixthreads",
				Rules: []TransformRule{
					ReplaceRule{OldDomain: "threads.net", NewDomain: "fixthreads.net"},
					ReplaceRule{OldDomain: "threads.com", NewDomain: "fixthreads.net"},
				},
				Default: true,
			},
		},
	},
	{
		ID:          "kemono",
		DisplayName: "Kemono",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://kemono\.su/\w+/user/\d+/post/\d+`)},
		},
		Extractable: true,
	},
	{
		ID:          "iwara",
		DisplayName: "Iwara",
		Websites: []Website{
			{Pattern: regexp.MustCompile(`^https?://iwara\.tv/video/[a-zA-Z0-9]+`)},
		},
		Extractable: true,
	},
}

// FindDomain scans the registry in declaration order and returns the first
// domain whose website pattern matches the normalized URL, skipping disabled
// domain ids. Returns nils when nothing matches.
func FindDomain(normalized string, disabled []string) (*Domain, *Website) {
	for i := range Registry {
		d := &Registry[i]
		if contains(disabled, d.ID) {
			continue
		}
		if w, ok := d.Match(normalized); ok {
			return d, w
		}
	}
	return nil, nil
}

// GetDomain looks a domain up by id.
func GetDomain(id string) *Domain {
	for i := range Registry {
		if Registry[i].ID == id {
			return &Registry[i]
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
