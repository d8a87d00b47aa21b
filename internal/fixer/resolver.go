// Package fixer decides, per URL, whether and how a message link gets fixed.
package fixer

import (
	"context"

	"github.com/sirupsen/logrus"

	"embedfix/internal/domain"
)

// Action is the outcome kind of resolving one URL.
type Action int

const (
	// NoMatch leaves the URL untouched.
	NoMatch Action = iota
	// Rewrite replaces the URL with NewURL.
	Rewrite
	// ExtractMedia hands the URL to the post-info fetcher for DomainID.
	ExtractMedia
)

// Resolution is the decision for one extracted URL.
type Resolution struct {
	Action   Action
	DomainID string

	// Cleaned is the normalized URL, used as the sauce link.
	Cleaned string

	// NewURL is set for Rewrite.
	NewURL string

	// WithBanner asks the dispatcher to prepend the localized ad-method
	// recommendation line.
	WithBanner bool
}

// NSFWCheckFunc fetches minimal metadata and reports whether the post is
// tagged adult. Implementations must fail open: a network error means
// "not adult" so legitimate content is never silently dropped.
type NSFWCheckFunc func(ctx context.Context, domainID, url string) bool

// StaleOverrideFunc is notified when a guild's stored fix-method override
// references a method id that no longer exists, so the store can self-heal.
type StaleOverrideFunc func(guildID int64, domainID string)

// Resolver maps a URL plus guild settings to an action. It is stateless
// apart from the read-only domain registry; output is deterministic for a
// given settings snapshot.
type Resolver struct {
	nsfw            NSFWCheckFunc
	onStaleOverride StaleOverrideFunc
	log             logrus.FieldLogger
}

func NewResolver(nsfw NSFWCheckFunc, onStaleOverride StaleOverrideFunc, logger logrus.FieldLogger) *Resolver {
	return &Resolver{
		nsfw:            nsfw,
		onStaleOverride: onStaleOverride,
		log:             logger.WithField("component", "resolver"),
	}
}

// Params carries the per-message context for a resolution.
type Params struct {
	// Settings may be nil for contexts without a guild; defaults then apply.
	Settings *domain.GuildSettings

	// ChannelNSFW marks the origin channel as age restricted.
	ChannelNSFW bool

	// AllowExtract is set when the channel is configured for media
	// extraction. The caller re-resolves with it unset when extraction
	// yields zero media, so a fixable URL never stays unfixed.
	AllowExtract bool
}

// Resolve applies the decision algorithm to one extracted URL. Only the first
// matching domain is applied; a URL is never rewritten twice, because proxy
// hostnames do not match any registry pattern.
func (r *Resolver) Resolve(ctx context.Context, u domain.ExtractedURL, p Params) Resolution {
	cleaned := domain.CleanURL(u.Raw)

	var disabled []string
	if p.Settings != nil {
		disabled = p.Settings.DisabledDomains
	}

	d, website := domain.FindDomain(cleaned, disabled)
	if d == nil {
		return Resolution{Action: NoMatch}
	}

	if d.NSFWCheck && !p.ChannelNSFW && r.nsfw != nil && r.nsfw(ctx, d.ID, cleaned) {
		// Adult post in a non-adult channel: skip silently, leak nothing.
		return Resolution{Action: NoMatch}
	}

	if p.AllowExtract && d.Extractable {
		return Resolution{Action: ExtractMedia, DomainID: d.ID, Cleaned: cleaned}
	}

	method := r.effectiveMethod(d, p.Settings)
	if method == nil {
		return Resolution{Action: NoMatch}
	}

	if website.SkipMethodIDs[method.ID] {
		// The sub-pattern vetoes the chosen method; do not cascade to a
		// different one.
		return Resolution{Action: NoMatch}
	}

	newURL := cleaned
	for _, rule := range method.Rules {
		newURL = rule.Apply(newURL)
	}

	withBanner := method.HasAds && (p.Settings == nil || !p.Settings.ShowOriginalLinkBtn)

	return Resolution{
		Action:     Rewrite,
		DomainID:   d.ID,
		Cleaned:    cleaned,
		NewURL:     newURL,
		WithBanner: withBanner,
	}
}

// effectiveMethod resolves guild override > domain default. A stale override
// (method id gone after a registry change) logs, falls back to the default
// and asynchronously heals the stored value.
func (r *Resolver) effectiveMethod(d *domain.Domain, settings *domain.GuildSettings) *domain.FixMethod {
	if settings == nil {
		return d.DefaultMethod()
	}

	overrideID := settings.MethodOverride(d.ID)
	if overrideID == "" {
		return d.DefaultMethod()
	}

	method := d.Method(overrideID)
	if method == nil {
		r.log.WithFields(logrus.Fields{
			"guild_id":  settings.ID,
			"domain_id": d.ID,
			"method_id": overrideID,
		}).Warn("Stale fix-method override, falling back to default")
		if r.onStaleOverride != nil {
			go r.onStaleOverride(settings.ID, d.ID)
		}
		return d.DefaultMethod()
	}

	return method
}
