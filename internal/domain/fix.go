package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// Domain describes one supported external platform whose links can be fixed.
type Domain struct {
	// ID is the stable identifier used in guild settings (disabled domains,
	// fix-method overrides). It never changes once shipped.
	ID          string
	DisplayName string

	// Websites are the URL shapes that belong to this domain. A URL matches
	// the domain if any of them match.
	Websites []Website

	// FixMethods may be empty for extraction-only hosts (e.g. file hosts
	// with no embed proxy).
	FixMethods []FixMethod

	// NSFWCheck marks hosts whose posts must be checked for adult tags
	// before fixing in a non-NSFW channel.
	NSFWCheck bool

	// Extractable marks domains that have a post-info fetcher registered.
	Extractable bool
}

// Website is a single URL pattern belonging to a Domain. SkipMethodIDs lets a
// sub-pattern (e.g. a share-link variant) veto fix methods that cannot
// resolve that particular URL shape.
type Website struct {
	Pattern       *regexp.Regexp
	SkipMethodIDs map[string]bool
}

// FixMethod is one third-party proxy that produces a better embed.
type FixMethod struct {
	ID      string
	Name    string
	Rules   []TransformRule
	HasAds  bool
	Default bool
}

// TransformRule rewrites a normalized URL. Rules are applied in order; a rule
// that does not apply returns its input unchanged.
type TransformRule interface {
	Apply(normalized string) string
}

// ReplaceRule swaps the hostname, preserving path and query, when the URL's
// host equals or is a subdomain of OldDomain.
type ReplaceRule struct {
	OldDomain string
	NewDomain string
}

func (r ReplaceRule) Apply(normalized string) string {
	return ReplaceHost(normalized, r.OldDomain, r.NewDomain)
}

// AppendRule wraps the original URL as a query parameter on a proxy host.
type AppendRule struct {
	ProxyDomain string
}

func (r AppendRule) Apply(normalized string) string {
	parsed, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}

	// Instagram share-reel links redirect server side, and the proxy cannot
	// follow a redirect it only sees as a query parameter. For those the
	// original path is grafted onto the proxy host instead.
	if HostMatches(parsed.Host, "instagram.com") && strings.HasPrefix(parsed.Path, "/share/") {
		return "https://" + r.ProxyDomain + parsed.Path
	}

	return "https://" + r.ProxyDomain + "?url=" + url.QueryEscape(normalized)
}

// Match reports whether the URL belongs to this domain and, if so, which
// website pattern matched it.
func (d *Domain) Match(normalized string) (*Website, bool) {
	for i := range d.Websites {
		if d.Websites[i].Pattern.MatchString(normalized) {
			return &d.Websites[i], true
		}
	}
	return nil, false
}

// DefaultMethod returns the domain's default fix method, or nil for
// extraction-only domains.
func (d *Domain) DefaultMethod() *FixMethod {
	for i := range d.FixMethods {
		if d.FixMethods[i].Default {
			return &d.FixMethods[i]
		}
	}
	return nil
}

// Method looks up a fix method by id.
func (d *Domain) Method(id string) *FixMethod {
	for i := range d.FixMethods {
		if d.FixMethods[i].ID == id {
			return &d.FixMethods[i]
		}
	}
	return nil
}

// CleanURL strips tracking query parameters and the fragment, and removes a
// leading "www." label from the host. Malformed input is returned unchanged.
func CleanURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(parsed.Host, "www.")
	return parsed.String()
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// DomainInURL reports whether the URL's host equals or is a subdomain of
// the given domain.
func DomainInURL(rawURL, domain string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return HostMatches(parsed.Host, domain)
}

// ReplaceHost swaps the URL's hostname for newDomain when it equals or is a
// subdomain of oldDomain, preserving scheme, path and query.
func ReplaceHost(rawURL, oldDomain, newDomain string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if !HostMatches(parsed.Host, oldDomain) {
		return rawURL
	}
	parsed.Host = newDomain
	return parsed.String()
}
