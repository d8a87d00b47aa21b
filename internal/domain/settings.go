package domain

// DefaultDeleteEmoji is the reaction offered on fixed messages for removal
// by the original author.
const DefaultDeleteEmoji = "❌"

// GuildSettings holds the per-guild mutable configuration. Stored as JSON in
// the repository; new fields are additive only, so old stored blobs decode
// cleanly and pick up zero values that ApplyDefaults then fills in.
type GuildSettings struct {
	ID int64 `json:"id"`

	// Lang overrides the guild's preferred locale when non-empty.
	Lang string `json:"lang,omitempty"`

	DisableFixChannels      []int64 `json:"disable_fix_channels,omitempty"`
	ExtractMediaChannels    []int64 `json:"extract_media_channels,omitempty"`
	ShowPostContentChannels []int64 `json:"show_post_content_channels,omitempty"`
	DisableImageSpoilers    []int64 `json:"disable_image_spoilers,omitempty"`

	DisabledDomains []string `json:"disabled_domains,omitempty"`

	// FixMethodOverrides maps domain id to the guild's chosen fix method id.
	FixMethodOverrides map[string]string `json:"fix_method_overrides,omitempty"`

	DisableWebhookReply   bool `json:"disable_webhook_reply,omitempty"`
	DisableDeleteReaction bool `json:"disable_delete_reaction,omitempty"`
	ShowOriginalLinkBtn   bool `json:"show_original_link_btn,omitempty"`

	DeleteMsgEmoji string `json:"delete_msg_emoji,omitempty"`

	// FunnelTargetChannel redirects fixed messages to a single channel when
	// non-zero.
	FunnelTargetChannel int64 `json:"funnel_target_channel,omitempty"`

	WhitelistRoleIDs []int64 `json:"whitelist_role_ids,omitempty"`

	TranslateTargetLang string `json:"translate_target_lang,omitempty"`

	// FilesizeLimit caps media downloads in bytes. Zero means "use the
	// guild's boost-tier upload limit".
	FilesizeLimit int64 `json:"filesize_limit,omitempty"`
}

// NewGuildSettings returns the default settings for a guild.
func NewGuildSettings(guildID int64) *GuildSettings {
	s := &GuildSettings{ID: guildID}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills fields that must never be empty. Called after decoding
// stored blobs so additive schema changes need no migration step.
func (s *GuildSettings) ApplyDefaults() {
	if s.DeleteMsgEmoji == "" {
		s.DeleteMsgEmoji = DefaultDeleteEmoji
	}
	if s.FixMethodOverrides == nil {
		s.FixMethodOverrides = make(map[string]string)
	}
}

func (s *GuildSettings) FixDisabled(channelID int64) bool {
	return containsInt64(s.DisableFixChannels, channelID)
}

func (s *GuildSettings) ExtractEnabled(channelID int64) bool {
	return containsInt64(s.ExtractMediaChannels, channelID)
}

func (s *GuildSettings) ShowPostContent(channelID int64) bool {
	return containsInt64(s.ShowPostContentChannels, channelID)
}

func (s *GuildSettings) SpoilersDisabled(channelID int64) bool {
	return containsInt64(s.DisableImageSpoilers, channelID)
}

func (s *GuildSettings) DomainDisabled(domainID string) bool {
	return contains(s.DisabledDomains, domainID)
}

// MethodOverride returns the guild's chosen fix method id for a domain, or
// empty when the default applies.
func (s *GuildSettings) MethodOverride(domainID string) string {
	if s.FixMethodOverrides == nil {
		return ""
	}
	return s.FixMethodOverrides[domainID]
}

// ClearMethodOverride drops a stored override, used to self-heal references
// to fix methods that no longer exist.
func (s *GuildSettings) ClearMethodOverride(domainID string) {
	if s.FixMethodOverrides != nil {
		delete(s.FixMethodOverrides, domainID)
	}
}

// RoleAllowed reports whether a member with the given roles passes the
// whitelist. An empty whitelist allows everyone.
func (s *GuildSettings) RoleAllowed(roleIDs []int64) bool {
	if len(s.WhitelistRoleIDs) == 0 {
		return true
	}
	for _, id := range roleIDs {
		if containsInt64(s.WhitelistRoleIDs, id) {
			return true
		}
	}
	return false
}

func containsInt64(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
