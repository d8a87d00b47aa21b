package bot

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// webhookSuffix is appended to the impersonated display name so fixed
// messages can be told apart from real member messages.
const webhookSuffix = " (Embed Fixer)"

// memberSearchLimit bounds the member lookup when resolving an impersonated
// display name back to a guild member.
const memberSearchLimit = 25

// isImpersonated reports whether a message was sent through the bot's
// impersonating webhook.
func isImpersonated(msg *discordgo.Message) bool {
	return msg != nil && msg.WebhookID != "" && msg.Author != nil &&
		strings.HasSuffix(msg.Author.Username, webhookSuffix)
}

// resolveOriginalAuthor maps a webhook-impersonated message back to the guild
// member it was sent on behalf of. The display-name suffix is stripped and
// current members are searched for an exact display-name match; an ambiguous
// or absent result returns nil and callers degrade to showing the raw name.
func resolveOriginalAuthor(s sender, guildID string, msg *discordgo.Message) *discordgo.Member {
	if msg == nil || msg.Author == nil {
		return nil
	}

	name := strings.TrimSuffix(msg.Author.Username, webhookSuffix)
	members, err := s.GuildMembersSearch(guildID, name, memberSearchLimit)
	if err != nil {
		return nil
	}

	var match *discordgo.Member
	for _, member := range members {
		if memberDisplayName(member) != name {
			continue
		}
		if match != nil {
			// Two members share the display name; impersonation cannot be
			// attributed safely.
			return nil
		}
		match = member
	}
	return match
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// displayName is the name shown for a message author in a guild.
func displayName(author *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if author.GlobalName != "" {
		return author.GlobalName
	}
	return author.Username
}
