package bot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embedfix/internal/domain"
	"embedfix/internal/fixer"
	"embedfix/internal/translator"
)

// fakeRepo serves one in-memory settings snapshot.
type fakeRepo struct {
	settings *domain.GuildSettings
}

func (r *fakeRepo) GetOrCreate(_ context.Context, guildID int64) (*domain.GuildSettings, error) {
	if r.settings == nil {
		r.settings = domain.NewGuildSettings(guildID)
	}
	return r.settings, nil
}

func (r *fakeRepo) Save(_ context.Context, settings *domain.GuildSettings) error {
	r.settings = settings
	return nil
}

func (r *fakeRepo) Reset(_ context.Context, _ int64) error {
	r.settings = nil
	return nil
}

func (r *fakeRepo) Close() error { return nil }

func newTestHandler(f *fakeSender, settings *domain.GuildSettings) *Handler {
	return &Handler{
		s:        f,
		repo:     &fakeRepo{settings: settings},
		resolver: fixer.NewResolver(nil, nil, testLogger()),
		tr:       translator.New(testLogger()),
		log:      testLogger(),
	}
}

func TestFindFixes_RewritesInPlace(t *testing.T) {
	h := &Handler{
		resolver: fixer.NewResolver(nil, nil, testLogger()),
		log:      testLogger(),
	}
	settings := domain.NewGuildSettings(1)

	msg := &discordgo.Message{
		Content: "check this https://twitter.com/user/status/123?s=20 and this https://example.com/other",
	}
	result := h.findFixes(context.Background(), msg, settings, 5, false)

	assert.True(t, result.found)
	assert.Equal(t, "check this https://fxtwitter.com/user/status/123 and this https://example.com/other", result.content)
}

func TestFindFixes_NothingToFix(t *testing.T) {
	h := &Handler{
		resolver: fixer.NewResolver(nil, nil, testLogger()),
		log:      testLogger(),
	}
	settings := domain.NewGuildSettings(1)

	msg := &discordgo.Message{Content: "no links here, just $https://twitter.com/u/status/1 escaped"}
	result := h.findFixes(context.Background(), msg, settings, 5, false)

	assert.False(t, result.found)
}

func TestFindFixes_MultipleLinks(t *testing.T) {
	h := &Handler{
		resolver: fixer.NewResolver(nil, nil, testLogger()),
		log:      testLogger(),
	}
	settings := domain.NewGuildSettings(1)

	msg := &discordgo.Message{
		Content: "https://reddit.com/r/golang/comments/abc hi https://bsky.app/profile/a.bsky.social/post/xyz",
	}
	result := h.findFixes(context.Background(), msg, settings, 5, false)

	require.True(t, result.found)
	assert.Contains(t, result.content, "https://rxddit.com/r/golang/comments/abc")
	assert.Contains(t, result.content, "https://bskyx.app/profile/a.bsky.social/post/xyz")
}

func TestProcess_InteractionWithNothingToFixStillResolves(t *testing.T) {
	f := &fakeSender{}
	h := newTestHandler(f, nil)

	msg := &discordgo.Message{
		GuildID:   "1",
		ChannelID: "5",
		Author:    &discordgo.User{ID: "9", Username: "alice"},
		Content:   "just words, no links",
	}
	interaction := &discordgo.Interaction{ID: "int-1", GuildID: "1"}

	require.NoError(t, h.process(context.Background(), msg, interaction))

	// A deferred interaction must never be left in the loading state.
	require.Len(t, f.followups, 1)
	assert.Equal(t, "no_fix_found", f.followups[0].Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, f.followups[0].Flags)
}

func TestProcess_GatewayPathWithNothingToFixStaysSilent(t *testing.T) {
	f := &fakeSender{}
	h := newTestHandler(f, nil)

	msg := &discordgo.Message{
		GuildID:   "1",
		ChannelID: "5",
		Author:    &discordgo.User{ID: "9", Username: "alice"},
		Content:   "just words, no links",
	}

	require.NoError(t, h.process(context.Background(), msg, nil))
	assert.Empty(t, f.followups)
	assert.Empty(t, f.sent)
}

func TestProcess_InteractionUsesInvokerRoles(t *testing.T) {
	settings := domain.NewGuildSettings(1)
	settings.WhitelistRoleIDs = []int64{10}

	msg := &discordgo.Message{
		GuildID:   "1",
		ChannelID: "5",
		Author:    &discordgo.User{ID: "9", Username: "alice"},
		Content:   "https://twitter.com/user/status/123",
	}

	// The resolved target message carries no member; the invoker's roles
	// must decide the whitelist.
	f := &fakeSender{}
	h := newTestHandler(f, settings)
	h.dispatcher = NewDispatcher(f, h.tr, "EmbedFix", "", testLogger())

	allowed := &discordgo.Interaction{ID: "int-1", GuildID: "1", Member: &discordgo.Member{Roles: []string{"10"}}}
	require.NoError(t, h.process(context.Background(), msg, allowed))
	require.Len(t, f.followups, 1)
	assert.Contains(t, f.followups[0].Content, "https://fxtwitter.com/user/status/123")

	f = &fakeSender{}
	h = newTestHandler(f, settings)
	h.dispatcher = NewDispatcher(f, h.tr, "EmbedFix", "", testLogger())

	denied := &discordgo.Interaction{ID: "int-2", GuildID: "1", Member: &discordgo.Member{Roles: []string{"30"}}}
	require.NoError(t, h.process(context.Background(), msg, denied))
	require.Len(t, f.followups, 1)
	assert.Equal(t, "no_fix_found", f.followups[0].Content)
}

func TestProcess_BeforeReadyFailsInsteadOfPanicking(t *testing.T) {
	f := &fakeSender{}
	h := newTestHandler(f, nil)

	msg := &discordgo.Message{
		GuildID:   "1",
		ChannelID: "5",
		Author:    &discordgo.User{ID: "9", Username: "alice"},
		Content:   "https://twitter.com/user/status/123",
	}

	// No Ready has been seen yet, so there is no dispatcher to send with.
	err := h.process(context.Background(), msg, nil)
	assert.Error(t, err)
	assert.Empty(t, f.sent)
}

func TestTierFilesizeLimit(t *testing.T) {
	assert.Equal(t, int64(filesizeLimitDefault), tierFilesizeLimit(discordgo.PremiumTierNone))
	assert.Equal(t, int64(filesizeLimitDefault), tierFilesizeLimit(discordgo.PremiumTier1))
	assert.Equal(t, int64(filesizeLimitTier2), tierFilesizeLimit(discordgo.PremiumTier2))
	assert.Equal(t, int64(filesizeLimitTier3), tierFilesizeLimit(discordgo.PremiumTier3))
}

func TestMemberRoleIDs(t *testing.T) {
	assert.Nil(t, memberRoleIDs(nil))

	ids := memberRoleIDs(&discordgo.Member{Roles: []string{"10", "20", "junk"}})
	assert.Equal(t, []int64{10, 20}, ids)
}

func TestJumpURL(t *testing.T) {
	assert.Equal(t, "https://discord.com/channels/1/2/3", jumpURL("1", "2", "3"))
}
