package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"embedfix/internal/config"
	"embedfix/internal/domain"
	"embedfix/internal/extract"
	"embedfix/internal/fetch"
	"embedfix/internal/fixer"
	"embedfix/internal/storage"
	"embedfix/internal/translator"
)

// fixMessageCommand is the message context-menu command that fixes a single
// message on demand through the interaction transport.
const fixMessageCommand = "Fix Embeds"

// Upload limits by guild boost tier.
const (
	filesizeLimitDefault = 25 << 20
	filesizeLimitTier2   = 50 << 20
	filesizeLimitTier3   = 100 << 20
)

// Handler holds dependencies for the Discord event handlers.
type Handler struct {
	session    *discordgo.Session
	s          sender
	cfg        config.Config
	repo       storage.Repository
	fetchers   map[string]fetch.FetchFunc
	downloader *fetch.Downloader
	resolver   *fixer.Resolver
	tr         *translator.Translator
	log        logrus.FieldLogger

	// dispatcher needs the bot identity, which the gateway only hands over
	// on Ready; message goroutines read it through getDispatcher.
	mu         sync.RWMutex
	dispatcher *Dispatcher

	ctx context.Context
}

// NewHandler creates the bot handler and registers the gateway handlers.
func NewHandler(
	cfg config.Config,
	repo storage.Repository,
	client *fetch.Client,
	downloader *fetch.Downloader,
	tr *translator.Translator,
	logger logrus.FieldLogger,
) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.WithError(err).Error("Failed to create Discord session")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions

	h := &Handler{
		session:    session,
		s:          session,
		cfg:        cfg,
		repo:       repo,
		fetchers:   client.Fetchers(),
		downloader: downloader,
		tr:         tr,
		log:        log,
		ctx:        context.Background(),
	}
	h.resolver = fixer.NewResolver(client.IsPostNSFW, h.healStaleOverride, logger)

	session.AddHandler(h.onReady)
	session.AddHandler(h.onMessageCreate)
	session.AddHandler(h.onReactionAdd)
	session.AddHandler(h.onGuildCreate)
	session.AddHandler(h.onInteractionCreate)

	log.Info("Discord bot handler initialized")
	return h, nil
}

// Start opens the gateway connection and blocks until the context is
// cancelled.
func (h *Handler) Start(ctx context.Context) error {
	h.ctx = ctx
	if err := h.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	h.log.Info("Gateway connection opened")

	<-ctx.Done()

	h.log.Info("Closing gateway connection...")
	return h.session.Close()
}

func (h *Handler) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	h.mu.Lock()
	if h.dispatcher == nil {
		h.dispatcher = NewDispatcher(h.s, h.tr, s.State.User.Username, s.State.User.AvatarURL(""), h.log)
	}
	h.mu.Unlock()
	h.log.WithField("user", s.State.User.Username).Info("Logged in")

	commands := []*discordgo.ApplicationCommand{
		{Name: fixMessageCommand, Type: discordgo.MessageApplicationCommand},
	}
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", commands); err != nil {
		h.log.WithError(err).Warn("Failed to sync application commands")
	}
}

func (h *Handler) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	guildID, err := strconv.ParseInt(g.ID, 10, 64)
	if err != nil {
		return
	}
	if _, err := h.repo.GetOrCreate(h.ctx, guildID); err != nil {
		h.log.WithError(err).WithField("guild_id", g.ID).Error("Failed to provision guild settings")
	}
}

func (h *Handler) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	// Messages are independent: each runs in its own goroutine with no
	// ordering guarantee between them.
	go func() {
		if err := h.process(h.ctx, m.Message, nil); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"guild_id":   m.GuildID,
				"channel_id": m.ChannelID,
				"message_id": m.ID,
			}).Error("Failed to process message")
		}
	}()
}

func (h *Handler) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != fixMessageCommand {
		return
	}

	target := data.Resolved.Messages[data.TargetID]
	if target == nil || i.GuildID == "" {
		return
	}
	target.GuildID = i.GuildID

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		h.log.WithError(err).Warn("Failed to defer interaction response")
		return
	}

	go func() {
		if err := h.process(h.ctx, target, i.Interaction); err != nil {
			h.log.WithError(err).WithField("guild_id", i.GuildID).Error("Failed to process fix command")
			// A deferred interaction must always resolve or the user stares
			// at "thinking..." forever.
			h.followupNotice(i.Interaction, string(i.Locale), "fix_failed")
		}
	}()
}

// fixResult accumulates the outcome of resolving every URL in one message.
type fixResult struct {
	found       bool
	content     string
	withBanner  bool
	medias      []domain.DownloadedMedia
	sauces      []string
	postContent string
	authorMD    string
}

// process runs the full pipeline for one inbound message: extract URLs,
// resolve fixes, fetch and download media where extraction applies, dispatch,
// and remove or suppress the original.
func (h *Handler) process(ctx context.Context, m *discordgo.Message, interaction *discordgo.Interaction) error {
	guildID, err := strconv.ParseInt(m.GuildID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad guild id %q: %w", m.GuildID, err)
	}
	channelID, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad channel id %q: %w", m.ChannelID, err)
	}

	settings, err := h.repo.GetOrCreate(ctx, guildID)
	if err != nil {
		return err
	}

	lang := h.guildLang(settings, m.GuildID)

	if settings.FixDisabled(channelID) {
		return h.resolveWithoutFix(m, settings, interaction, lang)
	}

	// The whitelist applies to whoever triggered the fix: the message author
	// on the gateway path, the command invoker on the interaction path.
	member := m.Member
	if interaction != nil {
		member = interaction.Member
	}
	if !settings.RoleAllowed(memberRoleIDs(member)) {
		return h.resolveWithoutFix(m, settings, interaction, lang)
	}

	channelNSFW := h.channelNSFW(m.ChannelID)

	result := h.findFixes(ctx, m, settings, channelID, channelNSFW)
	if result.found {
		return h.sendFixes(ctx, m, settings, interaction, lang, result)
	}
	return h.resolveWithoutFix(m, settings, interaction, lang)
}

// resolveWithoutFix ends a run that produced no fixed message. A deferred
// interaction still gets a follow-up so it never hangs in the loading state,
// and a plain reply to a webhook-replaced message gets its chain
// reconstructed.
func (h *Handler) resolveWithoutFix(m *discordgo.Message, settings *domain.GuildSettings, interaction *discordgo.Interaction, lang string) error {
	if interaction != nil {
		h.followupNotice(interaction, lang, "no_fix_found")
		return nil
	}

	if m.MessageReference != nil &&
		m.ReferencedMessage != nil &&
		m.ReferencedMessage.WebhookID != "" &&
		!settings.DisableWebhookReply {
		h.replyToWebhookReference(m, lang)
	}
	return nil
}

// findFixes resolves every extracted URL and collects rewrites, extracted
// media and sauce links. A failed extraction for one URL never aborts the
// others.
func (h *Handler) findFixes(
	ctx context.Context,
	m *discordgo.Message,
	settings *domain.GuildSettings,
	channelID int64,
	channelNSFW bool,
) *fixResult {
	result := &fixResult{content: m.Content}
	extractChannel := settings.ExtractEnabled(channelID)

	for _, u := range extract.URLs(m.Content) {
		res := h.resolver.Resolve(ctx, u, fixer.Params{
			Settings:     settings,
			ChannelNSFW:  channelNSFW,
			AllowExtract: extractChannel,
		})

		if res.Action == fixer.ExtractMedia {
			spoiler := u.Spoiler || (channelNSFW && !settings.SpoilersDisabled(channelID))
			if h.extractInto(ctx, result, res, u, settings, spoiler) {
				continue
			}
			// Extraction found nothing; fall back to rewriting so a
			// fixable URL never stays unfixed.
			res = h.resolver.Resolve(ctx, u, fixer.Params{
				Settings:    settings,
				ChannelNSFW: channelNSFW,
			})
		}

		if res.Action == fixer.Rewrite {
			result.found = true
			result.content = strings.Replace(result.content, u.Raw, res.NewURL, 1)
			if res.WithBanner {
				result.withBanner = true
			}
		}
	}

	// Original attachments ride along with the fixed message.
	if result.found {
		for _, a := range m.Attachments {
			result.medias = append(result.medias, domain.DownloadedMedia{SourceURL: a.URL})
		}
		if len(result.medias) > 0 {
			h.redownloadAttachments(ctx, result, m, settings)
		}
	}

	return result
}

// extractInto fetches post info and downloads its media into the result.
// Returns false when the extraction yielded nothing usable.
func (h *Handler) extractInto(
	ctx context.Context,
	result *fixResult,
	res fixer.Resolution,
	u domain.ExtractedURL,
	settings *domain.GuildSettings,
	spoiler bool,
) bool {
	fetchPost := h.fetchers[res.DomainID]
	if fetchPost == nil {
		return false
	}

	info, err := fetchPost(ctx, res.Cleaned)
	if err != nil {
		h.log.WithError(err).WithField("url", res.Cleaned).Warn("Post info fetch failed")
		return false
	}
	if info == nil || len(info.MediaURLs) == 0 {
		return false
	}

	medias := h.downloader.Download(ctx, info.MediaURLs, fetch.DownloadOptions{
		Timeout:       h.cfg.DownloadTimeout,
		FilesizeLimit: h.filesizeLimit(settings),
		Spoiler:       spoiler,
	})

	result.found = true
	result.medias = append(result.medias, medias...)
	result.postContent = info.Content
	result.authorMD = info.AuthorMD
	result.content = strings.Replace(result.content, u.Raw, "", 1)
	result.sauces = append(result.sauces, res.Cleaned)
	return true
}

// redownloadAttachments fetches the original message's attachments so they
// can be re-uploaded alongside the extracted media.
func (h *Handler) redownloadAttachments(ctx context.Context, result *fixResult, m *discordgo.Message, settings *domain.GuildSettings) {
	start := len(result.medias) - len(m.Attachments)
	urls := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		urls = append(urls, a.URL)
	}

	downloaded := h.downloader.Download(ctx, urls, fetch.DownloadOptions{
		Timeout:       h.cfg.DownloadTimeout,
		FilesizeLimit: h.filesizeLimit(settings),
	})
	copy(result.medias[start:], downloaded)
}

// sendFixes dispatches the fixed message and then removes the original
// (webhook path) or suppresses its preview (reply path). The original is
// only ever touched after a successful dispatch.
func (h *Handler) sendFixes(
	ctx context.Context,
	m *discordgo.Message,
	settings *domain.GuildSettings,
	interaction *discordgo.Interaction,
	lang string,
	result *fixResult,
) error {
	dispatcher := h.getDispatcher()
	if dispatcher == nil {
		return fmt.Errorf("gateway handshake not finished, cannot dispatch yet")
	}

	channelID := m.ChannelID
	if settings.FunnelTargetChannel != 0 {
		channelID = strconv.FormatInt(settings.FunnelTargetChannel, 10)
	}

	channelIDNum, _ := strconv.ParseInt(m.ChannelID, 10, 64)
	req := &DispatchRequest{
		GuildID:               m.GuildID,
		ChannelID:             channelID,
		OriginChannelID:       m.ChannelID,
		Interaction:           interaction,
		OriginalMessageID:     m.ID,
		AuthorName:            displayName(m.Author, m.Member),
		AuthorAvatarURL:       m.Author.AvatarURL(""),
		TTS:                   m.TTS,
		Lang:                  lang,
		Content:               result.content,
		PostContent:           result.postContent,
		AuthorMD:              result.authorMD,
		ShowPostContent:       settings.ShowPostContent(channelIDNum),
		WithBanner:            result.withBanner,
		Medias:                result.medias,
		Sauces:                result.sauces,
		DeleteEmoji:           settings.DeleteMsgEmoji,
		DisableDeleteReaction: settings.DisableDeleteReaction,
	}

	dispatched, err := dispatcher.Dispatch(req)
	if err != nil {
		return err
	}

	// The fixed copy of a reply loses its reply reference; restore the
	// context with a synthetic, non-pinging "replying to" line.
	if m.MessageReference != nil && m.ReferencedMessage != nil && dispatched.Message != nil {
		h.replyingToNotice(dispatched.Message, m.ReferencedMessage, m.GuildID, lang)
	}

	if dispatched.ViaReply {
		// The original survives next to the plain reply; only its preview
		// goes away.
		h.suppressEmbeds(m)
		return nil
	}

	if interaction == nil {
		if err := h.s.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
			if isForbidden(err) {
				h.warnInChannel(m.ChannelID, lang, "no_perms_to_delete_msg")
				return nil
			}
			h.log.WithError(err).WithField("message_id", m.ID).Warn("Failed to delete original message")
		}
	}
	return nil
}

func (h *Handler) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	if r.GuildID == "" {
		return
	}

	go h.handleDeleteReaction(r)
}

// handleDeleteReaction deletes a fixed message when its resolved original
// author, or a member with message management rights, reacts with the
// configured delete emoji.
func (h *Handler) handleDeleteReaction(r *discordgo.MessageReactionAdd) {
	guildID, err := strconv.ParseInt(r.GuildID, 10, 64)
	if err != nil {
		return
	}
	settings, err := h.repo.GetOrCreate(h.ctx, guildID)
	if err != nil || settings.DisableDeleteReaction {
		return
	}
	if r.Emoji.Name != settings.DeleteMsgEmoji {
		return
	}

	msg, err := h.s.ChannelMessage(r.ChannelID, r.MessageID)
	if err != nil || !isImpersonated(msg) {
		return
	}

	lang := h.guildLang(settings, r.GuildID)

	author := resolveOriginalAuthor(h.s, r.GuildID, msg)
	allowed := author != nil && author.User != nil && author.User.ID == r.UserID
	if !allowed {
		perms, err := h.s.UserChannelPermissions(r.UserID, r.ChannelID)
		allowed = err == nil && perms&discordgo.PermissionManageMessages != 0
	}
	if !allowed {
		return
	}

	if err := h.s.ChannelMessageDelete(r.ChannelID, r.MessageID); err != nil {
		h.log.WithError(err).WithField("message_id", r.MessageID).Warn("Failed to delete fixed message")
		h.warnInChannel(r.ChannelID, lang, "no_perms_to_delete_msg")
	}
}

// replyToWebhookReference notifies the original author that someone replied
// to their replaced message, since the platform ping is lost on webhooks.
func (h *Handler) replyToWebhookReference(m *discordgo.Message, lang string) {
	h.replyingToNotice(m, m.ReferencedMessage, m.GuildID, lang)
}

// replyingToNotice posts a localized, non-pinging "replying to X" line under
// anchor, pointing back at ref. The mention target is re-derived across the
// impersonated identity; an unresolvable author degrades to the raw name.
func (h *Handler) replyingToNotice(anchor, ref *discordgo.Message, guildID, lang string) {
	var user string
	if isImpersonated(ref) {
		if member := resolveOriginalAuthor(h.s, guildID, ref); member != nil && member.User != nil {
			user = member.User.Mention()
		} else if ref.Author != nil {
			user = strings.TrimSuffix(ref.Author.Username, webhookSuffix)
		}
	} else if ref.Author != nil {
		user = ref.Author.Mention()
	}
	if user == "" {
		return
	}

	content := h.tr.Get(lang, "replying_to", map[string]string{
		"user": user,
		"url":  jumpURL(guildID, ref.ChannelID, ref.ID),
	})

	_, err := h.s.ChannelMessageSendComplex(anchor.ChannelID, &discordgo.MessageSend{
		Content: content,
		Reference: &discordgo.MessageReference{
			MessageID: anchor.ID,
			ChannelID: anchor.ChannelID,
			GuildID:   guildID,
		},
		Flags:           discordgo.MessageFlagsSuppressNotifications,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		h.log.WithError(err).WithField("channel_id", anchor.ChannelID).Warn("Failed to send replying-to notice")
	}
}

// suppressEmbeds hides the original message's native preview, best effort.
func (h *Handler) suppressEmbeds(m *discordgo.Message) {
	flags := m.Flags | discordgo.MessageFlagsSuppressEmbeds
	_, err := h.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      m.ID,
		Channel: m.ChannelID,
		Flags:   flags,
	})
	if err != nil {
		h.log.WithError(err).WithField("message_id", m.ID).Warn("Failed to suppress original embeds")
	}
}

func (h *Handler) getDispatcher() *Dispatcher {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dispatcher
}

// followupNotice resolves a deferred interaction with a localized ephemeral
// message, best effort.
func (h *Handler) followupNotice(interaction *discordgo.Interaction, lang, key string) {
	_, err := h.s.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{
		Content: h.tr.Get(lang, key, nil),
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		h.log.WithError(err).Warn("Failed to send interaction follow-up")
	}
}

func (h *Handler) warnInChannel(channelID, lang, key string) {
	_, err := h.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: h.tr.Get(lang, key, nil),
	})
	if err != nil {
		h.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to send warning")
	}
}

// healStaleOverride drops a fix-method override that references a method id
// no longer in the registry.
func (h *Handler) healStaleOverride(guildID int64, domainID string) {
	settings, err := h.repo.GetOrCreate(h.ctx, guildID)
	if err != nil {
		return
	}
	settings.ClearMethodOverride(domainID)
	if err := h.repo.Save(h.ctx, settings); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"guild_id":  guildID,
			"domain_id": domainID,
		}).Warn("Failed to heal stale fix-method override")
	}
}

func (h *Handler) guildLang(settings *domain.GuildSettings, guildID string) string {
	if settings.Lang != "" {
		return settings.Lang
	}
	if h.session != nil {
		if guild, err := h.session.State.Guild(guildID); err == nil && guild.PreferredLocale != "" {
			return guild.PreferredLocale
		}
	}
	return translator.FallbackLang
}

func (h *Handler) channelNSFW(channelID string) bool {
	if h.session != nil {
		if ch, err := h.session.State.Channel(channelID); err == nil {
			return ch.NSFW
		}
	}
	ch, err := h.s.Channel(channelID)
	if err != nil {
		return false
	}
	return ch.NSFW
}

// filesizeLimit is the per-item download ceiling: the guild setting when set,
// otherwise the boost-tier upload limit.
func (h *Handler) filesizeLimit(settings *domain.GuildSettings) int64 {
	if settings.FilesizeLimit > 0 {
		return settings.FilesizeLimit
	}
	if h.session != nil {
		if guild, err := h.session.State.Guild(strconv.FormatInt(settings.ID, 10)); err == nil {
			return tierFilesizeLimit(guild.PremiumTier)
		}
	}
	return filesizeLimitDefault
}

func tierFilesizeLimit(tier discordgo.PremiumTier) int64 {
	switch tier {
	case discordgo.PremiumTier2:
		return filesizeLimitTier2
	case discordgo.PremiumTier3:
		return filesizeLimitTier3
	default:
		return filesizeLimitDefault
	}
}

func memberRoleIDs(member *discordgo.Member) []int64 {
	if member == nil {
		return nil
	}
	ids := make([]int64, 0, len(member.Roles))
	for _, role := range member.Roles {
		if id, err := strconv.ParseInt(role, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func jumpURL(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}
