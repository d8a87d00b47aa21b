package bot

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"embedfix/internal/domain"
	"embedfix/internal/translator"
)

// maxAttachmentsPerMessage is the platform's attachment cap per message.
const maxAttachmentsPerMessage = 10

// postContentBudget truncates extracted post text.
const postContentBudget = 2000

// Dispatcher reassembles a fixed message and re-sends it through the first
// available transport, with layered fallback on recoverable send failures.
type Dispatcher struct {
	s         sender
	tr        *translator.Translator
	botName   string
	botAvatar string
	log       logrus.FieldLogger
}

func NewDispatcher(s sender, tr *translator.Translator, botName, botAvatar string, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		s:         s,
		tr:        tr,
		botName:   botName,
		botAvatar: botAvatar,
		log:       logger.WithField("component", "dispatcher"),
	}
}

// DispatchRequest carries one fixed message ready for re-sending.
type DispatchRequest struct {
	GuildID string

	// ChannelID is where the fixed message goes; with a funnel channel it
	// differs from OriginChannelID, where the source message lives and
	// where warnings are shown.
	ChannelID       string
	OriginChannelID string

	// Interaction selects the interaction follow-up transport when set.
	Interaction *discordgo.Interaction

	// OriginalMessageID anchors the plain-reply fallback transport.
	OriginalMessageID string

	AuthorName      string
	AuthorAvatarURL string
	TTS             bool

	Lang    string
	Content string

	// PostContent and AuthorMD come from media extraction and are only
	// appended when the channel opted into showing post content.
	PostContent     string
	AuthorMD        string
	ShowPostContent bool

	// WithBanner prepends the localized ad-method recommendation line.
	WithBanner bool

	Medias []domain.DownloadedMedia
	Sauces []string

	DeleteEmoji           string
	DisableDeleteReaction bool
}

// DispatchResult reports how the message went out.
type DispatchResult struct {
	// Message is the first sent batch, used for reply-chain reconstruction.
	Message *discordgo.Message

	// ViaWebhook is set when the impersonating webhook transport was used.
	ViaWebhook bool

	// ViaReply is set when the plain-reply fallback was used; the original
	// message then survives and only its preview is suppressed.
	ViaReply bool
}

// Dispatch runs Compose -> SendBatch -> fallbacks -> post-send for one fixed
// message. Attachments go out in batches of at most ten; only the first batch
// carries the composed text and the optional sauce button.
func (d *Dispatcher) Dispatch(req *DispatchRequest) (*DispatchResult, error) {
	content, button := d.compose(req)

	batches := batchMedias(req.Medias, maxAttachmentsPerMessage)
	if len(batches) == 0 {
		batches = [][]domain.DownloadedMedia{nil}
	}

	webhook := d.webhookFor(req)
	result := &DispatchResult{}

	for i, batch := range batches {
		batchContent := ""
		var batchButton []discordgo.MessageComponent
		if i == 0 {
			batchContent = content
			batchButton = button
		}

		msg, viaReply, err := d.sendBatch(req, webhook, batchContent, batch, batchButton)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			result.Message = msg
			result.ViaWebhook = webhook != nil && req.Interaction == nil
			result.ViaReply = viaReply
		}

		// A permission failure on the reaction is non-fatal; the fix is
		// already delivered.
		if msg != nil && !req.DisableDeleteReaction && !viaReply {
			if err := d.s.MessageReactionAdd(msg.ChannelID, msg.ID, req.DeleteEmoji); err != nil {
				d.log.WithError(err).WithField("channel_id", msg.ChannelID).Warn("Failed to add delete reaction")
			}
		}
	}

	return result, nil
}

// compose builds the outgoing text and the optional sauce button.
func (d *Dispatcher) compose(req *DispatchRequest) (string, []discordgo.MessageComponent) {
	content := strings.TrimSpace(req.Content)

	if req.WithBanner {
		banner := d.tr.Get(req.Lang, "has_ads_warning", nil)
		content = banner + "\n" + content
	}

	if req.ShowPostContent {
		if req.AuthorMD != "" {
			content += "\n-# " + req.AuthorMD
		}
		if req.PostContent != "" {
			content += "\n" + truncateRunes(req.PostContent, postContentBudget)
		}
	}

	sauces := req.Sauces
	if len(sauces) > 1 {
		lines := make([]string, 0, len(sauces))
		for _, sauce := range sauces {
			lines = append(lines, "<"+sauce+">")
		}
		content += "\n||" + strings.Join(lines, "\n") + "||"
		sauces = nil
	}

	var button []discordgo.MessageComponent
	if len(sauces) == 1 && len(req.Medias) > 0 {
		button = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Style: discordgo.LinkButton,
						Label: d.tr.Get(req.Lang, "sauce", nil),
						URL:   sauces[0],
					},
				},
			},
		}
	}

	return content, button
}

// sendBatch sends one batch, degrading on the two recoverable rejections:
// payload too large resends the batch as links without attachments, and a
// validation rejection resends once without the optional button. A second
// failure is surfaced, not retried.
func (d *Dispatcher) sendBatch(
	req *DispatchRequest,
	webhook *discordgo.Webhook,
	content string,
	batch []domain.DownloadedMedia,
	button []discordgo.MessageComponent,
) (*discordgo.Message, bool, error) {
	files, linked := batchFiles(batch)
	if len(linked) > 0 {
		content = strings.TrimSpace(content + "\n" + strings.Join(linked, "\n"))
	}

	msg, viaReply, err := d.send(req, webhook, content, files, button)

	if restErrorCode(err) == errCodeRequestEntityTooLarge {
		var urls []string
		for _, media := range batch {
			urls = append(urls, media.SourceURL)
		}
		content = strings.TrimSpace(content + "\n" + strings.Join(urls, "\n"))
		files = nil
		msg, viaReply, err = d.send(req, webhook, content, files, button)
	}

	// The retry strips only the button; the attachment set stays whatever the
	// previous attempt sent, so files dropped for size are never re-attached.
	if restErrorCode(err) == errCodeInvalidFormBody && button != nil {
		msg, viaReply, err = d.send(req, webhook, content, files, nil)
	}

	if err != nil {
		return nil, viaReply, fmt.Errorf("failed to send fixed message: %w", err)
	}
	return msg, viaReply, nil
}

// send picks the first available transport: interaction follow-up, then the
// impersonating webhook, then a plain silent reply.
func (d *Dispatcher) send(
	req *DispatchRequest,
	webhook *discordgo.Webhook,
	content string,
	files []*discordgo.File,
	button []discordgo.MessageComponent,
) (*discordgo.Message, bool, error) {
	if req.Interaction != nil {
		msg, err := d.s.FollowupMessageCreate(req.Interaction, true, &discordgo.WebhookParams{
			Content:    content,
			Files:      files,
			Components: button,
		})
		return msg, false, err
	}

	if webhook != nil {
		msg, err := d.s.WebhookExecute(webhook.ID, webhook.Token, true, &discordgo.WebhookParams{
			Content:    content,
			Username:   req.AuthorName + webhookSuffix,
			AvatarURL:  req.AuthorAvatarURL,
			TTS:        req.TTS,
			Files:      files,
			Components: button,
		})
		return msg, false, err
	}

	send := &discordgo.MessageSend{
		Content:         content,
		Files:           files,
		Components:      button,
		TTS:             req.TTS,
		Flags:           discordgo.MessageFlagsSuppressNotifications,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	// Cross-channel references are rejected by the API, so a funneled
	// message goes out without one.
	if req.OriginalMessageID != "" && req.ChannelID == req.OriginChannelID {
		send.Reference = &discordgo.MessageReference{
			MessageID: req.OriginalMessageID,
			ChannelID: req.ChannelID,
			GuildID:   req.GuildID,
		}
	}
	msg, err := d.s.ChannelMessageSendComplex(req.ChannelID, send)
	return msg, true, err
}

// webhookFor obtains or creates the channel webhook. Any failure (no
// permission, non-standard channel type) degrades to the plain-reply
// transport by returning nil.
func (d *Dispatcher) webhookFor(req *DispatchRequest) *discordgo.Webhook {
	if req.Interaction != nil {
		return nil
	}

	webhooks, err := d.s.ChannelWebhooks(req.ChannelID)
	if err != nil {
		if isForbidden(err) {
			d.notifyWarning(req, "no_perms_to_manage_webhooks")
		}
		d.log.WithError(err).WithField("channel_id", req.ChannelID).Warn("Cannot list channel webhooks")
		return nil
	}

	for _, webhook := range webhooks {
		if webhook.Name == d.botName {
			return webhook
		}
	}

	webhook, err := d.s.WebhookCreate(req.ChannelID, d.botName, d.botAvatar)
	if err != nil {
		if isForbidden(err) {
			d.notifyWarning(req, "no_perms_to_manage_webhooks")
		}
		d.log.WithError(err).WithField("channel_id", req.ChannelID).Warn("Cannot create channel webhook")
		return nil
	}
	return webhook
}

// notifyWarning posts a localized warning to the origin channel, where the
// user who triggered the fix is looking, best effort.
func (d *Dispatcher) notifyWarning(req *DispatchRequest, key string) {
	channelID := req.OriginChannelID
	if channelID == "" {
		channelID = req.ChannelID
	}
	_, err := d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: d.tr.Get(req.Lang, key, nil),
	})
	if err != nil {
		d.log.WithError(err).WithField("channel_id", channelID).Warn("Failed to send warning notice")
	}
}

// batchMedias splits medias into chunks of at most size.
func batchMedias(medias []domain.DownloadedMedia, size int) [][]domain.DownloadedMedia {
	var batches [][]domain.DownloadedMedia
	for len(medias) > size {
		batches = append(batches, medias[:size])
		medias = medias[size:]
	}
	if len(medias) > 0 {
		batches = append(batches, medias)
	}
	return batches
}

// batchFiles converts a batch into upload files; items whose download failed
// come back as bare links so no media silently vanishes.
func batchFiles(batch []domain.DownloadedMedia) ([]*discordgo.File, []string) {
	var files []*discordgo.File
	var linked []string
	for _, media := range batch {
		if !media.Downloaded() {
			linked = append(linked, media.SourceURL)
			continue
		}
		name := media.Filename
		if media.Spoiler {
			name = "SPOILER_" + name
		}
		files = append(files, &discordgo.File{
			Name:   name,
			Reader: bytes.NewReader(media.Blob),
		})
	}
	return files, linked
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
