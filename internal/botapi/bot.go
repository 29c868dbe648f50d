// Package botapi is a typed facade over the generic dispatcher, plus the
// update sources (long polling and webhooks) built on it.
package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/proxy"
)

// ErrNoDownloader is returned by DownloadFile when the Bot has no way to
// fetch file contents.
var ErrNoDownloader = errors.New("botapi: no downloader configured")

// Downloader fetches a file by the path returned from getFile.
type Downloader interface {
	Download(ctx context.Context, filePath string) ([]byte, error)
}

// Bot exposes typed Bot API methods.
type Bot struct {
	d          *proxy.Dispatcher
	downloader Downloader
}

// Option configures a Bot.
type Option func(*Bot)

// WithDownloader enables DownloadFile.
func WithDownloader(dl Downloader) Option {
	return func(b *Bot) { b.downloader = dl }
}

// New creates a Bot forwarding every call to d.
func New(d *proxy.Dispatcher, opts ...Option) *Bot {
	b := &Bot{d: d}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dispatcher returns the underlying generic dispatcher.
func (b *Bot) Dispatcher() *proxy.Dispatcher { return b.d }

// InputFile is a file to send: either new content (Reader) or a file_id or
// HTTP URL the server already knows (ID).
type InputFile struct {
	Reader io.Reader
	ID     string
}

// FileReader uploads the contents of r.
func FileReader(r io.Reader) InputFile { return InputFile{Reader: r} }

// FileID resends a file already stored on the server, or fetches a URL.
func FileID(id string) InputFile { return InputFile{ID: id} }

func (f InputFile) value() any {
	if f.Reader != nil {
		return f.Reader
	}
	return f.ID
}

// MessageOptions holds the optional parameters shared by send methods.
// Zero values are not sent.
type MessageOptions struct {
	ThreadID            int64
	ParseMode           string
	Entities            []MessageEntity
	DisableNotification bool
	ProtectContent      bool
	ReplyToMessageID    int64
	ReplyMarkup         *InlineKeyboardMarkup
}

func (o *MessageOptions) apply(args map[string]any, entitiesKey string) {
	if o == nil {
		return
	}
	if o.ThreadID != 0 {
		args["message_thread_id"] = o.ThreadID
	}
	if o.ParseMode != "" {
		args["parse_mode"] = o.ParseMode
	}
	if len(o.Entities) > 0 {
		args[entitiesKey] = o.Entities
	}
	if o.DisableNotification {
		args["disable_notification"] = true
	}
	if o.ProtectContent {
		args["protect_content"] = true
	}
	if o.ReplyToMessageID != 0 {
		args["reply_parameters"] = replyParameters{MessageID: o.ReplyToMessageID}
	}
	if o.ReplyMarkup != nil {
		args["reply_markup"] = o.ReplyMarkup
	}
}

// call dispatches method and decodes the result into T through its
// canonical JSON form.
func call[T any](ctx context.Context, b *Bot, method string, args map[string]any) (T, error) {
	var out T
	res, err := b.d.Call(ctx, method, args)
	if err != nil {
		return out, fmt.Errorf("botapi: %s: %w", method, err)
	}
	if err := b.decode(method, res, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (b *Bot) decode(method string, res any, dst any) error {
	m, err := b.d.Registry().Lookup(method)
	if err != nil {
		return fmt.Errorf("botapi: %s: %w", method, err)
	}
	data, err := b.d.Marshaller().Encode(m.Returns, res)
	if err != nil {
		return fmt.Errorf("botapi: %s: encode result: %w", method, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("botapi: %s: decode result: %w", method, err)
	}
	return nil
}

// GetMe returns basic information about the bot.
func (b *Bot) GetMe(ctx context.Context) (*User, error) {
	u, err := call[User](ctx, b, "getMe", nil)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates fetches updates with an id of at least offset, waiting up to
// timeout seconds for one to arrive.
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeout int, allowed []string) ([]Update, error) {
	args := map[string]any{"timeout": timeout}
	if offset > 0 {
		args["offset"] = offset
	}
	if len(allowed) > 0 {
		args["allowed_updates"] = allowed
	}
	return call[[]Update](ctx, b, "getUpdates", args)
}

// SendMessage sends a text message.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts *MessageOptions) (*Message, error) {
	log.Debug().
		Str("component", "botapi").
		Str("operation", "send").
		Int64("chat_id", chatID).
		Msg("sending message")

	args := map[string]any{"chat_id": chatID, "text": text}
	opts.apply(args, "entities")
	msg, err := call[Message](ctx, b, "sendMessage", args)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendPhoto sends a photo, uploaded or by file_id.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photo InputFile, caption string, opts *MessageOptions) (*Message, error) {
	return b.sendMedia(ctx, "sendPhoto", "photo", chatID, photo, caption, opts)
}

// SendDocument sends a general file, uploaded or by file_id.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, doc InputFile, caption string, opts *MessageOptions) (*Message, error) {
	return b.sendMedia(ctx, "sendDocument", "document", chatID, doc, caption, opts)
}

func (b *Bot) sendMedia(ctx context.Context, method, param string, chatID int64, f InputFile, caption string, opts *MessageOptions) (*Message, error) {
	args := map[string]any{"chat_id": chatID, param: f.value()}
	if caption != "" {
		args["caption"] = caption
	}
	opts.apply(args, "caption_entities")
	msg, err := call[Message](ctx, b, method, args)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ForwardMessage forwards a message from one chat to another.
func (b *Bot) ForwardMessage(ctx context.Context, chatID, fromChatID, messageID int64) (*Message, error) {
	msg, err := call[Message](ctx, b, "forwardMessage", map[string]any{
		"chat_id":      chatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText edits the text of a message sent by the bot. The API
// answers with the edited message, or with true for inline messages, in
// which case the returned Message is nil.
func (b *Bot) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *MessageOptions) (*Message, error) {
	args := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if opts != nil {
		if opts.ParseMode != "" {
			args["parse_mode"] = opts.ParseMode
		}
		if len(opts.Entities) > 0 {
			args["entities"] = opts.Entities
		}
		if opts.ReplyMarkup != nil {
			args["reply_markup"] = opts.ReplyMarkup
		}
	}
	res, err := b.d.Call(ctx, "editMessageText", args)
	if err != nil {
		return nil, fmt.Errorf("botapi: editMessageText: %w", err)
	}
	if _, ok := res.(bool); ok {
		return nil, nil
	}
	var msg Message
	if err := b.decode("editMessageText", res, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := call[bool](ctx, b, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// SetMessageReaction sets an emoji reaction on a message. An empty emoji
// removes the bot's reactions.
func (b *Bot) SetMessageReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	log.Debug().
		Str("component", "botapi").
		Str("operation", "react").
		Int64("chat_id", chatID).
		Str("emoji", emoji).
		Msg("setting reaction")

	reaction := []reactionEmoji{}
	if emoji != "" {
		reaction = append(reaction, reactionEmoji{Type: "emoji", Emoji: emoji})
	}
	_, err := call[bool](ctx, b, "setMessageReaction", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   reaction,
	})
	return err
}

// SendChatAction shows a status such as "typing" in the chat.
func (b *Bot) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := call[bool](ctx, b, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
	return err
}

// GetFile resolves a file_id to a downloadable path.
func (b *Bot) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := call[File](ctx, b, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile resolves fileID and downloads its contents.
func (b *Bot) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if b.downloader == nil {
		return nil, ErrNoDownloader
	}
	f, err := b.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("botapi: download %s: no file path", fileID)
	}
	data, err := b.downloader.Download(ctx, f.FilePath)
	if err != nil {
		return nil, fmt.Errorf("botapi: download %s: %w", fileID, err)
	}
	return data, nil
}

// WebhookConfig holds the setWebhook parameters.
type WebhookConfig struct {
	URL                string
	SecretToken        string
	AllowedUpdates     []string
	MaxConnections     int
	DropPendingUpdates bool
	Certificate        io.Reader
}

// SetWebhook registers an HTTPS endpoint that will receive updates.
func (b *Bot) SetWebhook(ctx context.Context, cfg WebhookConfig) error {
	args := map[string]any{"url": cfg.URL}
	if cfg.SecretToken != "" {
		args["secret_token"] = cfg.SecretToken
	}
	if len(cfg.AllowedUpdates) > 0 {
		args["allowed_updates"] = cfg.AllowedUpdates
	}
	if cfg.MaxConnections > 0 {
		args["max_connections"] = cfg.MaxConnections
	}
	if cfg.DropPendingUpdates {
		args["drop_pending_updates"] = true
	}
	if cfg.Certificate != nil {
		args["certificate"] = cfg.Certificate
	}
	_, err := call[bool](ctx, b, "setWebhook", args)
	return err
}

// DeleteWebhook removes the webhook so that getUpdates works again.
func (b *Bot) DeleteWebhook(ctx context.Context, dropPending bool) error {
	args := map[string]any{}
	if dropPending {
		args["drop_pending_updates"] = true
	}
	_, err := call[bool](ctx, b, "deleteWebhook", args)
	return err
}

// GetWebhookInfo returns the current webhook status.
func (b *Bot) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	info, err := call[WebhookInfo](ctx, b, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
