package schema

import "sync"

// BotAPI returns the built-in registry describing the Telegram Bot API
// surface used by this module. It is built once per process.
var BotAPI = sync.OnceValues(buildBotAPI)

func buildBotAPI() (*Registry, error) {
	b := NewBuilder()

	b.Model("User",
		F("id: Integer"),
		F("is_bot: Boolean"),
		F("first_name: String"),
		F("last_name?: String"),
		F("username?: String"),
		F("language_code?: String"),
		F("is_premium?: True"),
		F("can_join_groups?: Boolean"),
		F("can_read_all_group_messages?: Boolean"),
		F("supports_inline_queries?: Boolean"),
	)
	b.Model("Chat",
		F("id: Integer"),
		F("type: String"),
		F("title?: String"),
		F("username?: String"),
		F("first_name?: String"),
		F("last_name?: String"),
		F("is_forum?: True"),
		F("photo?: ChatPhoto"),
		F("description?: String"),
		F("pinned_message?: Message"),
	)
	b.Model("ChatPhoto",
		F("small_file_id: String"),
		F("small_file_unique_id: String"),
		F("big_file_id: String"),
		F("big_file_unique_id: String"),
	)
	b.Model("Message",
		F("message_id: Integer"),
		F("message_thread_id?: Integer"),
		F("from?: User"),
		F("sender_chat?: Chat"),
		F("date: Integer"),
		F("chat: Chat"),
		F("reply_to_message?: Message"),
		F("edit_date?: Integer"),
		F("media_group_id?: String"),
		F("author_signature?: String"),
		F("text?: String"),
		F("entities?: Array of MessageEntity"),
		F("caption?: String"),
		F("caption_entities?: Array of MessageEntity"),
		F("photo?: Array of PhotoSize"),
		F("document?: Document"),
		F("voice?: Voice"),
		F("location?: Location"),
		F("pinned_message?: Message"),
		F("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Model("MessageId",
		F("message_id: Integer"),
	)
	b.Model("MessageEntity",
		F("type: String"),
		F("offset: Integer"),
		F("length: Integer"),
		F("url?: String"),
		F("user?: User"),
		F("language?: String"),
		F("custom_emoji_id?: String"),
	)
	b.Model("PhotoSize",
		F("file_id: String"),
		F("file_unique_id: String"),
		F("width: Integer"),
		F("height: Integer"),
		F("file_size?: Integer"),
	)
	b.Model("Document",
		F("file_id: String"),
		F("file_unique_id: String"),
		F("thumbnail?: PhotoSize"),
		F("file_name?: String"),
		F("mime_type?: String"),
		F("file_size?: Integer"),
	)
	b.Model("Voice",
		F("file_id: String"),
		F("file_unique_id: String"),
		F("duration: Integer"),
		F("mime_type?: String"),
		F("file_size?: Integer"),
	)
	b.Model("Location",
		F("latitude: Float"),
		F("longitude: Float"),
		F("horizontal_accuracy?: Float"),
	)
	b.Model("File",
		F("file_id: String"),
		F("file_unique_id: String"),
		F("file_size?: Integer"),
		F("file_path?: String"),
	)
	b.Model("Update",
		F("update_id: Integer"),
		F("message?: Message"),
		F("edited_message?: Message"),
		F("channel_post?: Message"),
		F("edited_channel_post?: Message"),
		F("callback_query?: CallbackQuery"),
	)
	b.Model("CallbackQuery",
		F("id: String"),
		F("from: User"),
		F("message?: Message"),
		F("inline_message_id?: String"),
		F("chat_instance: String"),
		F("data?: String"),
	)
	b.Model("InlineKeyboardMarkup",
		F("inline_keyboard: Array of Array of InlineKeyboardButton"),
	)
	b.Model("InlineKeyboardButton",
		F("text: String"),
		F("url?: String"),
		F("callback_data?: String"),
	)
	b.Model("ReplyParameters",
		F("message_id: Integer"),
		F("chat_id?: Integer or String"),
		F("allow_sending_without_reply?: Boolean"),
		F("quote?: String"),
	)
	b.Model("LinkPreviewOptions",
		F("is_disabled?: Boolean"),
		F("url?: String"),
		F("prefer_small_media?: Boolean"),
		F("prefer_large_media?: Boolean"),
		F("show_above_text?: Boolean"),
	)
	b.Model("WebhookInfo",
		F("url: String"),
		F("has_custom_certificate: Boolean"),
		F("pending_update_count: Integer"),
		F("ip_address?: String"),
		F("last_error_date?: Integer"),
		F("last_error_message?: String"),
		F("last_synchronization_error_date?: Integer"),
		F("max_connections?: Integer"),
		F("allowed_updates?: Array of String"),
	)
	b.Model("ResponseParameters",
		F("migrate_to_chat_id?: Integer"),
		F("retry_after?: Integer"),
	)
	b.Model("BotCommand",
		F("command: String"),
		F("description: String"),
	)
	b.Model("ReactionTypeEmoji",
		F("type: String"),
		F("emoji: String"),
	)
	b.Model("ReactionTypeCustomEmoji",
		F("type: String"),
		F("custom_emoji_id: String"),
	)
	b.Union("ReactionType", "ReactionTypeEmoji", "ReactionTypeCustomEmoji")
	b.Model("InputMediaPhoto",
		F("type: String"),
		F("media: String"),
		F("caption?: String"),
		F("parse_mode?: String"),
		F("has_spoiler?: Boolean"),
	)
	b.Model("InputMediaDocument",
		F("type: String"),
		F("media: String"),
		F("caption?: String"),
		F("parse_mode?: String"),
		F("disable_content_type_detection?: Boolean"),
	)
	b.Union("InputMedia", "InputMediaPhoto", "InputMediaDocument")

	b.Method("getMe", Named("User"))
	b.Method("logOut", Bool())
	b.Method("close", Bool())
	b.Method("getUpdates", List(Named("Update")),
		P("offset?: Integer"),
		P("limit?: Integer"),
		P("timeout?: Integer"),
		P("allowed_updates?: Array of String"),
	)
	b.Method("setWebhook", Bool(),
		P("url: String"),
		P("certificate?: InputFile"),
		P("ip_address?: String"),
		P("max_connections?: Integer"),
		P("allowed_updates?: Array of String"),
		P("drop_pending_updates?: Boolean"),
		P("secret_token?: String"),
	)
	b.Method("deleteWebhook", Bool(),
		P("drop_pending_updates?: Boolean"),
	)
	b.Method("getWebhookInfo", Named("WebhookInfo"))
	b.Method("sendMessage", Named("Message"),
		P("chat_id: Integer or String"),
		P("message_thread_id?: Integer"),
		P("text: String"),
		P("parse_mode?: String"),
		P("entities?: Array of MessageEntity"),
		P("link_preview_options?: LinkPreviewOptions"),
		P("disable_notification?: Boolean"),
		P("protect_content?: Boolean"),
		P("reply_parameters?: ReplyParameters"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("forwardMessage", Named("Message"),
		P("chat_id: Integer or String"),
		P("message_thread_id?: Integer"),
		P("from_chat_id: Integer or String"),
		P("disable_notification?: Boolean"),
		P("protect_content?: Boolean"),
		P("message_id: Integer"),
	)
	b.Method("copyMessage", Named("MessageId"),
		P("chat_id: Integer or String"),
		P("from_chat_id: Integer or String"),
		P("message_id: Integer"),
		P("caption?: String"),
		P("parse_mode?: String"),
		P("caption_entities?: Array of MessageEntity"),
		P("disable_notification?: Boolean"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("sendPhoto", Named("Message"),
		P("chat_id: Integer or String"),
		P("message_thread_id?: Integer"),
		P("photo: InputFile or String"),
		P("caption?: String"),
		P("parse_mode?: String"),
		P("caption_entities?: Array of MessageEntity"),
		P("has_spoiler?: Boolean"),
		P("disable_notification?: Boolean"),
		P("protect_content?: Boolean"),
		P("reply_parameters?: ReplyParameters"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("sendDocument", Named("Message"),
		P("chat_id: Integer or String"),
		P("message_thread_id?: Integer"),
		P("document: InputFile or String"),
		P("thumbnail?: InputFile or String"),
		P("caption?: String"),
		P("parse_mode?: String"),
		P("caption_entities?: Array of MessageEntity"),
		P("disable_content_type_detection?: Boolean"),
		P("disable_notification?: Boolean"),
		P("protect_content?: Boolean"),
		P("reply_parameters?: ReplyParameters"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("sendVoice", Named("Message"),
		P("chat_id: Integer or String"),
		P("voice: InputFile or String"),
		P("caption?: String"),
		P("duration?: Integer"),
		P("disable_notification?: Boolean"),
		P("reply_parameters?: ReplyParameters"),
	)
	b.Method("sendMediaGroup", List(Named("Message")),
		P("chat_id: Integer or String"),
		P("media: Array of InputMediaPhoto and InputMediaDocument"),
		P("disable_notification?: Boolean"),
		P("protect_content?: Boolean"),
		P("reply_parameters?: ReplyParameters"),
	)
	b.Method("sendLocation", Named("Message"),
		P("chat_id: Integer or String"),
		P("latitude: Float"),
		P("longitude: Float"),
		P("horizontal_accuracy?: Float"),
		P("disable_notification?: Boolean"),
	)
	b.Method("sendChatAction", Bool(),
		P("chat_id: Integer or String"),
		P("message_thread_id?: Integer"),
		P("action: String"),
	)
	b.Method("setMessageReaction", Bool(),
		P("chat_id: Integer or String"),
		P("message_id: Integer"),
		P("reaction?: Array of ReactionType"),
		P("is_big?: Boolean"),
	)
	b.Method("getFile", Named("File"),
		P("file_id: String"),
	)
	b.Method("getChat", Named("Chat"),
		P("chat_id: Integer or String"),
	)
	b.Method("editMessageText", Union(Named("Message"), Bool()),
		P("chat_id?: Integer or String"),
		P("message_id?: Integer"),
		P("inline_message_id?: String"),
		P("text: String"),
		P("parse_mode?: String"),
		P("entities?: Array of MessageEntity"),
		P("link_preview_options?: LinkPreviewOptions"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("editMessageReplyMarkup", Union(Named("Message"), Bool()),
		P("chat_id?: Integer or String"),
		P("message_id?: Integer"),
		P("inline_message_id?: String"),
		P("reply_markup?: InlineKeyboardMarkup"),
	)
	b.Method("deleteMessage", Bool(),
		P("chat_id: Integer or String"),
		P("message_id: Integer"),
	)
	b.Method("answerCallbackQuery", Bool(),
		P("callback_query_id: String"),
		P("text?: String"),
		P("show_alert?: Boolean"),
		P("url?: String"),
		P("cache_time?: Integer"),
	)
	b.Method("setMyCommands", Bool(),
		P("commands: Array of BotCommand"),
		P("language_code?: String"),
	)
	b.Method("getMyCommands", List(Named("BotCommand")),
		P("language_code?: String"),
	)

	return b.Build()
}
