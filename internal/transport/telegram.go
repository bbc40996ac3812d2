package transport

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"github.com/videobot/broadcast-backend/internal/model"
)

// TelegramTransport sends broadcast messages through the Telegram Bot API.
type TelegramTransport struct {
	bot *tele.Bot
	log zerolog.Logger
}

// NewTelegramTransport builds a transport from a bot token. The bot is
// used send-only; no poller is attached.
func NewTelegramTransport(token string, log zerolog.Logger) (*TelegramTransport, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &TelegramTransport{bot: bot, log: log.With().Str("component", "telegram").Logger()}, nil
}

func (t *TelegramTransport) Send(ctx context.Context, recipient model.User, b *model.Broadcast) Outcome {
	if ctx.Err() != nil {
		return OutcomeFailed
	}

	opts := &tele.SendOptions{
		ParseMode:           tele.ParseMode(b.ParseMode),
		DisableNotification: b.DisableNotification,
		Protected:           b.ProtectContent,
	}
	chat := &tele.Chat{ID: recipient.TelegramID}

	var err error
	if b.MediaType != nil && b.MediaFileID != nil {
		err = t.sendMedia(chat, b, opts)
	} else {
		_, err = t.bot.Send(chat, b.MessageText, opts)
	}
	if err == nil {
		return OutcomeSent
	}

	outcome := Classify(err)
	t.log.Debug().
		Int("broadcast_id", b.ID).
		Int64("telegram_id", recipient.TelegramID).
		Str("outcome", outcome.String()).
		Err(err).
		Msg("delivery attempt failed")
	return outcome
}

func (t *TelegramTransport) sendMedia(chat *tele.Chat, b *model.Broadcast, opts *tele.SendOptions) error {
	caption := b.MessageText
	if b.MediaCaption != nil {
		caption = *b.MediaCaption
	}
	file := tele.File{FileID: *b.MediaFileID}

	var err error
	switch *b.MediaType {
	case "photo":
		_, err = t.bot.Send(chat, &tele.Photo{File: file, Caption: caption}, opts)
	case "video":
		_, err = t.bot.Send(chat, &tele.Video{File: file, Caption: caption}, opts)
	case "document":
		_, err = t.bot.Send(chat, &tele.Document{File: file, Caption: caption}, opts)
	case "audio":
		_, err = t.bot.Send(chat, &tele.Audio{File: file, Caption: caption}, opts)
	default:
		_, err = t.bot.Send(chat, b.MessageText, opts)
	}
	return err
}

// Classify maps a Telegram API error onto the delivery outcome taxonomy.
// Recipients who blocked the bot, deleted their account or never started a
// chat count as blocked; everything else is a transient failure.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser),
		errors.Is(err, tele.ErrChatNotFound):
		return OutcomeBlocked
	default:
		return OutcomeFailed
	}
}
