package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"

	"kpibot/pkg/logger"
)

const defaultAPICallTimeout = 15 * time.Second

type TelegramOptions struct {
	// APIURL overrides the Bot API server, e.g. a local bot-api instance.
	APIURL string
	// Timeout bounds every Bot API call.
	Timeout time.Duration
	// HTTPClient replaces the default transport.
	HTTPClient *http.Client
}

// Telegram implements Client on top of a telego bot.
type Telegram struct {
	bot     *telego.Bot
	timeout time.Duration
}

func NewTelegram(token string, opts TelegramOptions) (*Telegram, error) {
	botOpts := []telego.BotOption{telego.WithDefaultLogger(false, false)}
	if opts.APIURL != "" {
		botOpts = append(botOpts, telego.WithAPIServer(opts.APIURL))
	}
	if opts.HTTPClient != nil {
		botOpts = append(botOpts, telego.WithHTTPClient(opts.HTTPClient))
	}

	bot, err := telego.NewBot(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultAPICallTimeout
	}
	return &Telegram{bot: bot, timeout: opts.Timeout}, nil
}

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	params := telegoutil.Message(telegoutil.ID(chatID), text)
	if !kb.Empty() {
		params.ReplyMarkup = replyKeyboard(kb)
	}

	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		logger.WarnCF("telegram", "Send message failed", map[string]interface{}{
			logger.FieldChatID: chatID,
			logger.FieldError:  err.Error(),
		})
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (t *Telegram) SetWebhook(ctx context.Context, url, secret string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:         url,
		SecretToken: secret,
		AllowedUpdates: []string{
			"message",
		},
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// Username asks the Bot API for this bot's own username.
func (t *Telegram) Username(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get me: %w", err)
	}
	return me.Username, nil
}

func (t *Telegram) DeleteWebhook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func replyKeyboard(kb *Keyboard) *telego.ReplyKeyboardMarkup {
	rows := make([][]telego.KeyboardButton, 0, len(kb.Rows))
	for _, labels := range kb.Rows {
		if len(labels) == 0 {
			continue
		}
		row := make([]telego.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, telegoutil.KeyboardButton(label))
		}
		rows = append(rows, row)
	}
	markup := telegoutil.Keyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}
