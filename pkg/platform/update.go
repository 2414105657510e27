package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mymmrac/telego"

	"kpibot/pkg/bus"
)

var ErrMalformedUpdate = errors.New("malformed update")

// ParseUpdate decodes a Telegram webhook body into an InboundEvent.
// Commands addressed to a bot other than botUsername get no discriminator;
// an empty botUsername accepts any mention.
func ParseUpdate(body []byte, botUsername string) (bus.InboundEvent, error) {
	var upd telego.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return bus.InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if upd.UpdateID <= 0 {
		return bus.InboundEvent{}, fmt.Errorf("%w: missing update_id", ErrMalformedUpdate)
	}
	return EventFromUpdate(upd, botUsername), nil
}

// EventFromUpdate reduces an update to its routing fields. Only new messages
// carry a discriminator; everything else is surfaced with an empty one.
func EventFromUpdate(upd telego.Update, botUsername string) bus.InboundEvent {
	ev := bus.InboundEvent{
		UpdateID:   upd.UpdateID,
		Kind:       updateKind(upd),
		ReceivedAt: time.Now(),
	}

	switch {
	case upd.Message != nil:
		msg := upd.Message
		ev.ChatID = msg.Chat.ID
		ev.Text = msg.Text
		if msg.From != nil {
			ev.SenderID = msg.From.ID
			ev.Username = msg.From.Username
		}
		ev.Discriminator, ev.Args = parseDiscriminator(msg.Text, botUsername)
	case upd.EditedMessage != nil:
		ev.ChatID = upd.EditedMessage.Chat.ID
	case upd.CallbackQuery != nil:
		ev.SenderID = upd.CallbackQuery.From.ID
	}
	return ev
}

func updateKind(upd telego.Update) string {
	switch {
	case upd.Message != nil:
		return "message"
	case upd.EditedMessage != nil:
		return "edited_message"
	case upd.ChannelPost != nil:
		return "channel_post"
	case upd.CallbackQuery != nil:
		return "callback_query"
	}
	return "other"
}

// parseDiscriminator handles "/command", "/command args" and
// "/command@botname args". Non-command text is its own discriminator.
func parseDiscriminator(text, botUsername string) (key, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text, ""
	}

	cmd, rest := text[1:], ""
	if i := strings.IndexFunc(cmd, unicode.IsSpace); i != -1 {
		cmd, rest = cmd[:i], cmd[i:]
	}
	if at := strings.Index(cmd, "@"); at != -1 {
		mention := cmd[at+1:]
		cmd = cmd[:at]
		if botUsername != "" && !strings.EqualFold(mention, strings.TrimPrefix(botUsername, "@")) {
			return "", ""
		}
	}
	if cmd == "" {
		return "", ""
	}
	return "/" + strings.ToLower(cmd), strings.TrimSpace(rest)
}
