package platform

import "context"

// Client is the messaging-platform surface the bot core depends on.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
}

// Keyboard is a reply keyboard laid out as rows of button labels.
type Keyboard struct {
	Rows [][]string
}

func NewKeyboard(rows ...[]string) *Keyboard {
	return &Keyboard{Rows: rows}
}

func (k *Keyboard) Empty() bool {
	if k == nil {
		return true
	}
	for _, row := range k.Rows {
		if len(row) > 0 {
			return false
		}
	}
	return true
}
