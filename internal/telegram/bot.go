// Package telegram reads trading signals from a Telegram channel and
// delivers trade notifications to tenant chats.
package telegram

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the subset of the Bot API used by this package.
type Bot interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ctxClient binds outgoing Bot API requests to a context so long polls end
// when the process stops.
type ctxClient struct {
	ctx   context.Context
	inner tgbotapi.HTTPClient
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.inner.Do(req.WithContext(c.ctx))
}

// NewBot authorizes token against endpoint (tgbotapi.APIEndpoint when
// empty). Requests made through the returned bot are cancelled with ctx.
func NewBot(ctx context.Context, token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	return tgbotapi.NewBotAPIWithClient(token, endpoint, ctxClient{ctx: ctx, inner: client})
}
