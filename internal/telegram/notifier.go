package telegram

import (
	"context"
	"errors"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
)

const defaultQueueSize = 100

type outgoing struct {
	chatID int64
	text   string
}

// Notifier is an alert.Sink that renders events and sends them to the
// tenant's chat. Publish never blocks; delivery happens in Run.
type Notifier struct {
	bot    Sender
	chats  map[string]int64
	queue  chan outgoing
	logger *zap.Logger

	// wait pauses between attempts; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
	// jitter is the pause after a network error.
	jitter func() time.Duration
}

// Sender sends a Bot API request.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewNotifier creates a Notifier. chats maps tenant ids to chat ids.
func NewNotifier(bot Sender, chats map[string]int64, logger *zap.Logger) *Notifier {
	return &Notifier{
		bot:    bot,
		chats:  chats,
		queue:  make(chan outgoing, defaultQueueSize),
		logger: logger.Named("telegram-notifier"),
		wait:   sleepCtx,
		jitter: func() time.Duration { return time.Second + time.Duration(rand.Int63n(int64(2*time.Second))) },
	}
}

// Publish implements alert.Sink.
func (n *Notifier) Publish(tenantID string, kind alert.Kind, payload alert.Payload) {
	chatID, ok := n.chats[tenantID]
	if !ok || chatID == 0 {
		return
	}
	select {
	case n.queue <- outgoing{chatID: chatID, text: alert.Render(kind, payload)}:
	default:
		n.logger.Warn("notification queue full, dropping", zap.String("kind", string(kind)), zap.String("tenant", tenantID))
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			n.deliver(ctx, m)
		}
	}
}

// deliver sends m, retrying network errors and flood-control responses.
// Other Bot API errors, such as a bot blocked by the user, drop the message.
func (n *Notifier) deliver(ctx context.Context, m outgoing) {
	for attempt := 1; ; attempt++ {
		_, err := n.bot.Send(tgbotapi.NewMessage(m.chatID, m.text))
		if err == nil {
			return
		}

		var apiErr *tgbotapi.Error
		var pause time.Duration
		switch {
		case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
			pause = time.Duration(apiErr.RetryAfter) * time.Second
		case errors.As(err, &apiErr):
			n.logger.Warn("notification dropped", zap.Int64("chat", m.chatID), zap.Int("code", apiErr.Code), zap.String("reason", apiErr.Message))
			return
		default:
			pause = n.jitter()
		}

		n.logger.Debug("notification retry", zap.Int("attempt", attempt), zap.Duration("pause", pause), zap.Error(err))
		if n.wait(ctx, pause) != nil {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
