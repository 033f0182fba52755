package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/signal"
)

const signalText = "$BTCUSDT #Soft\nЛонг\nВход: 62500\nСтоп: 61000\nТейк: 64000\nПлечо: х10"

type fakeBot struct {
	mu      sync.Mutex
	updates [][]tgbotapi.Update
	configs []tgbotapi.UpdateConfig
	errs    []error
	sent    []tgbotapi.MessageConfig
}

func (b *fakeBot) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, cfg)
	if len(b.updates) == 0 {
		return nil, nil
	}
	u := b.updates[0]
	b.updates = b.updates[1:]
	return u, nil
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}

type fakeControl struct {
	running bool
	starts  int
	stops   int
}

func (c *fakeControl) Start() bool {
	c.starts++
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *fakeControl) Stop() bool {
	c.stops++
	if !c.running {
		return false
	}
	c.running = false
	return true
}

func (c *fakeControl) Running() bool { return c.running }

func channelPost(updateID int, chatID int64, date int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID:    updateID,
		ChannelPost: &tgbotapi.Message{MessageID: updateID, Date: date, Chat: &tgbotapi.Chat{ID: chatID}, Text: text},
	}
}

func command(updateID int, chatID int64, cmd string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: updateID,
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      cmd,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
		},
	}
}

func TestWatcher_FiltersAndAppendsPosts(t *testing.T) {
	bot := &fakeBot{updates: [][]tgbotapi.Update{{
		channelPost(10, -100, 1700000000, signalText),
		channelPost(11, -100, 1700000001, "market update without the tag"),
		channelPost(12, -200, 1700000002, signalText),
		channelPost(13, -100, 1700000000, signalText+" repost"),
	}}}
	window := signal.NewMessageWindow(20)
	w := NewWatcher(bot, window, nil, WatcherConfig{Tag: "#soft", ChannelID: -100, PollTimeout: 30}, zap.NewNop())

	require.NoError(t, w.poll())
	require.NoError(t, w.poll())

	msgs := window.Poll()
	require.Len(t, msgs, 1, "untagged, foreign channel and same-timestamp posts are dropped")
	assert.Equal(t, signalText, msgs[0].Text)
	assert.Equal(t, int64(1700000000000), msgs[0].ArrivalMs)

	require.Len(t, bot.configs, 2)
	assert.Equal(t, 0, bot.configs[0].Offset)
	assert.Equal(t, 14, bot.configs[1].Offset)
	assert.Equal(t, 30, bot.configs[1].Timeout)
}

func TestWatcher_Commands(t *testing.T) {
	bot := &fakeBot{updates: [][]tgbotapi.Update{{
		command(1, 42, "/start"),
		command(2, 42, "/status"),
		command(3, 99, "/stop"),
		command(4, 42, "/stop"),
		command(5, 42, "/help"),
	}}}
	control := &fakeControl{}
	w := NewWatcher(bot, signal.NewMessageWindow(5), control, WatcherConfig{Tag: "#soft", AdminChats: []int64{42}}, zap.NewNop())

	require.NoError(t, w.poll())

	assert.Equal(t, 1, control.starts)
	assert.Equal(t, 1, control.stops, "commands from other chats are ignored")
	assert.False(t, control.running)
	require.Len(t, bot.sent, 3)
	assert.Equal(t, "Trading start requested.", bot.sent[0].Text)
	assert.Equal(t, "Trading is running.", bot.sent[1].Text)
	assert.Equal(t, "Trading stop requested.", bot.sent[2].Text)
	assert.Equal(t, int64(42), bot.sent[2].ChatID)
}

func TestWatcher_RunAgainstBotAPI(t *testing.T) {
	var mu sync.Mutex
	served := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"signal_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			mu.Lock()
			served++
			first := served == 1
			mu.Unlock()
			if first {
				fmt.Fprintf(w, `{"ok":true,"result":[{"update_id":7,"channel_post":{"message_id":3,"date":1700000000,"chat":{"id":-100,"type":"channel"},"text":%q}}]}`, signalText)
				return
			}
			io.WriteString(w, `{"ok":true,"result":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot, err := NewBot(ctx, "TOKEN", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "signal_bot", bot.Self.UserName)

	window := signal.NewMessageWindow(20)
	w := NewWatcher(bot, window, nil, WatcherConfig{Tag: "#soft"}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return window.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 8, w.offset)
}

func newTestNotifier(bot Sender) (*Notifier, *[]time.Duration) {
	var waits []time.Duration
	n := NewNotifier(bot, map[string]int64{"1": 42}, zap.NewNop())
	n.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	n.jitter = func() time.Duration { return 1500 * time.Millisecond }
	return n, &waits
}

func TestNotifier_RetryPolicy(t *testing.T) {
	bot := &fakeBot{errs: []error{
		errors.New("connection reset by peer"),
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 4}},
	}}
	n, waits := newTestNotifier(bot)

	n.deliver(context.Background(), outgoing{chatID: 42, text: "hello"})

	assert.Len(t, bot.sent, 3)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 4 * time.Second}, *waits)
}

func TestNotifier_DropsOnForbidden(t *testing.T) {
	bot := &fakeBot{errs: []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}}
	n, waits := newTestNotifier(bot)

	n.deliver(context.Background(), outgoing{chatID: 42, text: "hello"})

	assert.Len(t, bot.sent, 1)
	assert.Empty(t, *waits)
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	bot := &fakeBot{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	n := NewNotifier(bot, map[string]int64{"1": 42}, zap.NewNop())
	n.jitter = func() time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.deliver(ctx, outgoing{chatID: 42, text: "hello"})
	assert.Len(t, bot.sent, 1)
}

func TestNotifier_PublishRendersForTenantChat(t *testing.T) {
	bot := &fakeBot{}
	n, _ := newTestNotifier(bot)

	n.Publish("2", alert.KindOrderFailed, &alert.OrderFailedPayload{Reason: "x"})
	n.Publish("1", alert.KindOrderFailed, &alert.OrderFailedPayload{
		Subject: alert.Subject{Symbol: "BTC-USDT-SWAP", Side: "LONG", TimeMs: 1700000000000},
		Reason:  alert.ReasonTimeout,
	})
	require.Len(t, n.queue, 1, "tenants without a chat are skipped")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		bot.mu.Lock()
		defer bot.mu.Unlock()
		return len(bot.sent) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "ORDER FAILED")
	assert.Contains(t, bot.sent[0].Text, alert.ReasonTimeout)
	assert.NotContains(t, bot.sent[0].Text, "-USDT-SWAP")
}
