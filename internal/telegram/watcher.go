package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Window receives tagged channel posts.
type Window interface {
	Append(text string, arrivalMs int64) bool
}

// Controller starts and stops trading iterations.
type Controller interface {
	Start() bool
	Stop() bool
	Running() bool
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Tag must appear in a post, case-insensitively, for it to be kept.
	Tag string
	// ChannelID restricts intake to one channel; 0 accepts any channel.
	ChannelID int64
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	// AdminChats may send /start, /stop and /status.
	AdminChats []int64
}

// Watcher long-polls bot updates. Channel posts carrying the tag are
// appended to the message window; commands from admin chats drive the
// session control.
type Watcher struct {
	bot     Bot
	window  Window
	control Controller
	cfg     WatcherConfig
	admins  map[int64]bool
	offset  int
	backoff time.Duration
	logger  *zap.Logger
}

// NewWatcher creates a Watcher. control may be nil, in which case commands are ignored.
func NewWatcher(bot Bot, window Window, control Controller, cfg WatcherConfig, logger *zap.Logger) *Watcher {
	admins := make(map[int64]bool, len(cfg.AdminChats))
	for _, id := range cfg.AdminChats {
		if id != 0 {
			admins[id] = true
		}
	}
	return &Watcher{
		bot:     bot,
		window:  window,
		control: control,
		cfg:     cfg,
		admins:  admins,
		backoff: 3 * time.Second,
		logger:  logger.Named("telegram-watcher"),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watching channel", zap.Int64("channel", w.cfg.ChannelID), zap.String("tag", w.cfg.Tag))
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.poll(); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
		}
	}
}

func (w *Watcher) poll() error {
	updates, err := w.bot.GetUpdates(tgbotapi.UpdateConfig{
		Offset:         w.offset,
		Limit:          100,
		Timeout:        w.cfg.PollTimeout,
		AllowedUpdates: []string{"channel_post", "message"},
	})
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.UpdateID >= w.offset {
			w.offset = u.UpdateID + 1
		}
		w.handle(u)
	}
	return nil
}

func (w *Watcher) handle(u tgbotapi.Update) {
	switch {
	case u.ChannelPost != nil:
		w.handlePost(u.ChannelPost)
	case u.Message != nil && u.Message.IsCommand():
		w.handleCommand(u.Message)
	}
}

func (w *Watcher) handlePost(post *tgbotapi.Message) {
	if w.cfg.ChannelID != 0 && (post.Chat == nil || post.Chat.ID != w.cfg.ChannelID) {
		return
	}
	text := post.Text
	if text == "" {
		text = post.Caption
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(w.cfg.Tag)) {
		return
	}
	arrivalMs := int64(post.Date) * 1000
	if w.window.Append(text, arrivalMs) {
		w.logger.Debug("signal post queued", zap.Int("message_id", post.MessageID), zap.Int64("arrival_ms", arrivalMs))
	}
}

func (w *Watcher) handleCommand(msg *tgbotapi.Message) {
	if w.control == nil || msg.Chat == nil || !w.admins[msg.Chat.ID] {
		return
	}
	var reply string
	switch msg.Command() {
	case "start":
		if w.control.Start() {
			reply = "Trading start requested."
		} else {
			reply = "Trading is already running."
		}
	case "stop":
		if w.control.Stop() {
			reply = "Trading stop requested."
		} else {
			reply = "Trading is not running."
		}
	case "status":
		reply = "Trading is stopped."
		if w.control.Running() {
			reply = "Trading is running."
		}
	default:
		return
	}
	w.logger.Info("command received", zap.String("command", msg.Command()), zap.Int64("chat", msg.Chat.ID))
	if _, err := w.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		w.logger.Warn("command reply failed", zap.Error(err))
	}
}
