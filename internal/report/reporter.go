package report

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tb "gopkg.in/tucnak/telebot.v2"
)

// telegramMaxLen is the Telegram message size limit.
const telegramMaxLen = 4096

// Reporter delivers a pre-formatted status report.
type Reporter interface {
	Report(text string) error
}

// LogReporter writes reports to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter logging through logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With("module", "report")}
}

// Report logs the text as a single record.
func (r *LogReporter) Report(text string) error {
	r.logger.Info("STATUS", slog.String("report", text))
	return nil
}

// defaultQueueSize is the number of reports an AsyncReporter buffers.
const defaultQueueSize = 16

// AsyncReporter hands reports to a wrapped sink on its own goroutine, so a slow
// sink never blocks the caller. Reports arriving while the queue is full are
// dropped and logged.
type AsyncReporter struct {
	next   Reporter
	queue  chan string
	logger *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewAsyncReporter starts the delivery goroutine. Close stops it.
func NewAsyncReporter(next Reporter, size int, logger *slog.Logger) *AsyncReporter {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncReporter{
		next:   next,
		queue:  make(chan string, size),
		logger: logger.With("module", "report"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncReporter) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case text := <-a.queue:
			if err := a.next.Report(text); err != nil {
				a.logger.Warn("status delivery failed", slog.Any("error", err))
			}
		}
	}
}

// Report queues text without blocking.
func (a *AsyncReporter) Report(text string) error {
	select {
	case a.queue <- text:
	default:
		a.logger.Warn("report queue full, dropping status report", slog.Int("bytes", len(text)))
	}
	return nil
}

// Close stops delivery and waits for an in-flight report to finish.
// Queued reports are discarded.
func (a *AsyncReporter) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

// TelegramReporter sends reports to a Telegram chat. Send blocks on the
// Telegram API; NewTelegramReporter wraps it in an AsyncReporter.
type TelegramReporter struct {
	bot    *tb.Bot
	chatID string

	mu   sync.Mutex
	chat *tb.Chat
}

// NewTelegramReporter creates a bot for token and returns it behind a
// non-blocking queue. The chat is resolved on first send.
func NewTelegramReporter(token, chatID string, logger *slog.Logger) (*AsyncReporter, error) {
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	tg := &TelegramReporter{bot: b, chatID: chatID}
	return NewAsyncReporter(tg, defaultQueueSize, logger), nil
}

// Report sends the text, split to fit the message size limit.
func (r *TelegramReporter) Report(text string) error {
	chat, err := r.resolveChat()
	if err != nil {
		return err
	}
	for _, part := range splitMessage(text, telegramMaxLen) {
		if _, err := r.bot.Send(chat, part); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (r *TelegramReporter) resolveChat() (*tb.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chat != nil {
		return r.chat, nil
	}
	chat, err := r.bot.ChatByID(r.chatID)
	if err != nil {
		return nil, fmt.Errorf("telegram chat %s: %w", r.chatID, err)
	}
	r.chat = chat
	return chat, nil
}

// MultiReporter fans a report out to several sinks.
// Every sink is tried; the first error is returned.
type MultiReporter []Reporter

func (m MultiReporter) Report(text string) error {
	var first error
	for _, r := range m {
		if err := r.Report(text); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// splitMessage cuts text on line boundaries into chunks of at most limit bytes.
// A single line longer than limit is cut at the last rune boundary before limit.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
