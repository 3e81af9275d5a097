package alerts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"polyarb/internal/config"
)

// decisionLogEntry is the structured record written for every alert,
// regardless of severity or throttle outcome. ID is a fresh uuid per
// entry, so individual dispatches can be cross-referenced from a channel
// delivery log back to the decision log.
type decisionLogEntry struct {
	ID              string            `json:"id"`
	Severity        Severity          `json:"severity"`
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	SourceEventType string            `json:"source_event_type"`
	Fields          map[string]string `json:"fields,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Dispatcher routes AlertMessages to channels under severity/throttle
// policy and writes every message to the decision log.
type Dispatcher struct {
	channels     []Channel
	throttle     time.Duration
	paperMode    bool
	logger       *slog.Logger
	decisionLog  io.Writer
	decisionEnc  *json.Encoder

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDispatcher builds a dispatcher from AlertsConfig, wiring one channel
// per enabled destination and opening the decision log sink.
func NewDispatcher(cfg config.AlertsConfig, http *resty.Client, logger *slog.Logger) *Dispatcher {
	var channels []Channel
	if cfg.SlackEnabled && cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackChannel(http, cfg.SlackWebhookURL))
	}
	if cfg.DiscordEnabled && cfg.DiscordWebhookURL != "" {
		channels = append(channels, NewDiscordChannel(http, cfg.DiscordWebhookURL))
	}
	if cfg.TelegramEnabled && cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, NewTelegramChannel(http, cfg.TelegramBotToken, cfg.TelegramChatID))
	}

	var sink io.Writer = os.Stdout
	if cfg.DecisionLogPath != "" {
		f, err := os.OpenFile(cfg.DecisionLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Error("decision log open failed, falling back to stdout", "path", cfg.DecisionLogPath, "error", err)
		} else {
			sink = f
		}
	}

	return &Dispatcher{
		channels:    channels,
		throttle:    time.Duration(cfg.ThrottleSecs * float64(time.Second)),
		paperMode:   cfg.PaperMode,
		logger:      logger.With("component", "alerts"),
		decisionLog: sink,
		decisionEnc: json.NewEncoder(sink),
		lastSent:    make(map[string]time.Time),
	}
}

// Dispatch applies severity/throttle policy to msg: it always logs to the
// decision log, then routes to channels unless suppressed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg AlertMessage, now time.Time) {
	d.writeDecisionLog(msg, now)

	if msg.Severity == SeverityDebug {
		return
	}

	if d.paperMode && !strings.HasPrefix(msg.Title, "[PAPER]") {
		msg.Title = "[PAPER] " + msg.Title
	}

	if msg.Severity != SeverityCritical && d.throttled(msg.SourceEventType, now) {
		return
	}

	d.send(ctx, msg)
}

// throttled reports whether an INFO/WARNING alert for eventType fired
// within the configured window, and records now as the latest send time
// when it did not.
func (d *Dispatcher) throttled(eventType string, now time.Time) bool {
	if d.throttle <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSent[eventType]
	if ok && now.Sub(last) < d.throttle {
		return true
	}
	d.lastSent[eventType] = now
	return false
}

func (d *Dispatcher) send(ctx context.Context, msg AlertMessage) {
	for _, ch := range d.channels {
		func(ch Channel) {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("alert channel panicked", "channel", ch.Name(), "panic", r)
				}
			}()
			if err := ch.Send(ctx, msg); err != nil {
				d.logger.Error("alert channel send failed", "channel", ch.Name(), "error", err)
			}
		}(ch)
	}
}

// DispatchDirect bypasses throttling entirely (used by the daily summary
// scheduler).
func (d *Dispatcher) DispatchDirect(ctx context.Context, msg AlertMessage, now time.Time) {
	d.writeDecisionLog(msg, now)
	if d.paperMode && !strings.HasPrefix(msg.Title, "[PAPER]") {
		msg.Title = "[PAPER] " + msg.Title
	}
	d.send(ctx, msg)
}

func (d *Dispatcher) writeDecisionLog(msg AlertMessage, now time.Time) {
	entry := decisionLogEntry{
		ID:              uuid.NewString(),
		Severity:        msg.Severity,
		Title:           msg.Title,
		Body:            msg.Body,
		SourceEventType: msg.SourceEventType,
		Fields:          msg.Fields,
		Timestamp:       now,
	}
	if err := d.decisionEnc.Encode(entry); err != nil {
		d.logger.Error("decision log write failed", "error", err)
	}
}
