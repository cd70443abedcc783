package workers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"scaler-service/models"
	"scaler-service/utils"
)

const (
	ClickSubject       = "analytics.clicks"
	RecorderQueueGroup = "analytics-recorders"
)

// Scheduler accepts clicks without blocking. *Recorder and *NATSPublisher
// satisfy it.
type Scheduler interface {
	Schedule(code, country string)
}

// Enqueuer accepts fully formed click events
type Enqueuer interface {
	Enqueue(event models.ClickEvent) error
}

// ConnectNATS dials the server and keeps reconnecting forever
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("scaler-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// NATSPublisher hands clicks to whichever instance in the queue group picks
// them up. Publish errors fall back to the local scheduler.
type NATSPublisher struct {
	conn     *nats.Conn
	fallback Scheduler
	logger   *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

func NewNATSPublisher(conn *nats.Conn, fallback Scheduler, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, fallback: fallback, logger: logger}
}

func (p *NATSPublisher) Schedule(code, country string) {
	data, err := json.Marshal(models.ClickEvent{ShortCode: code, Country: country, Timestamp: time.Now().UTC()})
	if err == nil {
		err = p.conn.Publish(ClickSubject, data)
	}
	if err == nil {
		p.published.Add(1)
		return
	}

	p.failed.Add(1)
	p.logger.Warn("failed to publish click, recording locally", "short_code", code, "error", err)
	if p.fallback != nil {
		p.fallback.Schedule(code, country)
	}
}

func (p *NATSPublisher) Published() int64 { return p.published.Load() }

// SubscribeClicks feeds clicks published by any instance into rec
func SubscribeClicks(conn *nats.Conn, rec Enqueuer, logger *slog.Logger) (*nats.Subscription, error) {
	sub, err := conn.QueueSubscribe(ClickSubject, RecorderQueueGroup, clickHandler(rec, logger))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", ClickSubject, err)
	}
	logger.Info("subscribed to click events", "subject", ClickSubject, "queue_group", RecorderQueueGroup)
	return sub, nil
}

func clickHandler(rec Enqueuer, logger *slog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var event models.ClickEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("dropping malformed click event", "error", err)
			return
		}

		event.ShortCode = strings.TrimSpace(event.ShortCode)
		if event.ShortCode == "" {
			logger.Warn("dropping click event without short code")
			return
		}
		// Publishers on the bus are not trusted to send clean codes
		event.Country = utils.NormalizeCountry(event.Country)
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		if err := rec.Enqueue(event); err != nil {
			logger.Debug("click event not queued", "short_code", event.ShortCode, "error", err)
		}
	}
}
