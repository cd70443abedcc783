package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"scaler-service/utils"
)

// heartbeatInterval keeps idle SSE connections open through proxies
var heartbeatInterval = 30 * time.Second

type ClickUpdate struct {
	ShortCode   string `json:"short_code"`
	Delta       int64  `json:"delta,omitempty"`
	TotalClicks int64  `json:"total_clicks,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SSEBroker fans click updates out to Server-Sent Events subscribers.
// It implements workers.Notifier.
type SSEBroker struct {
	clients   map[string]map[chan []byte]bool
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		clients: make(map[string]map[chan []byte]bool),
		done:    make(chan struct{}),
	}
}

// Close ends every open stream. Register it with http.Server.RegisterOnShutdown.
func (b *SSEBroker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *SSEBroker) AddClient(shortCode string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clients[shortCode] == nil {
		b.clients[shortCode] = make(map[chan []byte]bool)
	}
	b.clients[shortCode][ch] = true
}

func (b *SSEBroker) RemoveClient(shortCode string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[shortCode]; ok {
		delete(clients, ch)
		if len(clients) == 0 {
			delete(b.clients, shortCode)
		}
	}
}

// Broadcast never blocks; a slow client misses the message
func (b *SSEBroker) Broadcast(shortCode string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients[shortCode] {
		select {
		case ch <- data:
		default:
		}
	}
}

func (b *SSEBroker) Notify(code string, delta int64) {
	b.mu.RLock()
	listening := len(b.clients[code]) > 0
	b.mu.RUnlock()
	if !listening {
		return
	}

	data, err := json.Marshal(ClickUpdate{
		ShortCode: code,
		Delta:     delta,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	b.Broadcast(code, data)
}

func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, clients := range b.clients {
		n += len(clients)
	}
	return n
}

// GetAnalytics handles GET /api/analytics: clicks per country, busiest first
func GetAnalytics(dashboard DashboardReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := dashboard.CountryBreakdown(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

// StreamClicks handles GET /api/links/{code}/stream (SSE). The first event
// carries the stored total; later events carry deltas.
func StreamClicks(links LinkFinder, broker *SSEBroker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !utils.IsValidCode(code) {
			writeError(w, http.StatusNotFound, "Link not found")
			return
		}

		link, err := links.FindByCode(r.Context(), code)
		if err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering in nginx

		clientChan := make(chan []byte, 10)
		broker.AddClient(code, clientChan)
		defer broker.RemoveClient(code, clientChan)

		initial, _ := json.Marshal(ClickUpdate{
			ShortCode:   code,
			TotalClicks: link.Clicks,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		})
		fmt.Fprintf(w, "data: %s\n\n", initial)
		flusher.Flush()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case msg := <-clientChan:
				if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
					logger.DebugContext(r.Context(), "sse write failed", "short_code", code, "error", err)
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			case <-broker.done:
				return
			}
		}
	}
}
