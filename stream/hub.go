package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message is one server-sent event.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clientChan chan Message

// Hub fans broadcast messages out to connected SSE clients. Slow clients
// miss messages rather than blocking the broadcaster.
type Hub struct {
	clients   sync.Map
	logger    zerolog.Logger
	KeepAlive time.Duration
}

// NewHub creates a Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:    logger.With().Str("component", "stream").Logger(),
		KeepAlive: 30 * time.Second,
	}
}

func (h *Hub) addClient(c clientChan) {
	h.logger.Debug().Msg("adding client")
	h.clients.Store(c, true)
}

func (h *Hub) removeClient(c clientChan) {
	h.logger.Debug().Msg("removing client")
	h.clients.Delete(c)
}

// Broadcast marshals v and sends it to all registered clients.
func (h *Hub) Broadcast(eventType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("marshal event")
		return
	}
	h.send(Message{Type: eventType, Data: data})
}

func (h *Hub) send(msg Message) {
	h.clients.Range(func(key, value any) bool {
		c := key.(clientChan)
		select {
		case c <- msg:
		default: // Skip if the channel is full
		}
		return true
	})
}

// EventLog is the event type of log lines relayed by LogWriter.
const EventLog = "log"

// LogWriter returns a writer that relays each JSON log line to the
// connected clients as a "log" event. Anything that is not JSON is dropped.
func (h *Hub) LogWriter() io.Writer { return logWriter{h} }

type logWriter struct{ h *Hub }

func (w logWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSpace(p)
	if len(line) > 0 && json.Valid(line) {
		w.h.send(Message{Type: EventLog, Data: append(json.RawMessage(nil), line...)})
	}
	return len(p), nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	n := 0
	h.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

// ServeHTTP handles the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Del("Content-Encoding")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(clientChan, 64)
	h.addClient(messageChan)
	defer h.removeClient(messageChan)

	ctx := r.Context()
	ticker := time.NewTicker(h.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-messageChan:
			if _, err := io.WriteString(w, formatSSE(msg)); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func formatSSE(msg Message) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Type, msg.Data)
}
