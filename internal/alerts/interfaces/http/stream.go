package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	alertapp "water-quality-cloud/internal/alerts/application"
	quality "water-quality-cloud/internal/quality/domain"
)

const subscriberBuffer = 16

// StreamFilter narrows the alert events a subscriber receives. Zero values match everything.
type StreamFilter struct {
	Location    string
	MinSeverity quality.Severity
}

// Match reports whether event passes the filter.
func (f StreamFilter) Match(event alertapp.Event) bool {
	if f.Location != "" && !strings.EqualFold(f.Location, event.Alert.Location) {
		return false
	}
	if f.MinSeverity != "" && !quality.Severity(event.Alert.Severity).AtLeast(f.MinSeverity) {
		return false
	}
	return true
}

// Subscription receives matching alert events on C until it is unsubscribed.
type Subscription struct {
	C      <-chan alertapp.Event
	ch     chan alertapp.Event
	filter StreamFilter
}

// SSEBroker fans out alert lifecycle events to stream subscribers.
type SSEBroker struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subs: make(map[*Subscription]struct{})}
}

// Notify implements alertapp.Notifier. A subscriber with a full buffer misses the event.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe registers a subscriber for events matching filter.
func (b *SSEBroker) Subscribe(filter StreamFilter) *Subscription {
	if b == nil {
		return nil
	}
	ch := make(chan alertapp.Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, filter: filter}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (b *SSEBroker) Unsubscribe(sub *Subscription) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// StreamHandler serves alert events as server-sent events.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream?location=&min_severity=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	filter := StreamFilter{Location: strings.TrimSpace(r.URL.Query().Get("location"))}
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		filter.MinSeverity = quality.Severity(strings.ToLower(raw))
		if !filter.MinSeverity.Valid() {
			http.Error(w, "invalid min_severity", http.StatusBadRequest)
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.broker.Subscribe(filter)
	defer h.broker.Unsubscribe(sub)

	_, _ = fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent frames one lifecycle event, named after its type and keyed by alert id.
func writeEvent(w http.ResponseWriter, event alertapp.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Alert.ID, event.Type, payload)
	return err
}
