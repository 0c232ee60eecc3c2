// Package sse streams catalog and import activity to browsers as
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/stencil/internal/events"
)

// Event types broadcast by the broker.
const (
	TypeImported       = "template.imported"
	TypeImportFailed   = "template.import_failed"
	TypeTemplateAdded  = "template.added"
	TypeTemplateUpdate = "template.updated"
	TypeTemplateRemove = "template.removed"
	TypeCatalogUpdated = "catalog.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type templateEventReq struct {
	kind string
	slug string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set and the catalog
// throttle timestamp; public methods talk to it over channels.
type Broker struct {
	catalogMin time.Duration
	heartbeat  time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	templateCh    chan templateEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat makes ServeHTTP write a comment line every d so idle
// proxies keep the stream open. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker creates a broker that emits catalog.updated at most once per
// catalogThrottle.
func NewBroker(catalogThrottle time.Duration, opts ...Option) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		templateCh:    make(chan templateEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCatalog time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.templateCh:
			data := map[string]string{"slug": req.slug}
			switch req.kind {
			case "added":
				broadcast(Event{Type: TypeTemplateAdded, Data: data})
			case "updated":
				broadcast(Event{Type: TypeTemplateUpdate, Data: data})
			case "removed":
				broadcast(Event{Type: TypeTemplateRemove, Data: data})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishTemplateEvent announces a catalog change (kind is added, updated
// or removed) followed by a throttled catalog.updated.
func (b *Broker) PublishTemplateEvent(kind, slug string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.templateCh <- templateEventReq{kind: kind, slug: slug}:
	case <-b.stopped:
	}
}

// AttachBus relays import outcomes from bus to connected clients. The
// returned func detaches both listeners.
func (b *Broker) AttachBus(bus *events.Bus) (detach func()) {
	offOK := bus.OnImported(func(_ context.Context, p events.TemplateImportedPayload) error {
		b.Publish(Event{Type: TypeImported, Data: p})
		return nil
	})
	offFail := bus.OnImportFailed(func(_ context.Context, p events.TemplateImportFailedPayload) error {
		b.Publish(Event{Type: TypeImportFailed, Data: p})
		return nil
	})
	return func() {
		offOK()
		offFail()
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
