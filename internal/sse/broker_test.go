package sse

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/stencil/internal/events"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeTemplateAdded, Data: map[string]string{"slug": "hero"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: template.added") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"slug":"hero"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) (catalog, templates int) {
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), TypeCatalogUpdated) {
				catalog++
			} else {
				templates++
			}
		default:
			return
		}
	}
}

func TestPublishTemplateEvent_CatalogThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTemplateEvent("added", "hero")
	b.PublishTemplateEvent("updated", "card")
	b.PublishTemplateEvent("bogus", "ignored")

	time.Sleep(50 * time.Millisecond)
	catalog, templates := drain(ch)
	if templates != 2 {
		t.Errorf("template events = %d, want 2", templates)
	}
	if catalog != 1 {
		t.Errorf("catalog events = %d, want 1 (throttled)", catalog)
	}
}

func TestPublishTemplateEvent_ThrottleExpires(t *testing.T) {
	b := NewBroker(50 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTemplateEvent("added", "a")
	time.Sleep(80 * time.Millisecond)
	b.PublishTemplateEvent("removed", "a")
	time.Sleep(30 * time.Millisecond)

	if catalog, _ := drain(ch); catalog != 2 {
		t.Errorf("catalog events = %d, want 2", catalog)
	}
}

func TestAttachBusRelaysImports(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	bus := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	detach := b.AttachBus(bus)

	bus.EmitImported(context.Background(), events.TemplateImportedPayload{ImportID: "imp-1", Components: []string{"hero"}})
	bus.EmitImportFailed(context.Background(), events.TemplateImportFailedPayload{ImportID: "imp-2", Error: "boom"})

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-timeout:
			t.Fatalf("timeout, got %d messages", len(got))
		}
	}
	if !strings.Contains(got[0], "event: template.imported") || !strings.Contains(got[0], `"importId":"imp-1"`) {
		t.Errorf("unexpected first message %q", got[0])
	}
	if !strings.Contains(got[1], "event: template.import_failed") || !strings.Contains(got[1], `"error":"boom"`) {
		t.Errorf("unexpected second message %q", got[1])
	}

	detach()
	if n := bus.ListenerCount(events.Imported); n != 0 {
		t.Errorf("listeners after detach = %d", n)
	}
}

// syncRecorder guards the body so the test can read it while the handler
// is still writing.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeTemplateUpdate, Data: map[string]string{"slug": "hero"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: template.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("handler output missing heartbeat: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Client buffer holds 64; the extra publishes must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: TypeTemplateUpdate, Data: map[string]string{"slug": "x"}})
	b.PublishTemplateEvent("updated", "x")
}
