// Package events is the in-process publish/subscribe channel between the
// template importer and its consumers (cache refresher, SSE relay).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Name identifies a bus event.
type Name string

const (
	Imported     Name = "template.imported"
	ImportFailed Name = "template.import_failed"
)

// TemplateImportedPayload is emitted after a successful import.
type TemplateImportedPayload struct {
	ImportID   string   `json:"importId"`
	UserID     string   `json:"userId"`
	Pages      []string `json:"pages"`
	Components []string `json:"components"`
	DurationMs int64    `json:"durationMs"`
	RequestID  string   `json:"requestId,omitempty"`
}

// TemplateImportFailedPayload is emitted when an import fails.
type TemplateImportFailedPayload struct {
	ImportID   string   `json:"importId"`
	UserID     string   `json:"userId"`
	Pages      []string `json:"pages"`
	Components []string `json:"components"`
	DurationMs int64    `json:"durationMs"`
	RequestID  string   `json:"requestId,omitempty"`
	Error      string   `json:"error"`
}

type (
	ImportedListener     func(ctx context.Context, p TemplateImportedPayload) error
	ImportFailedListener func(ctx context.Context, p TemplateImportFailedPayload) error
)

type registration[L any] struct {
	id uint64
	fn L
}

// Bus delivers events synchronously to listeners in registration order.
// A listener that returns an error or panics is logged and skipped; the
// remaining listeners still run and the emitter never sees the failure.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	imported []registration[ImportedListener]
	failed   []registration[ImportFailedListener]
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// OnImported registers fn and returns a function that removes it.
func (b *Bus) OnImported(fn ImportedListener) (dispose func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.imported = append(b.imported, registration[ImportedListener]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.imported = without(b.imported, id)
	}
}

// OnImportFailed registers fn and returns a function that removes it.
func (b *Bus) OnImportFailed(fn ImportFailedListener) (dispose func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.failed = append(b.failed, registration[ImportFailedListener]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.failed = without(b.failed, id)
	}
}

// RemoveAll clears the listeners of the named events, or of every event
// when called without arguments.
func (b *Bus) RemoveAll(names ...Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(names) == 0 {
		b.imported, b.failed = nil, nil
		return
	}
	for _, n := range names {
		switch n {
		case Imported:
			b.imported = nil
		case ImportFailed:
			b.failed = nil
		}
	}
}

// ListenerCount reports how many listeners are registered for name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case Imported:
		return len(b.imported)
	case ImportFailed:
		return len(b.failed)
	}
	return 0
}

// EmitImported delivers p to every Imported listener.
func (b *Bus) EmitImported(ctx context.Context, p TemplateImportedPayload) {
	b.mu.Lock()
	snapshot := append([]registration[ImportedListener](nil), b.imported...)
	b.mu.Unlock()
	for _, r := range snapshot {
		b.invoke(Imported, p.ImportID, func() error { return r.fn(ctx, p) })
	}
}

// EmitImportFailed delivers p to every ImportFailed listener.
func (b *Bus) EmitImportFailed(ctx context.Context, p TemplateImportFailedPayload) {
	b.mu.Lock()
	snapshot := append([]registration[ImportFailedListener](nil), b.failed...)
	b.mu.Unlock()
	for _, r := range snapshot {
		b.invoke(ImportFailed, p.ImportID, func() error { return r.fn(ctx, p) })
	}
}

func (b *Bus) invoke(name Name, importID string, call func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event listener panicked", "event", name, "import_id", importID, "panic", fmt.Sprint(rec))
		}
	}()
	if err := call(); err != nil {
		b.logger.Warn("event listener failed", "event", name, "import_id", importID, "error", err)
	}
}

func without[L any](regs []registration[L], id uint64) []registration[L] {
	out := make([]registration[L], 0, len(regs))
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}
