package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func quietBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmitImported_OrderAndIsolation(t *testing.T) {
	b := quietBus()
	var calls []string
	b.OnImported(func(context.Context, TemplateImportedPayload) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	b.OnImported(func(context.Context, TemplateImportedPayload) error {
		calls = append(calls, "second")
		panic("listener exploded")
	})
	b.OnImported(func(_ context.Context, p TemplateImportedPayload) error {
		calls = append(calls, "third:"+p.ImportID)
		return nil
	})

	assert.NotPanics(t, func() {
		b.EmitImported(context.Background(), TemplateImportedPayload{ImportID: "imp-1"})
	})
	assert.Equal(t, []string{"first", "second", "third:imp-1"}, calls)
}

func TestDisposer(t *testing.T) {
	b := quietBus()
	n := 0
	dispose := b.OnImportFailed(func(context.Context, TemplateImportFailedPayload) error {
		n++
		return nil
	})
	b.EmitImportFailed(context.Background(), TemplateImportFailedPayload{Error: "x"})
	dispose()
	dispose()
	b.EmitImportFailed(context.Background(), TemplateImportFailedPayload{Error: "x"})
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.ListenerCount(ImportFailed))
}

func TestRemoveAll(t *testing.T) {
	b := quietBus()
	noopImported := func(context.Context, TemplateImportedPayload) error { return nil }
	noopFailed := func(context.Context, TemplateImportFailedPayload) error { return nil }

	b.OnImported(noopImported)
	b.OnImportFailed(noopFailed)
	b.RemoveAll(Imported)
	assert.Equal(t, 0, b.ListenerCount(Imported))
	assert.Equal(t, 1, b.ListenerCount(ImportFailed))

	b.OnImported(noopImported)
	b.RemoveAll()
	assert.Equal(t, 0, b.ListenerCount(Imported))
	assert.Equal(t, 0, b.ListenerCount(ImportFailed))
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	b := quietBus()
	var dispose func()
	n := 0
	dispose = b.OnImported(func(context.Context, TemplateImportedPayload) error {
		n++
		dispose()
		return nil
	})
	b.EmitImported(context.Background(), TemplateImportedPayload{})
	b.EmitImported(context.Background(), TemplateImportedPayload{})
	assert.Equal(t, 1, n)
}
