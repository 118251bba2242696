package dedup

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTrack_ConcurrentSameKeyRunsOnce(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	op := func() error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	var firstRan bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRan, _ = g.Track(ctx, "X", op)
	}()

	<-entered
	secondRan, err := g.Track(ctx, "X", op)
	require.NoError(t, err)
	assert.False(t, secondRan, "second caller should be skipped")

	close(release)
	wg.Wait()

	assert.True(t, firstRan)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, g.Active("X"))
}

func TestTrack_DifferentKeysRunIndependently(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()
	release := make(chan struct{})
	done := make(chan bool, 1)

	go func() {
		ran, _ := g.Track(ctx, "A", func() error {
			<-release
			return nil
		})
		done <- ran
	}()

	require.Eventually(t, func() bool { return g.Active("A") }, time.Second, time.Millisecond)

	ran, err := g.Track(ctx, "B", func() error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)

	close(release)
	assert.True(t, <-done)
}

func TestTrack_ReleasesKeyOnError(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()

	ran, err := g.Track(ctx, "X", func() error { return errors.New("boom") })
	assert.True(t, ran)
	require.EqualError(t, err, "boom")
	assert.False(t, g.Active("X"))

	ran, err = g.Track(ctx, "X", func() error { return nil })
	assert.True(t, ran)
	assert.NoError(t, err)
}

func TestTrack_ReleasesKeyOnPanic(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()

	assert.Panics(t, func() {
		_, _ = g.Track(ctx, "X", func() error { panic("boom") })
	})
	assert.False(t, g.Active("X"))
}

func TestTrack_SkipLogCarriesTrace(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	g := NewGuard()
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Track(context.Background(), "X", func() error {
			<-release
			return nil
		})
	}()
	require.Eventually(t, func() bool { return g.Active("X") }, time.Second, time.Millisecond)

	ran, err := g.Track(ctx, "X", func() error { return nil })
	close(release)
	<-done

	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, "[trace=4bf92f3577b34da6a3ce929d0e0e4736 span=00f067aa0ba902b7] dedup: X already in flight, skipped\n", buf.String())
}

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		params map[string]any
		want   string
	}{
		{"no params", "fetchAllCategories", nil, "fetchAllCategories"},
		{"empty params", "fetchCart", map[string]any{}, "fetchCart"},
		{"sorted params", "fetchProducts", map[string]any{"page": 1, "limit": 20}, "fetchProducts_limit=20&page=1"},
		{"string params", "fetchCart", map[string]any{"device": "d1"}, "fetchCart_device=d1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.op, tt.params))
		})
	}
}

func TestKey_OrderIndependent(t *testing.T) {
	a := Key("search", map[string]any{"q": "serum", "page": 2, "limit": 10})
	b := Key("search", map[string]any{"limit": 10, "q": "serum", "page": 2})
	assert.Equal(t, a, b)
}
