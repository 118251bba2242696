package logger

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestPrintf_WithoutSpan(t *testing.T) {
	buf := captureLog(t)

	Printf(context.Background(), "cart %s loaded", "d1")

	assert.Equal(t, "cart d1 loaded\n", buf.String())
}

func TestPrintf_WithSpan(t *testing.T) {
	buf := captureLog(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	Printf(ctx, "merge failed")

	assert.Equal(t, "[trace=4bf92f3577b34da6a3ce929d0e0e4736 span=00f067aa0ba902b7] merge failed\n", buf.String())
}
