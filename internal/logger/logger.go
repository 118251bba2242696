// Package logger prefixes log lines with the OpenTelemetry trace of the request.
package logger

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/trace"
)

// Printf logs through the standard logger. When ctx carries a valid span the
// line is prefixed with its trace and span ids.
func Printf(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if prefix := tracePrefix(ctx); prefix != "" {
		msg = prefix + msg
	}
	_ = log.Output(2, msg)
}

func tracePrefix(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("[trace=%s span=%s] ", sc.TraceID(), sc.SpanID())
}
