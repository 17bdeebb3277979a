package logging

import (
	"context"
	"log/slog"
	"time"
)

// Span times one stage of work, such as a metadata probe or an upload.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan derives a child logger tagged with the stage name and returns the
// enriched context together with the span handle.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx).With(slog.String("span", name))
	if parent, ok := ctx.Value(spanKey).(string); ok && parent != "" {
		logger = logger.With(slog.String("parent_span", parent))
	}

	ctx = WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, spanKey, name)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// RecordError marks the span as failed; End reports it.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.err = err
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := time.Since(s.start)
	if s.err != nil {
		s.logger.Warn("span failed", slog.Duration("duration", elapsed), slog.Any("error", s.err))
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", elapsed))
}
