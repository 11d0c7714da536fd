// Package events provides event sinks for registry notifications. Sinks are
// called after a command commits; their failures never undo the command.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"unitledger/pkg/domain"
)

// Sink receives registry events.
type Sink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs to logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs the event at info level.
func (s *LogSink) Publish(ctx context.Context, event domain.Event) error {
	s.logger.InfoContext(ctx, "registry event",
		"kind", string(event.Kind),
		"from", string(event.From),
		"to", string(event.To),
		"unit_id", uint32(event.UnitID),
	)
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Publish appends the event.
func (r *Recorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Publish delivers to all sinks even when some fail.
func (m Multi) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
