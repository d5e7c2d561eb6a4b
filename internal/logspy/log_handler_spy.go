// Package logspy captures slog records so tests can assert on warnings.
package logspy

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

type store struct {
	mu      sync.Mutex
	records []slog.Record
}

// LogHandlerSpy is a slog.Handler that keeps every record it receives.
// Handlers derived through WithAttrs share the captured records and stamp
// their attributes onto each one.
type LogHandlerSpy struct {
	*store
	attrs []slog.Attr
}

func New() *LogHandlerSpy {
	return &LogHandlerSpy{store: &store{records: make([]slog.Record, 0)}}
}

// Logger returns a logger writing to the spy.
func (s *LogHandlerSpy) Logger() *slog.Logger {
	return slog.New(s)
}

func (s *LogHandlerSpy) Handle(_ context.Context, record slog.Record) error {
	captured := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	captured.AddAttrs(s.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		captured.AddAttrs(attr)
		return true
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, captured)
	return nil
}

func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (s *LogHandlerSpy) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandlerSpy{store: s.store, attrs: append(slices.Clip(s.attrs), attrs...)}
}

// WithGroup is ignored; captured attributes stay flat.
func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

func (s *LogHandlerSpy) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a copy of the captured records.
func (s *LogHandlerSpy) Records() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]slog.Record, len(s.records))
	copy(records, s.records)
	return records
}

func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}

// CountLevel returns how many records were logged at level.
func (s *LogHandlerSpy) CountLevel(level slog.Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, record := range s.records {
		if record.Level == level {
			n++
		}
	}
	return n
}

// RecordMatcher is a fluent check against one captured record.
type RecordMatcher struct {
	record *slog.Record
	found  bool
}

// HasWarnWithMessage starts a check for a warn-level record with message.
func (s *LogHandlerSpy) HasWarnWithMessage(message string) *RecordMatcher {
	return s.find(slog.LevelWarn, message)
}

// HasErrorWithMessage starts a check for an error-level record with message.
func (s *LogHandlerSpy) HasErrorWithMessage(message string) *RecordMatcher {
	return s.find(slog.LevelError, message)
}

func (s *LogHandlerSpy) find(level slog.Level, message string) *RecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Level == level && s.records[i].Message == message {
			record := s.records[i]
			return &RecordMatcher{record: &record, found: true}
		}
	}
	return &RecordMatcher{}
}

// WithAttr narrows the match to records carrying key.
func (m *RecordMatcher) WithAttr(key string) *RecordMatcher {
	if !m.found {
		return m
	}
	has := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			has = true
			return false
		}
		return true
	})
	m.found = has
	return m
}

func (m *RecordMatcher) Assert() bool {
	return m.found
}
