package core

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

type logSink struct {
	mu      sync.Mutex
	entries []logEntry
}

// recordingLogger shares one sink across WithFields/WithContext copies so
// tests can inspect everything the service logged.
type recordingLogger struct {
	sink  *logSink
	bound map[string]any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{sink: &logSink{}, bound: map[string]any{}}
}

func (l *recordingLogger) WithFields(fields map[string]any) Logger {
	bound := maps.Clone(l.bound)
	maps.Copy(bound, fields)
	return &recordingLogger{sink: l.sink, bound: bound}
}

func (l *recordingLogger) WithContext(context.Context) Logger { return l }

func (l *recordingLogger) Trace(msg string, args ...any) { l.add("trace", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.add("fatal", msg, args) }

func (l *recordingLogger) add(level, msg string, args []any) {
	fields := maps.Clone(l.bound)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, logEntry{level: level, msg: msg, fields: fields})
	l.sink.mu.Unlock()
}

func (l *recordingLogger) entries() []logEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]logEntry(nil), l.sink.entries...)
}

// find returns the last entry with the given level and message.
func (l *recordingLogger) find(level, msg string) (logEntry, bool) {
	entries := l.entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].level == level && entries[i].msg == msg {
			return entries[i], true
		}
	}
	return logEntry{}, false
}

func TestOperation_AuthorizeEmitsMetricsAndLog(t *testing.T) {
	metrics := NewMemoryMetricsRecorder()
	logger := newRecordingLogger()
	svc, _, _, err := newTestService(newFakeProvider(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Authorize(context.Background(), AuthorizeRequest{UserID: "u1", OrgID: "o1"}); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	if !hasSample(metrics.Counters(), "crmconnect.authorize.total", outcomeSuccess) {
		t.Fatalf("expected authorize success counter, got %+v", metrics.Counters())
	}
	if !hasSample(metrics.Histograms(), "crmconnect.authorize.duration_ms", outcomeSuccess) {
		t.Fatalf("expected authorize duration histogram")
	}
	entry, ok := logger.find("info", "authorize succeeded")
	if !ok {
		t.Fatalf("expected authorize succeeded log, got %+v", logger.entries())
	}
	if entry.fields["event_type"] != "authorize" || entry.fields["org_id"] != "o1" {
		t.Fatalf("unexpected log fields %#v", entry.fields)
	}
}

func TestOperation_CallbackFailureCarriesErrorFields(t *testing.T) {
	metrics := NewMemoryMetricsRecorder()
	logger := newRecordingLogger()
	svc, _, _, err := newTestService(newFakeProvider(),
		WithMetricsRecorder(metrics),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.HandleCallback(context.Background(), CallbackRequest{
		Code:  "c",
		State: `{"state":"x","user_id":"u1","org_id":"o1"}`,
	})
	if err == nil {
		t.Fatalf("expected callback failure")
	}
	if !hasSample(metrics.Counters(), "crmconnect.handle_callback.total", outcomeFailure) {
		t.Fatalf("expected handle_callback failure counter")
	}

	entry, ok := logger.find("error", "handle_callback failed")
	if !ok {
		t.Fatalf("expected handle_callback failure log")
	}
	if entry.fields["error_text_code"] != ServiceErrorStateMismatch {
		t.Fatalf("expected error_text_code %q, got %#v", ServiceErrorStateMismatch, entry.fields["error_text_code"])
	}
	if entry.fields["error_category"] != goerrors.CategoryBadInput.String() {
		t.Fatalf("expected bad input category, got %#v", entry.fields["error_category"])
	}
	if entry.fields["org_id"] != "o1" || entry.fields["user_id"] != "u1" {
		t.Fatalf("expected identity fields on failure log, got %#v", entry.fields)
	}
}

func TestOperation_DurationUsesServiceClock(t *testing.T) {
	metrics := NewMemoryMetricsRecorder()
	svc, _, clock, err := newTestService(newFakeProvider(), WithMetricsRecorder(metrics))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	op := svc.begin(context.Background(), "List Items", IdentityRef{OrgID: "o1"})
	clock.Advance(250 * time.Millisecond)
	op.finish(nil)

	histograms := metrics.Histograms()
	if len(histograms) != 1 {
		t.Fatalf("expected one histogram, got %d", len(histograms))
	}
	got := histograms[0]
	if got.Name != "crmconnect.list_items.duration_ms" || got.Value != 250 {
		t.Fatalf("unexpected histogram %+v", got)
	}
	if got.Tags["org_id"] != "o1" || got.Tags["provider_id"] == "" {
		t.Fatalf("expected org and provider tags, got %#v", got.Tags)
	}
	if metrics.CounterTotals()["crmconnect.list_items.total{success}"] != 1 {
		t.Fatalf("expected one success counter, got %#v", metrics.CounterTotals())
	}
}

func TestOperationName(t *testing.T) {
	cases := map[string]string{
		" Handle Callback ": "handle_callback",
		"purge-expired":     "purge_expired",
		"":                  "unknown",
	}
	for input, want := range cases {
		if got := operationName(input); got != want {
			t.Fatalf("operationName(%q) = %q, want %q", input, got, want)
		}
	}
}

func hasSample(items []MetricSample, name string, status string) bool {
	for _, item := range items {
		if item.Name == name && item.Tags["status"] == status {
			return true
		}
	}
	return false
}
