package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"estatecore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if line.level == level {
			n++
		}
	}
	return n
}

func TestServiceObservabilityHooks(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	logger := &captureLogger{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	svc := NewInMemoryService(
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	ctx := context.Background()

	prop, err := svc.AddProperty(ctx, "1 Main", domain.PropertyTypeHouse, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.GetTenant(ctx, 99); err == nil {
		t.Fatalf("expected NotFound")
	}

	if !audit.has(OpAddProperty, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == prop.ID && e.Entity == domain.EntityProperty && e.RecordedAt.Equal(fixed) && e.ID != ""
	}) {
		t.Fatalf("expected add_property success audit, got %+v", audit.entries)
	}
	if !audit.has(OpGetTenant, AuditStatusError, func(e AuditEntry) bool {
		return e.Error == "Tenant with id=99 not found"
	}) {
		t.Fatalf("expected get_tenant error audit, got %+v", audit.entries)
	}
	if !metrics.has(OpAddProperty, true) || !metrics.has(OpGetTenant, false) {
		t.Fatalf("unexpected metrics calls %+v", metrics.calls)
	}

	spans := tracer.Entries()
	if len(spans) != 2 || spans[0].Operation != OpAddProperty || spans[1].Status != string(AuditStatusError) {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if logger.count("debug") != 1 || logger.count("warn") != 1 || logger.count("error") != 0 {
		t.Fatalf("unexpected log levels %+v", logger.lines)
	}
}

type brokenStore struct {
	domain.PersistentStore
}

type brokenCell struct{}

func (brokenCell) Get() (uint64, error) { return 0, nil }
func (brokenCell) Set(uint64) error     { return errors.New("disk full") }

func (b brokenStore) Counter(domain.RegionID) (domain.Cell, error) { return brokenCell{}, nil }

func TestInfrastructureFailuresLogAtError(t *testing.T) {
	logger := &captureLogger{}
	svc, err := NewService(brokenStore{PersistentStore: NewInMemoryService().Store()}, WithLogger(logger))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.AddTenant(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected wrapped persistence error, got %v", err)
	}
	if logger.count("error") != 1 {
		t.Fatalf("expected one error log, got %+v", logger.lines)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(WithMetricsRecorder(recorder))
	ctx := context.Background()
	_, _ = svc.AddTenant(ctx, "a")
	_, _ = svc.AddTenant(ctx, "b")
	_ = svc.DeleteTenant(ctx, 99)

	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(OpAddTenant, "success")); got != 2 {
		t.Fatalf("expected 2 add_tenant successes, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(OpDeleteTenant, "error")); got != 1 {
		t.Fatalf("expected 1 delete_tenant error, got %v", got)
	}
	if n := testutil.CollectAndCount(recorder.durations); n != 2 {
		t.Fatalf("expected 2 duration series, got %d", n)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register on same registry: %v", err)
	}
	again.Observe(ctx, OpAddTenant, true, time.Millisecond)
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(OpAddTenant, "success")); got != 3 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "op")
	span.End(errors.New("boom"))

	var entry JSONTraceEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode trace line: %v", err)
	}
	if entry.Operation != "op" || entry.Status != "error" || entry.Error != "boom" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestLoggerAuditRecorder(t *testing.T) {
	logger := &captureLogger{}
	rec := NewLoggerAuditRecorder(logger)
	rec.Record(context.Background(), AuditEntry{ID: "a1", Operation: OpGetTenant, Status: AuditStatusError, Error: "nope"})
	if len(logger.lines) != 1 || logger.lines[0].msg != "audit" {
		t.Fatalf("expected one audit line, got %+v", logger.lines)
	}
	args := logger.lines[0].args
	if args[len(args)-2] != "error" || args[len(args)-1] != "nope" {
		t.Fatalf("expected trailing error field, got %v", args)
	}
	NewLoggerAuditRecorder(nil).Record(context.Background(), AuditEntry{})
}
