package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tasksTracerName  = "simplr/tasks"
	tasksEventDomain = "simplr.tasks"

	sweepSpanName  = "simplr.tasks.sweep"
	sweepEventName = "tasks.sweep"

	maintenanceSpanName  = "simplr.tasks.maintenance"
	maintenanceEventName = "tasks.maintenance"
)

// opMetrics collects counters for one sweep or maintenance run and emits
// them once as an observability event: a structured log entry plus a span
// with a matching span event.
type opMetrics struct {
	logger *log.Logger
	span   trace.Span
	event  string
	start  time.Time

	scanned int
	flagged int

	orphansCleared int
	redriven       int
	collapsePruned int
	pendingLeft    int
}

func newSweepMetrics(ctx context.Context, logger *log.Logger) (*opMetrics, context.Context) {
	return newOpMetrics(ctx, logger, sweepSpanName, sweepEventName)
}

func newMaintenanceMetrics(ctx context.Context, logger *log.Logger) (*opMetrics, context.Context) {
	return newOpMetrics(ctx, logger, maintenanceSpanName, maintenanceEventName)
}

func newOpMetrics(ctx context.Context, logger *log.Logger, spanName, eventName string) (*opMetrics, context.Context) {
	ctx, span := otel.Tracer(tasksTracerName).Start(ctx, spanName)
	return &opMetrics{
		logger: logger,
		span:   span,
		event:  eventName,
		start:  time.Now(),
	}, ctx
}

func (m *opMetrics) SetScanned(count int) {
	if count < 0 {
		count = 0
	}
	m.scanned = count
}

func (m *opMetrics) SetFlagged(count int) {
	if count < 0 {
		count = 0
	}
	m.flagged = count
}

func (m *opMetrics) SetOrphansCleared(count int) { m.orphansCleared = count }
func (m *opMetrics) SetRedriven(count int)       { m.redriven = count }
func (m *opMetrics) SetCollapsePruned(count int) { m.collapsePruned = count }
func (m *opMetrics) SetPendingLeft(count int)    { m.pendingLeft = count }

// Log emits the collected counters and ends the span. Severity escalates
// to WARN while collaborator retries are outstanding and to ERROR when
// the run itself failed.
func (m *opMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}

	attrs := map[string]any{
		"simplr.tasks.total_ms": durationToMillis(time.Since(m.start)),
	}
	switch m.event {
	case sweepEventName:
		attrs["simplr.tasks.scanned"] = m.scanned
		attrs["simplr.tasks.overdue_flagged"] = m.flagged
	case maintenanceEventName:
		attrs["simplr.tasks.orphans_cleared"] = m.orphansCleared
		attrs["simplr.tasks.redriven"] = m.redriven
		attrs["simplr.tasks.collapse_pruned"] = m.collapsePruned
		attrs["simplr.tasks.pending_left"] = m.pendingLeft
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	severityText, severityNumber := severityForOutcome(err, m.pendingLeft > 0)

	fields := log.Fields{
		"event.name":      m.event,
		"event.domain":    tasksEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}

	if m.span != nil {
		spanAttrs := attributesFromMap(attrs)
		m.span.SetAttributes(spanAttrs...)

		eventAttrs := append(spanAttrs,
			attribute.String("event.name", m.event),
			attribute.String("event.domain", tasksEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

// severityForOutcome maps a run's result onto log severity numbers:
// INFO 9, WARN 13, ERROR 17.
func severityForOutcome(err error, degraded bool) (string, int) {
	switch {
	case err != nil:
		return "ERROR", 17
	case degraded:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesFromMap(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for key, val := range attrs {
		switch v := val.(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
