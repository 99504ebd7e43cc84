package trigger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mweyns/unshacled/internal/task"
)

var propagator = propagation.TraceContext{}

// EventTrigger schedules a task.Task whenever a message matching its
// filter arrives on a NATS subject.
type EventTrigger struct {
	nc        *nats.Conn
	processor Scheduler
	logger    *slog.Logger
}

// NewEventTrigger builds an event-driven trigger against processor.
func NewEventTrigger(nc *nats.Conn, processor Scheduler, logger *slog.Logger) *EventTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventTrigger{nc: nc, processor: processor, logger: logger}
}

// Filter is an equality match against the decoded JSON payload: every key
// in Filter must be present in the decoded message with an equal value.
type Filter map[string]any

func matches(data map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := data[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Subscribe registers factory to be called, and its resulting task.Task
// scheduled, for every message on subject whose decoded JSON body matches
// filter. Trace context is extracted from the NATS header, so a producer's
// span remains the parent of the schedule call.
func (e *EventTrigger) Subscribe(subject string, filter Filter, factory func(data map[string]any) *task.Task) (*nats.Subscription, error) {
	return e.nc.Subscribe(subject, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		ctx := propagator.Extract(context.Background(), carrier)
		tracer := otel.Tracer("unshacled-trigger")
		deliveryID := uuid.New().String()
		_, span := tracer.Start(ctx, "trigger.event", trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("unshacled.delivery_id", deliveryID)))
		defer span.End()

		var data map[string]any
		if err := json.Unmarshal(m.Data, &data); err != nil {
			e.logger.Warn("event trigger: malformed payload", "subject", subject, "error", err)
			return
		}
		if !matches(data, filter) {
			return
		}

		t := factory(data)
		if t == nil {
			return
		}
		in := e.processor.Schedule(t)
		e.logger.Info("event trigger fired", "subject", subject, "delivery_id", deliveryID, "instruction", in.Index())
	})
}
