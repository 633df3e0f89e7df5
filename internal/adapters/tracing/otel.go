package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/longregen/counsel"

type Config struct {
	ServiceName string
	Environment string
	// Output receives exported spans. Nil means stderr.
	Output      io.Writer
	PrettyPrint bool
}

// InitTracer installs a global tracer provider exporting to stdout and returns
// its shutdown func.
func InitTracer(cfg Config) (func(context.Context) error, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer returns the service tracer. It is a no-op until InitTracer runs.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Span attribute keys
const (
	AttrConversationID = "conversation.id"
	AttrUserID         = "user.id"
	AttrMessageID      = "message.id"
	AttrToolName       = "tool.name"
	AttrToolStatus     = "tool.status"
	AttrLLMModel       = "llm.model"
	AttrWSEvent        = "ws.event"
)

func ConversationID(id string) attribute.KeyValue { return attribute.String(AttrConversationID, id) }
func UserID(id string) attribute.KeyValue         { return attribute.String(AttrUserID, id) }
func MessageID(id string) attribute.KeyValue      { return attribute.String(AttrMessageID, id) }
func ToolName(name string) attribute.KeyValue     { return attribute.String(AttrToolName, name) }
func ToolStatus(s string) attribute.KeyValue      { return attribute.String(AttrToolStatus, s) }
func LLMModel(model string) attribute.KeyValue    { return attribute.String(AttrLLMModel, model) }
func WSEvent(event string) attribute.KeyValue     { return attribute.String(AttrWSEvent, event) }
