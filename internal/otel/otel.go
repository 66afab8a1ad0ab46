package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup exports traces to an OTLP collector and subscribes the span builder
// to bus. If endpoint is empty, no telemetry is configured.
func Setup(bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	Subscribe(bus, tp.Tracer("gqlhttp"))
	return tp.Shutdown, nil
}

// Subscribe turns pipeline events on bus into spans: one http.request span
// per request with a graphql.operation child.
func Subscribe(bus *eventbus.Bus, tracer trace.Tracer) {
	s := &subscriber{tracer: tracer}
	s.register(bus)
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // local request id -> trace.Span
	gqlSpans  sync.Map // local request id -> trace.Span
}

func (s *subscriber) register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		key, _ := reqid.LocalFromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
			attribute.String("http.request_id", rid),
		)
		s.httpSpans.Store(key, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
		key, _ := reqid.LocalFromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(key)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.BodyResolved) {
		key, _ := reqid.LocalFromContext(ctx)
		v, ok := s.httpSpans.Load(key)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.AddEvent("body.resolved", trace.WithAttributes(attribute.String("http.request.content_type", e.ContentType)))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.GraphQLStart) {
		key, _ := reqid.LocalFromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(key); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
		)
		s.gqlSpans.Store(key, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.GraphQLFinish) {
		key, _ := reqid.LocalFromContext(ctx)
		v, ok := s.gqlSpans.LoadAndDelete(key)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
		for _, err := range e.Errors {
			span.RecordError(err)
		}
		span.End()
	})
}
