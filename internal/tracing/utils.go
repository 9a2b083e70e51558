package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
)

const (
	SpanTagMailboxId = "mailbox-id"
	SpanTagFolderId  = "folder-id"
	SpanTagEntityId  = "entity-id"
	SpanTagComponent = "component"
)

const (
	SpanTagComponentPostgresRepository = "postgresRepository"
	SpanTagComponentRest               = "rest"
	SpanTagComponentCronJob            = "cronJob"
	SpanTagComponentService            = "service"
	SpanTagComponentStorage            = "storage"
)

func TracingEnhancer(ctx context.Context, endpoint string) func(c *gin.Context) {
	return func(c *gin.Context) {
		ctxWithSpan, span := StartHttpServerTracerSpanWithHeader(ctx, endpoint, c.Request.Header)
		defer span.Finish()
		TagComponentRest(span)
		c.Request = c.Request.WithContext(ctxWithSpan)
		c.Next()
	}
}

func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	spanCtx, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
	if err != nil {
		serverSpan := opentracing.GlobalTracer().StartSpan(operationName)
		opentracing.GlobalTracer().Inject(serverSpan.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
		return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
	}

	serverSpan := opentracing.GlobalTracer().StartSpan(operationName, ext.RPCServerOption(spanCtx))
	return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	serverSpan := opentracing.GlobalTracer().StartSpan(operationName)
	return serverSpan, opentracing.ContextWithSpan(ctx, serverSpan)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	TagComponentService(span)
}

func SetDefaultPostgresRepositorySpanTags(ctx context.Context, span opentracing.Span) {
	TagComponentPostgresRepository(span)
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

func TagComponentPostgresRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentPostgresRepository)
}

func TagComponentCronJob(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentCronJob)
}

func TagComponentRest(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentRest)
}

func TagComponentService(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentService)
}

func TagComponentStorage(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentStorage)
}

func TagMailbox(span opentracing.Span, mailboxId string) {
	if mailboxId != "" {
		span.SetTag(SpanTagMailboxId, mailboxId)
	}
}

func TagFolder(span opentracing.Span, folderId string) {
	if folderId != "" {
		span.SetTag(SpanTagFolderId, folderId)
	}
}

func TagEntity(span opentracing.Span, entityId string) {
	if entityId != "" {
		span.SetTag(SpanTagEntityId, entityId)
	}
}

// RecoveryWithJaeger is gin middleware that records a panic as a failed span
// before re-panicking into gin's own recovery.
func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				span := tracer.StartSpan("panic." + c.FullPath())
				defer span.Finish()
				ext.Error.Set(span, true)
				span.LogKV("event", "panic", "error", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
				panic(r)
			}
		}()
		c.Next()
	}
}

// RecoverAndLogToJaeger is meant to be deferred at the top of goroutines and
// cron jobs so a panic is recorded as a failed span instead of killing the
// process.
func RecoverAndLogToJaeger(log interface{ Errorf(string, ...interface{}) }) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan("panic")
		defer span.Finish()
		ext.Error.Set(span, true)
		span.LogKV("event", "panic", "error", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
		log.Errorf("recovered from panic: %v\n%s", r, debug.Stack())
	}
}

func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	textMapCarrier := make(opentracing.TextMapCarrier)
	err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, textMapCarrier)
	if err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return textMapCarrier
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogKV(name, "nil")
		return
	}
	jsonObject, err := json.Marshal(object)
	if err == nil {
		span.LogKV(name, string(jsonObject))
	} else {
		span.LogKV(name, object)
	}
}
