package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelroom/reelroom/internal/queue"
)

func StartJobSpan(ctx context.Context, queueName, jobID string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, "job.process."+queueName,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String("job.queue", queueName),
		attribute.String("job.id", jobID),
	)
	return ctx, span
}

// JobMiddleware wraps each job attempt in a consumer span.
func JobMiddleware() queue.Middleware {
	return func(next queue.Handler) queue.Handler {
		return func(ctx context.Context, job *queue.Job) error {
			ctx, span := StartJobSpan(ctx, job.Queue, job.ID)
			defer span.End()

			span.SetAttributes(attribute.Int("job.attempt", job.Attempts))

			err := next(ctx, job)
			if err != nil {
				if _, requeued := queue.AsRequeue(err); !requeued {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
			}
			return err
		}
	}
}
