// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	draftSaves      otelmetric.Int64Counter
	submissions     otelmetric.Int64Counter
	columnRetries   otelmetric.Int64Counter
	submitDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	draftSaves, _ := meter.Int64Counter(
		"drafts.saved",
		otelmetric.WithDescription("Number of draft saves by tier and outcome"),
	)

	submissions, _ := meter.Int64Counter(
		"applications.submitted",
		otelmetric.WithDescription("Number of application submissions by outcome"),
	)

	columnRetries, _ := meter.Int64Counter(
		"applications.column_retries",
		otelmetric.WithDescription("Insert retries caused by missing optional columns"),
	)

	submitDuration, _ := meter.Float64Histogram(
		"applications.submit_duration",
		otelmetric.WithDescription("Submission processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		draftSaves:     draftSaves,
		submissions:    submissions,
		columnRetries:  columnRetries,
		submitDuration: submitDuration,
	}
}

func (o *Observability) RecordDraftSave(ctx context.Context, tier, status string) {
	if o.draftSaves != nil {
		o.draftSaves.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordSubmission(ctx context.Context, status string) {
	if o.submissions != nil {
		o.submissions.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordColumnRetry(ctx context.Context, column string) {
	if o.columnRetries != nil {
		o.columnRetries.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("column", column),
		))
	}
}

func (o *Observability) RecordSubmitDuration(ctx context.Context, duration time.Duration, status string) {
	if o.submitDuration != nil {
		o.submitDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
