package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	creditOps           metric.Int64Counter
	insufficientCredits metric.Int64Counter
	balanceConflicts    metric.Int64Counter
	webhookDeliveries   metric.Int64Counter
	outboxDispatched    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditrail"
	}
	meter := provider.Meter(name)

	creditOps, err := meter.Int64Counter("creditrail_credit_operations_total")
	if err != nil {
		return nil, err
	}
	insufficientCredits, err := meter.Int64Counter("creditrail_insufficient_credits_total")
	if err != nil {
		return nil, err
	}
	balanceConflicts, err := meter.Int64Counter("creditrail_balance_conflicts_total")
	if err != nil {
		return nil, err
	}
	webhookDeliveries, err := meter.Int64Counter("creditrail_webhook_deliveries_total")
	if err != nil {
		return nil, err
	}
	outboxDispatched, err := meter.Int64Counter("creditrail_outbox_dispatched_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		creditOps:           creditOps,
		insufficientCredits: insufficientCredits,
		balanceConflicts:    balanceConflicts,
		webhookDeliveries:   webhookDeliveries,
		outboxDispatched:    outboxDispatched,
	}, nil
}

// RecordCreditOperation increments ledger operation counts.
func (m *Metrics) RecordCreditOperation(ctx context.Context, opType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("op_type", strings.TrimSpace(opType)))
	m.creditOps.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInsufficientCredits increments rejected deduct counts.
func (m *Metrics) RecordInsufficientCredits(ctx context.Context) {
	if m == nil {
		return
	}
	m.insufficientCredits.Add(ctx, 1)
}

// RecordBalanceConflict increments optimistic-lock conflict counts.
func (m *Metrics) RecordBalanceConflict(ctx context.Context, opType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("op_type", strings.TrimSpace(opType)))
	m.balanceConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookDelivery increments delivery attempt counts.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, eventType string, statusCode int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("status_code", strconv.Itoa(statusCode)),
	)
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOutboxDispatch increments relay dispatch counts.
func (m *Metrics) RecordOutboxDispatch(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.outboxDispatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"event_type":  {},
	"op_type":     {},
	"method":      {},
	"route":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
