// Package metrics exposes playback counters through OpenTelemetry and a
// Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const meterName = "github.com/dgnsrekt/promptdj"

// Fragment results.
const (
	FragmentScheduled   = "scheduled"
	FragmentDropped     = "dropped"
	FragmentUnderrun    = "underrun"
	FragmentDecodeError = "decode_error"
)

// Recorder records playback metrics. A nil *Recorder discards everything.
type Recorder struct {
	fragments   metric.Int64Counter
	transitions metric.Int64Counter
	connects    metric.Int64Counter
	bytes       metric.Int64Counter
	lookahead   metric.Float64Histogram
	level       metric.Float64ObservableGauge
	levelReg    metric.Registration
}

// NewRecorder creates the instruments on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(meterName)

	var r Recorder
	var err, errs error
	r.fragments, err = meter.Int64Counter("promptdj_fragments_total",
		metric.WithDescription("Audio fragments received, by outcome."))
	errs = errors.Join(errs, err)
	r.transitions, err = meter.Int64Counter("promptdj_state_transitions_total",
		metric.WithDescription("Playback state transitions, by new state."))
	errs = errors.Join(errs, err)
	r.connects, err = meter.Int64Counter("promptdj_connects_total",
		metric.WithDescription("Connection attempts, by result."))
	errs = errors.Join(errs, err)
	r.bytes, err = meter.Int64Counter("promptdj_audio_bytes_total",
		metric.WithDescription("Decoded audio bytes scheduled for playback."),
		metric.WithUnit("By"))
	errs = errors.Join(errs, err)
	r.lookahead, err = meter.Float64Histogram("promptdj_lookahead_seconds",
		metric.WithDescription("Audio queued ahead of the output clock when a fragment is scheduled."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0, 0.25, 0.5, 1, 1.5, 2, 3, 5, 10))
	errs = errors.Join(errs, err)
	r.level, err = meter.Float64ObservableGauge("promptdj_output_level",
		metric.WithDescription("RMS level of the most recently rendered audio block."))
	errs = errors.Join(errs, err)
	if errs != nil {
		return nil, errs
	}
	return &r, nil
}

// Fragment counts one fragment with its outcome.
func (r *Recorder) Fragment(ctx context.Context, result string) {
	if r == nil {
		return
	}
	r.fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Scheduled records a scheduled fragment and how far ahead of the clock it
// landed.
func (r *Recorder) Scheduled(ctx context.Context, bytes int, lookahead float64) {
	if r == nil {
		return
	}
	r.fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", FragmentScheduled)))
	r.bytes.Add(ctx, int64(bytes))
	r.lookahead.Record(ctx, lookahead)
}

// Transition counts a state change.
func (r *Recorder) Transition(ctx context.Context, state string) {
	if r == nil {
		return
	}
	r.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// Connect counts a connection attempt.
func (r *Recorder) Connect(ctx context.Context, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.connects.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// ObserveLevel reports fn as the output level on every collection.
func (r *Recorder) ObserveLevel(mp metric.MeterProvider, fn func() float64) error {
	if r == nil {
		return nil
	}
	reg, err := mp.Meter(meterName).RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(r.level, fn())
		return nil
	}, r.level)
	if err != nil {
		return err
	}
	r.levelReg = reg
	return nil
}

// Close unregisters the level callback.
func (r *Recorder) Close() error {
	if r == nil || r.levelReg == nil {
		return nil
	}
	return r.levelReg.Unregister()
}

// Provider is a meter provider wired to a Prometheus exporter.
type Provider struct {
	*sdkmetric.MeterProvider
	Handler http.Handler
}

// NewProvider builds a meter provider whose readings are served by Handler.
func NewProvider(ctx context.Context, service, version string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return &Provider{MeterProvider: mp, Handler: promhttp.Handler()}, nil
}

// Serve exposes h on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("Serving metrics", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
