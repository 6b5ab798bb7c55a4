// Package pipeline coordinates the per-reading flow: admit, persist, fetch
// baseline, detect per parameter, escalate, and opportunistically
// aggregate. Detection, aggregation and the forwarding policy are pure;
// the pipeline owns the wiring and nothing else.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/soilsense/edge/internal/aggregate"
	"github.com/soilsense/edge/internal/detector"
	"github.com/soilsense/edge/internal/escalate"
	"github.com/soilsense/edge/internal/metrics"
	"github.com/soilsense/edge/internal/store"
	"github.com/soilsense/edge/pkg/soil"
)

// AlertPublisher is the outbound side of the transport: one publish
// attempt per escalated verdict, no retry here.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event soil.AlertEvent) error
}

type Options struct {
	NodeID         string
	ManagedDevices []string
	Bounds         map[string]soil.ParameterBounds
	Detection      detector.Config
	BaselineSize   int
	BaselineWindow time.Duration
	Aggregation    aggregate.Config
	AggWindow      time.Duration
	SummaryTTL     time.Duration
	Sensitivity    escalate.Sensitivity
	Retention      time.Duration
	OpTimeout      time.Duration
	PublishTimeout time.Duration
}

// Stage names a pipeline step for outcome reporting.
type Stage string

const (
	StageAdmit     Stage = "admit"
	StagePersist   Stage = "persist"
	StageBaseline  Stage = "baseline"
	StageDetect    Stage = "detect"
	StagePublish   Stage = "publish"
	StageAggregate Stage = "aggregate"
)

// Outcome is the per-reading processing record. Instead of scattering
// catch-and-log through the stages, each stage reports here and the caller
// decides what to log or count.
type Outcome struct {
	DeviceID        string
	Dropped         bool
	DropReason      string
	FailedStage     Stage
	Err             error
	Verdicts        []soil.Verdict
	AlertsPublished int
	PublishFailures int
	Aggregated      bool
}

const lockStripes = 32

// Pipeline is safe for concurrent use; readings for the same device are
// serialized on a striped lock, distinct devices proceed in parallel.
type Pipeline struct {
	opts    Options
	store   store.Store
	pub     AlertPublisher
	managed map[string]struct{}
	locks   [lockStripes]sync.Mutex
}

func New(opts Options, st store.Store, pub AlertPublisher) *Pipeline {
	managed := make(map[string]struct{}, len(opts.ManagedDevices))
	for _, d := range opts.ManagedDevices {
		managed[d] = struct{}{}
	}

	return &Pipeline{opts: opts, store: st, pub: pub, managed: managed}
}

// HandleMessage decodes a raw transport payload and processes it. Malformed
// payloads are an admission drop, not an error.
func (p *Pipeline) HandleMessage(ctx context.Context, payload []byte) Outcome {
	reading, err := soil.DecodeReading(payload)
	if err != nil {
		metrics.ReadingsDropped.WithLabelValues("malformed").Inc()
		metrics.ReadingsProcessed.WithLabelValues("dropped").Inc()
		return Outcome{Dropped: true, DropReason: fmt.Sprintf("malformed payload: %v", err)}
	}
	return p.Process(ctx, reading)
}

// Process runs one reading through the full pipeline.
func (p *Pipeline) Process(ctx context.Context, reading soil.Reading) Outcome {
	out := Outcome{DeviceID: reading.DeviceID}

	if _, ok := p.managed[reading.DeviceID]; !ok {
		out.Dropped = true
		out.DropReason = "unmanaged device"
		metrics.ReadingsDropped.WithLabelValues("unmanaged").Inc()
		metrics.ReadingsProcessed.WithLabelValues("dropped").Inc()
		return out
	}

	lock := &p.locks[stripe(reading.DeviceID)]
	lock.Lock()
	defer lock.Unlock()

	if err := p.persist(ctx, reading); err != nil {
		out.FailedStage = StagePersist
		out.Err = err
		metrics.StoreErrors.WithLabelValues("append").Inc()
		metrics.ReadingsProcessed.WithLabelValues("store_error").Inc()
		return out
	}

	window, err := p.queryWindow(ctx, reading.DeviceID, p.opts.BaselineWindow)
	if err != nil {
		out.FailedStage = StageBaseline
		out.Err = err
		metrics.StoreErrors.WithLabelValues("query").Inc()
		metrics.ReadingsProcessed.WithLabelValues("store_error").Inc()
		return out
	}
	baseline := excludeCurrent(window, reading)

	out.Verdicts = p.detect(reading, baseline)
	p.escalateVerdicts(ctx, reading, out.Verdicts, &out)
	p.tryAggregate(ctx, reading.DeviceID, &out)

	metrics.ReadingsProcessed.WithLabelValues("ok").Inc()
	return out
}

// AggregateDevice recomputes and caches the aggregation-window summary for
// one device. Used by Process and by the periodic sweep.
func (p *Pipeline) AggregateDevice(ctx context.Context, deviceID string) (bool, error) {
	window, err := p.queryWindow(ctx, deviceID, p.opts.AggWindow)
	if err != nil {
		return false, err
	}

	summary, ok := aggregate.Compute(deviceID, window, p.opts.AggWindow, p.opts.Aggregation)
	if !ok {
		return false, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()
	if err := p.store.CacheSummary(opCtx, summary, p.opts.SummaryTTL); err != nil {
		return false, err
	}

	metrics.SummariesComputed.Inc()
	return true, nil
}

// ManagedDevices returns the node's device set in config order.
func (p *Pipeline) ManagedDevices() []string {
	return p.opts.ManagedDevices
}

func (p *Pipeline) persist(ctx context.Context, reading soil.Reading) error {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.AppendReading(opCtx, reading, p.opts.Retention)
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) queryWindow(ctx context.Context, deviceID string, window time.Duration) ([]soil.Reading, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()

	start := time.Now()
	readings, err := p.store.QueryWindow(opCtx, deviceID, window)
	metrics.StoreLatency.WithLabelValues("query").Observe(time.Since(start).Seconds())
	return readings, err
}

// excludeCurrent strips the just-appended reading from the window so the
// baseline and previous value reflect only history.
func excludeCurrent(window []soil.Reading, current soil.Reading) []soil.Reading {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].TimestampMs == current.TimestampMs {
			return append(window[:i:i], window[i+1:]...)
		}
		if window[i].TimestampMs < current.TimestampMs {
			break
		}
	}
	return window
}

func (p *Pipeline) detect(reading soil.Reading, baseline []soil.Reading) []soil.Verdict {
	var verdicts []soil.Verdict

	for _, param := range soil.Parameters {
		current, ok := reading.Values[param]
		if !ok {
			continue
		}
		bounds, ok := p.opts.Bounds[param]
		if !ok {
			continue
		}

		values := baselineValues(baseline, param, p.opts.BaselineSize)
		var previous *float64
		if len(values) > 0 {
			previous = &values[len(values)-1]
		}

		verdict := detector.Evaluate(param, current, values, previous, bounds, p.opts.Detection)
		for _, m := range verdict.Methods {
			if m.Triggered {
				metrics.MethodTriggers.WithLabelValues(m.Method).Inc()
			}
		}
		if verdict.Severity == soil.SeverityNormal {
			continue
		}

		metrics.Anomalies.WithLabelValues(param, string(verdict.Severity)).Inc()
		verdicts = append(verdicts, verdict)
	}

	return verdicts
}

// baselineValues extracts the most recent size values of one parameter
// from the window, oldest first.
func baselineValues(window []soil.Reading, param string, size int) []float64 {
	var values []float64
	for _, r := range window {
		if v, ok := r.Values[param]; ok {
			values = append(values, v)
		}
	}
	if size > 0 && len(values) > size {
		values = values[len(values)-size:]
	}
	return values
}

func (p *Pipeline) escalateVerdicts(ctx context.Context, reading soil.Reading, verdicts []soil.Verdict, out *Outcome) {
	for _, verdict := range verdicts {
		if !escalate.ShouldForward(verdict.Severity, p.opts.Sensitivity) {
			continue
		}

		event := soil.AlertEvent{
			EdgeNode:  p.opts.NodeID,
			DeviceID:  reading.DeviceID,
			Timestamp: float64(reading.TimestampMs) / 1000,
			Parameter: verdict.Parameter,
			Value:     verdict.Value,
			Severity:  verdict.Severity,
			Details:   verdict,
		}

		pubCtx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
		err := p.pub.PublishAlert(pubCtx, event)
		cancel()
		if err != nil {
			out.PublishFailures++
			out.FailedStage = StagePublish
			metrics.AlertsPublished.WithLabelValues(string(verdict.Severity), "error").Inc()
			log.Printf("[%s] publish alert %s: %v", reading.DeviceID, verdict.Parameter, err)
		} else {
			out.AlertsPublished++
			metrics.AlertsPublished.WithLabelValues(string(verdict.Severity), "ok").Inc()
		}

		p.recordAnomaly(ctx, reading, verdict)
	}
}

func (p *Pipeline) recordAnomaly(ctx context.Context, reading soil.Reading, verdict soil.Verdict) {
	method := "unknown"
	if len(verdict.Triggering) > 0 {
		method = verdict.Triggering[0]
	}

	rec := store.AnomalyRecord{
		TimestampMs: reading.TimestampMs,
		DeviceID:    reading.DeviceID,
		Parameter:   verdict.Parameter,
		Value:       verdict.Value,
		Method:      method,
		Verdict:     verdict,
	}

	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()
	if err := p.store.StoreAnomaly(opCtx, rec, p.opts.Retention); err != nil {
		metrics.StoreErrors.WithLabelValues("anomaly").Inc()
		log.Printf("[%s] store anomaly %s: %v", reading.DeviceID, verdict.Parameter, err)
	}
}

func (p *Pipeline) tryAggregate(ctx context.Context, deviceID string, out *Outcome) {
	ok, err := p.AggregateDevice(ctx, deviceID)
	if err != nil {
		// Aggregation is opportunistic; a failure never blocks the reading.
		out.FailedStage = StageAggregate
		metrics.StoreErrors.WithLabelValues("aggregate").Inc()
		log.Printf("[%s] aggregate: %v", deviceID, err)
		return
	}
	out.Aggregated = ok
}

func stripe(deviceID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return h.Sum32() % lockStripes
}
