package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nigussolomon/nonceauth"
	"github.com/nigussolomon/nonceauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// OutcomeKey is the attribute that splits a lifecycle instrument by result.
const OutcomeKey = attribute.Key("outcome")

// BoundKey carries the inclusive upper bound, in seconds, of a latency bucket.
const BoundKey = attribute.Key("le")

type metricsSource interface {
	MetricsSnapshot() nonceauth.MetricsSnapshot
	AuditDropped() uint64
}

type outcome struct {
	id    nonceauth.MetricID
	label string
}

// stage is one lifecycle operation exported as a single counter.
type stage struct {
	name     string
	desc     string
	unit     string
	outcomes []outcome
}

// stages covers every engine counter exactly once.
var stages = []stage{
	{
		name: "nonceauth.register",
		desc: "Registration attempts by outcome.",
		unit: "{attempt}",
		outcomes: []outcome{
			{nonceauth.MetricRegisterSuccess, "success"},
			{nonceauth.MetricRegisterDuplicate, "duplicate"},
			{nonceauth.MetricRegisterFailure, "failure"},
		},
	},
	{
		name: "nonceauth.login",
		desc: "Login attempts by outcome.",
		unit: "{attempt}",
		outcomes: []outcome{
			{nonceauth.MetricLoginSuccess, "success"},
			{nonceauth.MetricLoginFailure, "failure"},
		},
	},
	{
		name: "nonceauth.refresh",
		desc: "Refresh token presentations by outcome. Reuse, race and revoke outcomes overlap failure.",
		unit: "{token}",
		outcomes: []outcome{
			{nonceauth.MetricRefreshSuccess, "success"},
			{nonceauth.MetricRefreshFailure, "failure"},
			{nonceauth.MetricRefreshReuseDetected, "reuse_detected"},
			{nonceauth.MetricRefreshRaceLost, "race_lost"},
			{nonceauth.MetricRefreshRevoked, "revoked"},
		},
	},
	{
		name: "nonceauth.session",
		desc: "Token pairs minted by login and refresh, by persistence outcome.",
		unit: "{pair}",
		outcomes: []outcome{
			{nonceauth.MetricSessionIssued, "issued"},
			{nonceauth.MetricSessionIssueFailure, "issue_failure"},
		},
	},
	{
		name: "nonceauth.logout",
		desc: "Logout calls by outcome.",
		unit: "{call}",
		outcomes: []outcome{
			{nonceauth.MetricLogout, "success"},
			{nonceauth.MetricLogoutFailure, "failure"},
		},
	},
	{
		name: "nonceauth.validate",
		desc: "Access token checks by outcome.",
		unit: "{token}",
		outcomes: []outcome{
			{nonceauth.MetricValidateSuccess, "success"},
			{nonceauth.MetricValidateFailure, "failure"},
		},
	},
}

type observedStage struct {
	instrument metric.Int64ObservableCounter
	outcomes   []outcome
	attrs      []metric.ObserveOption
}

// Exporter publishes engine counters through observable OpenTelemetry
// instruments, one per lifecycle operation. A single callback reads one
// snapshot per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	stages []observedStage

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	bucketAttrs    []metric.ObserveOption

	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *nonceauth.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter for any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, s := range stages {
		ins, err := meter.Int64ObservableCounter(s.name, metric.WithDescription(s.desc), metric.WithUnit(s.unit))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", s.name, err)
		}
		obs := observedStage{instrument: ins, outcomes: s.outcomes}
		for _, o := range s.outcomes {
			obs.attrs = append(obs.attrs, metric.WithAttributes(OutcomeKey.String(o.label)))
		}
		e.stages = append(e.stages, obs)
		observables = append(observables, ins)
	}

	var err error
	e.latencyBuckets, err = meter.Int64ObservableGauge("nonceauth.validate.latency.bucket",
		metric.WithDescription("Access validations at or under each latency bound, cumulative."),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge("nonceauth.validate.latency.count",
		metric.WithDescription("Access validations timed."),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	for _, b := range internaldefs.HistogramBounds {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(BoundKey.String(strconv.FormatFloat(b, 'g', -1, 64))))
	}
	e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(BoundKey.String("+Inf")))

	e.auditDropped, err = meter.Int64ObservableCounter("nonceauth.audit.dropped",
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.latencyBuckets, e.latencyCount, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

// observe reports one snapshot. Outcomes missing from the snapshot, as with
// disabled metrics, are not reported at all.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, s := range e.stages {
		for i, out := range s.outcomes {
			if v, ok := snap.Counters[out.id]; ok {
				o.ObserveInt64(s.instrument, int64(v), s.attrs[i])
			}
		}
	}

	if raw, ok := snap.Histograms[nonceauth.MetricValidateLatency]; ok {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, attrs := range e.bucketAttrs {
			o.ObserveInt64(e.latencyBuckets, int64(cum[i]), attrs)
		}
		o.ObserveInt64(e.latencyCount, int64(cum[len(cum)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
