package memcache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/pior/memcache-async/text"
)

const instrumentationName = "github.com/pior/memcache-async"

// ClientStats contains statistics about client operations.
//
// For Prometheus integration, expose these as counters. The same values are
// also recorded as OpenTelemetry counters on the configured MeterProvider.
type ClientStats struct {
	Requests         uint64 // Commands issued, including rejected ones
	NoReply          uint64 // Commands issued with noreply
	Replies          uint64 // Replies decoded and delivered
	Errors           uint64 // Commands completed with an error
	Connects         uint64 // Successful connects
	ConnectFailures  uint64 // Failed connect attempts
	UnsolicitedBytes uint64 // Bytes received with no command waiting for them
}

// statsCollector updates both the snapshot counters and the otel instruments.
type statsCollector struct {
	requests         atomic.Uint64
	noReply          atomic.Uint64
	replies          atomic.Uint64
	errors           atomic.Uint64
	connects         atomic.Uint64
	connectFailures  atomic.Uint64
	unsolicitedBytes atomic.Uint64

	requestsCounter    metric.Int64Counter
	repliesCounter     metric.Int64Counter
	errorsCounter      metric.Int64Counter
	unsolicitedCounter metric.Int64Counter
	connectsCounter    metric.Int64Counter
}

func newStatsCollector(provider metric.MeterProvider) *statsCollector {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	s := &statsCollector{}
	s.requestsCounter, _ = meter.Int64Counter("memcache.requests",
		metric.WithDescription("Commands issued, by command"))
	s.repliesCounter, _ = meter.Int64Counter("memcache.replies",
		metric.WithDescription("Replies received and matched to a command"))
	s.errorsCounter, _ = meter.Int64Counter("memcache.errors",
		metric.WithDescription("Commands completed with an error, by kind"))
	s.unsolicitedCounter, _ = meter.Int64Counter("memcache.unsolicited_bytes",
		metric.WithDescription("Bytes discarded because no command was waiting"),
		metric.WithUnit("By"))
	s.connectsCounter, _ = meter.Int64Counter("memcache.connects",
		metric.WithDescription("Connect attempts, by outcome"))
	return s
}

func (s *statsCollector) recordRequest(name string, expectsReply bool) {
	s.requests.Inc()
	if !expectsReply {
		s.noReply.Inc()
	}
	if s.requestsCounter != nil {
		s.requestsCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", name)))
	}
}

func (s *statsCollector) recordReply(cmd *text.Command) {
	s.replies.Inc()
	if s.repliesCounter != nil {
		s.repliesCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", cmd.Name)))
	}
}

func (s *statsCollector) recordError(err error) {
	s.errors.Inc()
	if s.errorsCounter != nil {
		s.errorsCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("kind", errorKind(err))))
	}
}

func (s *statsCollector) recordConnect(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.connectFailures.Inc()
	} else {
		s.connects.Inc()
	}
	if s.connectsCounter != nil {
		s.connectsCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (s *statsCollector) recordUnsolicited(n int) {
	s.unsolicitedBytes.Add(uint64(n))
	if s.unsolicitedCounter != nil {
		s.unsolicitedCounter.Add(context.Background(), int64(n))
	}
}

func (s *statsCollector) snapshot() ClientStats {
	return ClientStats{
		Requests:         s.requests.Load(),
		NoReply:          s.noReply.Load(),
		Replies:          s.replies.Load(),
		Errors:           s.errors.Load(),
		Connects:         s.connects.Load(),
		ConnectFailures:  s.connectFailures.Load(),
		UnsolicitedBytes: s.unsolicitedBytes.Load(),
	}
}
