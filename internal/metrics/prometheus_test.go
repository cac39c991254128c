package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDatagram("audio")
	m.RecordDatagram("audio")
	m.RecordDatagram("control")
	m.RecordBroadcast(3, 1)
	m.RecordRegistration(2)
	m.RecordRemoval(ReasonSendFailure, 1)

	if got := testutil.ToFloat64(m.DatagramsReceived.WithLabelValues("audio")); got != 2 {
		t.Errorf("audio datagrams = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FramesRelayed); got != 3 {
		t.Errorf("frames relayed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.SendFailures); got != 1 {
		t.Errorf("send failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Removals.WithLabelValues(ReasonSendFailure)); got != 1 {
		t.Errorf("send failure removals = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDatagram("audio")
	m.RecordDecodeError()
	m.RecordProtocolViolation("audio")
	m.RecordBroadcast(1, 1)
	m.RecordTransportError()
	m.RecordRegistration(1)
	m.RecordRemoval(ReasonExpired, 0)
}
