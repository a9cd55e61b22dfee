package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"statflat/internal/metrics"
)

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v; want nil", got)
	}
	got := labelsToTags(metrics.Labels{"step": "flatten", "job": "pop", "status": "success"})
	want := []string{"job:pop", "status:success", "step:flatten"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labelsToTags = %v; want %v", got, want)
	}
}

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("expected error for empty Addr")
	}
}

func TestZeroBackendIsNoop(t *testing.T) {
	t.Parallel()
	b := &Backend{}
	b.IncCounter(metrics.RowsTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
}

/*
TestBackend_SendsToUDP points the client at a local UDP listener and checks
that a counter arrives with namespace and tags applied.
*/
func TestBackend_SendsToUDP(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	b, err := NewBackend(Config{Addr: conn.LocalAddr().String(), Namespace: "statflat.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "output"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "statflat."+metrics.RowsTotal+":3|c") {
		t.Fatalf("payload %q lacks counter", got)
	}
	if !strings.Contains(got, "env:test") || !strings.Contains(got, "kind:output") {
		t.Fatalf("payload %q lacks tags", got)
	}
}
