package resourceguard

import (
	"testing"

	"github.com/rs/zerolog"
)

func newGuard(t *testing.T, cfg Config) (*Guard, *int64) {
	t.Helper()
	var conns int64
	return New(cfg, zerolog.Nop(), &conns), &conns
}

func TestShouldAcceptConnectionWithinLimits(t *testing.T) {
	g, conns := newGuard(t, Config{MaxConnections: 10, CPURejectThreshold: 80, MaxGoroutines: 1000})
	*conns = 5

	accept, reason := g.ShouldAcceptConnection()
	if !accept {
		t.Fatalf("expected accept, got reject: %s", reason)
	}
}

func TestShouldRejectAtMaxConnections(t *testing.T) {
	g, conns := newGuard(t, Config{MaxConnections: 10, CPURejectThreshold: 80, MaxGoroutines: 1000})
	*conns = 10

	accept, reason := g.ShouldAcceptConnection()
	if accept {
		t.Fatal("expected reject at max connections")
	}
	if reason == "" {
		t.Fatal("expected a non-empty rejection reason")
	}
}

func TestShouldRejectOverCPUThreshold(t *testing.T) {
	g, _ := newGuard(t, Config{MaxConnections: 10, CPURejectThreshold: 50, MaxGoroutines: 1000})
	g.currentCPU.Store(75.0)

	accept, _ := g.ShouldAcceptConnection()
	if accept {
		t.Fatal("expected reject over CPU reject threshold")
	}
}

func TestShouldPauseMQRespectsPauseThreshold(t *testing.T) {
	g, _ := newGuard(t, Config{CPUPauseThreshold: 90, MQMessagesPerSecond: 100})
	g.currentCPU.Store(95.0)

	if !g.ShouldPauseMQ() {
		t.Fatal("expected pause when CPU exceeds pause threshold")
	}

	g.currentCPU.Store(10.0)
	if g.ShouldPauseMQ() {
		t.Fatal("expected no pause when CPU is well under threshold")
	}
}

func TestAllowMQMessageRespectsBurst(t *testing.T) {
	g, _ := newGuard(t, Config{MQMessagesPerSecond: 5})

	allowed := 0
	for i := 0; i < 20; i++ {
		if g.AllowMQMessage() {
			allowed++
		}
	}
	if allowed == 0 || allowed > 10 {
		t.Fatalf("allowed = %d, want a bounded burst (got more than 2x rate or none)", allowed)
	}
}
