package credlock

import (
	"context"
	"sync"
	"testing"
)

func TestMetricsCountLoginOutcomes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newMockStore()
	seedVerifiedAccount(t, store, "a1", "alice@example.com", "correct horse battery")

	engine := newTestEngine(t, rdb, store)

	if _, err := engine.Login(ctx, "alice@example.com", "wrong password"); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 session created, got %d", snap.Counters[MetricSessionCreated])
	}
}

func TestMetricsDisabledSnapshotIsEmpty(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newMockStore()
	seedVerifiedAccount(t, store, "a1", "alice@example.com", "correct horse battery")

	engine, err := New().
		WithConfig(newTestConfig()).
		WithRedis(rdb).
		WithStore(store).
		WithMetricsEnabled(false).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Login(context.Background(), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if snap := engine.MetricsSnapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot when disabled, got %v", snap.Counters)
	}
}

func TestMetricsIncIsConcurrencySafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}

func TestMetricsIgnoresOutOfRangeID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 100)

	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("expected out-of-range IDs to be ignored, got %d", got)
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	if m.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatal("expected empty snapshot from nil metrics")
	}
}
