package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(client, Config{
		MaxAttempts: 5,
		Window:      5 * time.Minute,
		KeyPrefix:   "cl:la:",
	})
	return mr, limiter
}

func TestCheckAndIncrementCounts(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := limiter.CheckAndIncrement(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	// Distinct keys count independently.
	got, err := limiter.CheckAndIncrement(ctx, "bob@example.com")
	if err != nil || got != 1 {
		t.Fatalf("expected fresh counter for new key, got %d err=%v", got, err)
	}
}

func TestWindowExpiresCounter(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
	}

	mr.FastForward(5 * time.Minute)

	got, err := limiter.CheckAndIncrement(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter restart after window, got %d", got)
	}
}

func TestWindowIsNotSliding(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	// Later attempts must not extend the window set on the first one.
	mr.FastForward(4 * time.Minute)
	if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	mr.FastForward(time.Minute)

	got, err := limiter.Attempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected counter expired at the fixed window edge, got %d", got)
	}
}

func TestClearForgivesAttempts(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
	}

	if err := limiter.Clear(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	got, err := limiter.Attempts(ctx, "alice@example.com")
	if err != nil || got != 0 {
		t.Fatalf("expected cleared counter, got %d err=%v", got, err)
	}
}

func TestAttemptsDoesNotCharge(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	if got, err := limiter.Attempts(ctx, "alice@example.com"); err != nil || got != 0 {
		t.Fatalf("expected 0 for unseen key, got %d err=%v", got, err)
	}

	if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got, err := limiter.Attempts(ctx, "alice@example.com"); err != nil || got != 1 {
			t.Fatalf("expected read-only count 1, got %d err=%v", got, err)
		}
	}
}

func TestBackendDownWrapsError(t *testing.T) {
	mr, limiter := newTestLimiter(t)
	mr.Close()

	ctx := context.Background()
	if _, err := limiter.CheckAndIncrement(ctx, "alice@example.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := limiter.Clear(ctx, "alice@example.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := limiter.Attempts(ctx, "alice@example.com"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestDefaultKeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(client, Config{MaxAttempts: 5, Window: time.Minute})

	if _, err := limiter.CheckAndIncrement(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if !mr.Exists("cl:la:alice@example.com") {
		t.Fatal("expected the default key prefix to apply")
	}
	if limiter.Max() != 5 {
		t.Fatalf("expected Max 5, got %d", limiter.Max())
	}
}
